package manifest

import "fmt"

// Resolution is the outcome of resolving an asset id to a concrete file.
type Resolution struct {
	Path   string
	Format string
}

// Resolve maps an asset id and format preference to a concrete path.
// An empty preferred format means the manifest's default format. When the
// asset lacks the chosen format the manifest's fallback format is tried;
// if neither is present the resolution fails with ErrFormatUnavailable.
func (m *Manifest) Resolve(id, preferred string) (Resolution, error) {
	entry, err := m.Entry(id)
	if err != nil {
		return Resolution{}, err
	}

	format := preferred
	if format == "" {
		format = m.DefaultFormat
	}

	if path, ok := entry.Files[format]; ok {
		return Resolution{Path: path, Format: format}, nil
	}

	if m.FallbackFormat != "" && m.FallbackFormat != format {
		if path, ok := entry.Files[m.FallbackFormat]; ok {
			return Resolution{Path: path, Format: m.FallbackFormat}, nil
		}
	}

	return Resolution{}, fmt.Errorf("%w: asset %q has neither %q nor %q",
		ErrFormatUnavailable, id, format, m.FallbackFormat)
}
