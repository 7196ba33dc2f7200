// Package manifest parses the static audio asset catalog and resolves
// asset ids to concrete file paths.
package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// AssetEntry describes one logical audio asset and its encoded forms.
type AssetEntry struct {
	ID       string            `json:"id"`
	Files    map[string]string `json:"files"`
	Duration float64           `json:"duration"` // seconds
}

// Validation is the manifest's self-check block.
type Validation struct {
	Categories int `json:"categories"`
	TotalFiles int `json:"totalFiles"`
}

// Manifest is the versioned asset catalog document.
type Manifest struct {
	Version          string                  `json:"version"`
	LastUpdated      string                  `json:"lastUpdated"`
	SupportedFormats []string                `json:"supportedFormats"`
	DefaultFormat    string                  `json:"defaultFormat"`
	FallbackFormat   string                  `json:"fallbackFormat"`
	Categories       map[string][]AssetEntry `json:"categories"`
	Validation       Validation              `json:"validation"`

	index map[string]*AssetEntry
}

// Load parses and validates a manifest document. Validation failures are
// fatal for the whole manifest, not per asset.
func Load(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := json.NewDecoder(r)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadFile loads a manifest from a file on disk.
func LoadFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

func (m *Manifest) validate() error {
	if m.DefaultFormat == "" {
		return ErrNoDefaultFormat
	}

	if len(m.Categories) != m.Validation.Categories {
		return fmt.Errorf("%w: have %d, expected %d",
			ErrCategoryCountMismatch, len(m.Categories), m.Validation.Categories)
	}

	m.index = make(map[string]*AssetEntry)
	total := 0
	for category, entries := range m.Categories {
		total += len(entries)
		for i := range entries {
			entry := &entries[i]
			if entry.Duration <= 0 {
				return fmt.Errorf("%w: asset %q in category %q", ErrInvalidDuration, entry.ID, category)
			}
			if len(entry.Files) == 0 {
				return fmt.Errorf("%w: asset %q in category %q", ErrNoFiles, entry.ID, category)
			}
			if _, seen := m.index[entry.ID]; seen {
				return fmt.Errorf("%w: %q", ErrDuplicateAssetID, entry.ID)
			}
			m.index[entry.ID] = entry
		}
	}

	if total != m.Validation.TotalFiles {
		return fmt.Errorf("%w: have %d, expected %d",
			ErrFileCountMismatch, total, m.Validation.TotalFiles)
	}

	return nil
}

// Entry returns the asset entry for id, or ErrAssetNotFound.
func (m *Manifest) Entry(id string) (*AssetEntry, error) {
	entry, ok := m.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAssetNotFound, id)
	}
	return entry, nil
}

// Formats lists the formats the asset is available in, in the manifest's
// preference order. Formats outside supportedFormats keep their declared
// order after the supported ones.
func (m *Manifest) Formats(id string) ([]string, error) {
	entry, err := m.Entry(id)
	if err != nil {
		return nil, err
	}

	var formats []string
	seen := make(map[string]bool)
	for _, f := range m.SupportedFormats {
		if _, ok := entry.Files[f]; ok {
			formats = append(formats, f)
			seen[f] = true
		}
	}
	for f := range entry.Files {
		if !seen[f] {
			formats = append(formats, f)
		}
	}
	return formats, nil
}

// AssetIDs returns every asset id declared in the manifest.
func (m *Manifest) AssetIDs() []string {
	ids := make([]string, 0, len(m.index))
	for id := range m.index {
		ids = append(ids, id)
	}
	return ids
}

// AssetCount returns the number of assets across all categories.
func (m *Manifest) AssetCount() int {
	return len(m.index)
}
