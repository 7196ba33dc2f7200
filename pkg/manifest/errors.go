package manifest

import "errors"

// Manifest validation errors. All of these are fatal at load time.
var (
	ErrCategoryCountMismatch = errors.New("manifest category count does not match validation block")
	ErrFileCountMismatch     = errors.New("manifest file count does not match validation block")
	ErrDuplicateAssetID      = errors.New("duplicate asset id")
	ErrInvalidDuration       = errors.New("asset duration must be greater than zero")
	ErrNoFiles               = errors.New("asset declares no files")
	ErrNoDefaultFormat       = errors.New("manifest declares no default format")
)

// Resolution errors, surfaced per asset.
var (
	ErrAssetNotFound     = errors.New("asset not found in manifest")
	ErrFormatUnavailable = errors.New("no usable format for asset")
)
