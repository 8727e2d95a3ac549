package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrEmptyPrompt         = errors.New("prompt is empty")
	ErrQuotaExceeded       = errors.New("image generation quota exceeded")
	ErrNoImage             = errors.New("no image data in response")
	ErrInvalidExport       = errors.New("not a valid history export")
	ErrEmptyHistory        = errors.New("image history is empty")
	ErrInvalidTag          = errors.New("invalid tag")
	ErrInvalidSeed         = errors.New("seed is out of range")
	ErrUnsupportedDocument = errors.New("unsupported document format (use .txt or .md)")
)
