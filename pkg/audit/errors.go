package audit

import "errors"

// Domain-level error values returned by the audit recorder.
var (
	ErrInvalidKind          = errors.New("invalid audit kind")
	ErrInvalidMetadataJSON  = errors.New("invalid metadata json")
	ErrInvalidRecorderSetup = errors.New("invalid recorder setup")
	ErrInvalidListLimit     = errors.New("invalid list limit")
)
