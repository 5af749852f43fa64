package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers match them with errors.Is.
var (
	// ErrNoTarget is returned when no site URL was given.
	ErrNoTarget = errors.New("no target specified: provide at least one site URL")

	// ErrInvalidTarget is returned when a target is not an absolute http(s) URL.
	ErrInvalidTarget = errors.New("invalid target URL")

	// ErrInvalidMaxDepth is returned when the depth budget is out of range.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be between 0 and 10")

	// ErrInvalidMaxPages is returned when the page budget is out of range.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be between 1 and 1000")

	// ErrInvalidTimeout is returned when the audit timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when more than one of --json,
	// --markdown and --csv is given.
	ErrConflictingReportFormats = errors.New("conflicting report formats: choose one of --json, --markdown or --csv")

	// ErrNoDBDir is returned when saving is enabled without a database directory.
	ErrNoDBDir = errors.New("database directory is empty while saving is enabled")
)
