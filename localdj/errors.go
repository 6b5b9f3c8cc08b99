package localdj

import "errors"

// Sentinel errors attached to the log lines the gateway and
// orchestrator emit when they reject a request. They are not returned
// to callers; HTTP status mapping lives in gateway.go.
var (
	// ErrMalformedPath is logged when a hex-encoded path segment in
	// a gateway request cannot be decoded.
	ErrMalformedPath = errors.New("localdj: malformed file path encoding")
	// ErrPathNotAllowed is logged when a decoded path is not in the
	// gateway's allow-set.
	ErrPathNotAllowed = errors.New("localdj: path not allowed")
	// ErrFileNotFound is logged when an allowed path does not exist
	// as a regular file at request time.
	ErrFileNotFound = errors.New("localdj: file not found")
	// ErrRangeNotSatisfiable is logged for a Range header that can't
	// be honored against the file's current size.
	ErrRangeNotSatisfiable = errors.New("localdj: range not satisfiable")

	// ErrNoMusicDirs is logged by the orchestrator when no music
	// directories have been configured.
	ErrNoMusicDirs = errors.New("localdj: no music directories configured")
	// ErrRefreshInProgress is logged when a refresh is requested
	// while one is already running.
	ErrRefreshInProgress = errors.New("localdj: refresh already in progress")
)
