package runindex

import (
	"errors"

	"github.com/beamkit/runindex/blobstore"
	"github.com/beamkit/runindex/index"
	"github.com/beamkit/runindex/scan"
	"github.com/beamkit/runindex/stream"
)

// Sentinel errors from the subsystems, re-exported so callers only
// need the root package for error checks.
var (
	// ErrEmptyRun is returned when a run has no usable trains.
	ErrEmptyRun = index.ErrEmptyRun

	// ErrMissingData marks a record whose indexed payload could not be
	// retrieved.
	ErrMissingData = stream.ErrMissingData

	// ErrNotFound is returned when a blob does not exist.
	ErrNotFound = blobstore.ErrNotFound
)

// IsOutOfRange reports whether err is an address outside the run's
// canonical index, in any addressing scheme.
func IsOutOfRange(err error) bool {
	var e *index.ErrOutOfRange
	return errors.As(err, &e)
}

// IsUnknownSource reports whether err names a source the run does not
// have.
func IsUnknownSource(err error) bool {
	var e *index.ErrUnknownSource
	return errors.As(err, &e)
}

// IsUnreadableShard reports whether err is a shard that could not be
// opened or scanned.
func IsUnreadableShard(err error) bool {
	var e *scan.UnreadableShardError
	return errors.As(err, &e)
}
