// Package scan discovers the shard files of a run and extracts their
// lightweight metadata: which sources they supply, which trains they
// cover, and how many pulses each train carries.
//
// The on-disk format is not scan's business. A Format collaborator
// opens a named blob as a Reader; scan only drives the contract.
package scan

import (
	"context"
	"fmt"

	"github.com/beamkit/runindex/blobstore"
	"github.com/beamkit/runindex/model"
)

// Reader is the contract a format collaborator implements for one
// open shard. Metadata calls (Sources, Trains, PulseCount, PulseIDs)
// must not touch bulk payload; Read is the only heavyweight call.
//
// Implementations must be safe for concurrent Read calls.
type Reader interface {
	// Sources returns the sources this shard supplies data for.
	Sources() []model.SourceInfo
	// Trains returns the absolute train IDs present, in file order.
	Trains() []model.TrainID
	// PulseCount returns the number of pulses recorded for the given
	// source and train.
	PulseCount(ctx context.Context, source model.SourceID, train model.TrainID) (int, error)
	// Read returns the raw payload for one (source, train, pulse).
	Read(ctx context.Context, source model.SourceID, train model.TrainID, pulse model.PulseID) ([]byte, error)
	// Close releases the shard handle.
	Close() error
}

// PulseLister is an optional Reader extension for formats that record
// explicit pulse identifiers. Without it, pulses are addressed as
// 0..count-1.
type PulseLister interface {
	// PulseIDs returns the pulse IDs recorded for the given source and
	// train, ascending.
	PulseIDs(ctx context.Context, source model.SourceID, train model.TrainID) ([]model.PulseID, error)
}

// Format opens named blobs as shard Readers.
type Format interface {
	// Match reports whether a blob name looks like a shard of this
	// format (typically a suffix check). Non-matching blobs in a run
	// directory are ignored, not faulted.
	Match(name string) bool
	// Open opens the named blob as a shard Reader.
	Open(ctx context.Context, store blobstore.BlobStore, name string) (Reader, error)
}

// UnreadableShardError records a shard that could not be opened or
// whose metadata could not be parsed. The shard is excluded from
// indexing; the run continues without it.
type UnreadableShardError struct {
	Name  string
	cause error
}

func (e *UnreadableShardError) Error() string {
	return fmt.Sprintf("unreadable shard %s: %v", e.Name, e.cause)
}

func (e *UnreadableShardError) Unwrap() error { return e.cause }
