// Package index builds and serves the canonical index of a run: the
// bijections between absolute train IDs, relative train indices, flat
// indices and per-source coverage.
//
// The index is immutable once built and safe for concurrent use.
package index

import (
	"errors"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/beamkit/runindex/model"
	"github.com/beamkit/runindex/scan"
	"github.com/beamkit/runindex/validate"
)

// ErrEmptyRun is returned when no trains survive validation.
var ErrEmptyRun = errors.New("index: no trains survived validation")

// ErrOutOfRange indicates an address outside the index's domain.
type ErrOutOfRange struct {
	Scheme string // "train id", "relative index", "flat index", "pulse id"
	Value  uint64
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("index: %s %d out of range", e.Scheme, e.Value)
}

// ErrUnknownSource indicates a source that was never observed.
type ErrUnknownSource struct {
	Source model.SourceID
}

func (e *ErrUnknownSource) Error() string {
	return fmt.Sprintf("index: unknown source %q", e.Source)
}

// sourceSlot is the per-(train, source) retrieval reference.
type sourceSlot struct {
	shard  *scan.Shard
	pulses []model.PulseID
}

// TrainEntry is one row of the canonical index.
type TrainEntry struct {
	// ID is the absolute train identifier.
	ID model.TrainID
	// Rel is the 0-based relative index within the run.
	Rel int
	// Pulses is the union of per-source pulse IDs, ascending.
	Pulses []model.PulseID
	// FlatBase is the token of the entry's first pulse.
	FlatBase model.Token

	slots map[model.SourceID]sourceSlot
}

// SourceShard returns the shard serving reads of src for this train.
func (e *TrainEntry) SourceShard(src model.SourceID) (*scan.Shard, bool) {
	s, ok := e.slots[src]
	return s.shard, ok
}

// SourcePulses returns the pulse IDs src recorded for this train.
func (e *TrainEntry) SourcePulses(src model.SourceID) []model.PulseID {
	return e.slots[src].pulses
}

// HasSource reports whether src covers this train.
func (e *TrainEntry) HasSource(src model.SourceID) bool {
	_, ok := e.slots[src]
	return ok
}

// Index is the canonical, immutable index of one run.
type Index struct {
	entries []*TrainEntry
	byID    map[model.TrainID]int
	total   uint64

	sources  map[model.SourceID]model.SourceInfo
	coverage map[model.SourceID]*roaring64.Bitmap
}

// Build reduces a validated result into the canonical index.
//
// Build is deterministic: the same validated input yields identical
// relative indices, flat indices and entry contents.
func Build(res *validate.Result) (*Index, error) {
	if res == nil || res.Union.IsEmpty() {
		return nil, ErrEmptyRun
	}

	trainIDs := res.Union.ToArray() // sorted, deduplicated

	idx := &Index{
		entries:  make([]*TrainEntry, 0, len(trainIDs)),
		byID:     make(map[model.TrainID]int, len(trainIDs)),
		sources:  make(map[model.SourceID]model.SourceInfo, len(res.Sources)),
		coverage: make(map[model.SourceID]*roaring64.Bitmap, len(res.Sources)),
	}

	for id, cov := range res.Sources {
		idx.sources[id] = cov.Info
		idx.coverage[id] = cov.Safe.Clone()
	}

	var flat uint64
	for rel, tid64 := range trainIDs {
		tid := model.TrainID(tid64)
		entry := &TrainEntry{
			ID:       tid,
			Rel:      rel,
			FlatBase: model.Token(flat),
			slots:    make(map[model.SourceID]sourceSlot),
		}

		// Pulse set: union of per-source pulse IDs for this train.
		seen := make(map[model.PulseID]struct{})
		for src, cov := range res.Sources {
			if !cov.Safe.Contains(uint64(tid)) {
				continue
			}
			pulses := cov.Pulses[tid]
			entry.slots[src] = sourceSlot{shard: cov.ShardFor[tid], pulses: pulses}
			for _, p := range pulses {
				seen[p] = struct{}{}
			}
		}
		entry.Pulses = make([]model.PulseID, 0, len(seen))
		for p := range seen {
			entry.Pulses = append(entry.Pulses, p)
		}
		sort.Slice(entry.Pulses, func(i, j int) bool { return entry.Pulses[i] < entry.Pulses[j] })

		idx.byID[tid] = rel
		idx.entries = append(idx.entries, entry)
		flat += uint64(len(entry.Pulses))
	}
	idx.total = flat

	return idx, nil
}

// NumTrains returns the number of trains in the run.
func (x *Index) NumTrains() int {
	return len(x.entries)
}

// Len returns the total number of (train, pulse) pairs: the size of
// the flat index space.
func (x *Index) Len() uint64 {
	return x.total
}

// PulseCounts returns the pulse count of every train, by relative index.
func (x *Index) PulseCounts() []int {
	out := make([]int, len(x.entries))
	for i, e := range x.entries {
		out[i] = len(e.Pulses)
	}
	return out
}

// TrainIDs returns all absolute train IDs, ascending.
func (x *Index) TrainIDs() []model.TrainID {
	out := make([]model.TrainID, len(x.entries))
	for i, e := range x.entries {
		out[i] = e.ID
	}
	return out
}

// FirstTrain returns the lowest train ID in the run.
func (x *Index) FirstTrain() model.TrainID { return x.entries[0].ID }

// LastTrain returns the highest train ID in the run.
func (x *Index) LastTrain() model.TrainID { return x.entries[len(x.entries)-1].ID }

// Sources returns the surviving sources, sorted by ID.
func (x *Index) Sources() []model.SourceInfo {
	out := make([]model.SourceInfo, 0, len(x.sources))
	for _, info := range x.sources {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HasSource reports whether the run observed the given source.
func (x *Index) HasSource(src model.SourceID) bool {
	_, ok := x.sources[src]
	return ok
}

// Coverage returns the safe train set of one source.
func (x *Index) Coverage(src model.SourceID) (*roaring64.Bitmap, error) {
	b, ok := x.coverage[src]
	if !ok {
		return nil, &ErrUnknownSource{Source: src}
	}
	return b, nil
}

// Entry returns the entry at the given relative index.
func (x *Index) Entry(rel int) (*TrainEntry, error) {
	if rel < 0 || rel >= len(x.entries) {
		return nil, &ErrOutOfRange{Scheme: "relative index", Value: uint64(rel)}
	}
	return x.entries[rel], nil
}

// EntryByID returns the entry for an absolute train ID.
func (x *Index) EntryByID(id model.TrainID) (*TrainEntry, error) {
	rel, ok := x.byID[id]
	if !ok {
		return nil, &ErrOutOfRange{Scheme: "train id", Value: uint64(id)}
	}
	return x.entries[rel], nil
}
