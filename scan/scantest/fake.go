// Package scantest provides in-memory shard fixtures for tests.
package scantest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/beamkit/runindex/blobstore"
	"github.com/beamkit/runindex/model"
	"github.com/beamkit/runindex/scan"
)

// ErrCorrupt is what corrupt fixture shards fail with.
var ErrCorrupt = errors.New("scantest: corrupt shard")

// ErrNoData is returned by Read for an absent (source, train, pulse).
var ErrNoData = errors.New("scantest: no data")

// SourceData is the fixture content for one source within a shard.
type SourceData struct {
	Kind model.SourceKind
	// Pulses maps train ID to the pulse IDs present.
	Pulses map[model.TrainID][]model.PulseID
	// Payload maps "train/pulse" to raw bytes. Missing entries make
	// Read fail with ErrNoData even when Pulses lists the pulse.
	Payload map[string][]byte
}

// ShardFixture describes one fake shard.
type ShardFixture struct {
	Trains  []model.TrainID
	Sources map[model.SourceID]*SourceData
	// Corrupt makes Open fail, exercising the unreadable-shard path.
	Corrupt bool
}

// Format is a scan.Format serving fixtures by blob name. The blob
// store passed to Open is ignored; fixtures live in memory.
type Format struct {
	mu     sync.Mutex
	shards map[string]*ShardFixture

	// Opens and Closes count handle lifecycle events for leak checks.
	Opens  atomic.Int64
	Closes atomic.Int64
}

// NewFormat creates an empty fixture format.
func NewFormat() *Format {
	return &Format{shards: make(map[string]*ShardFixture)}
}

// Add registers a fixture shard under the given name.
func (f *Format) Add(name string, fx *ShardFixture) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shards[name] = fx
}

// OpenHandles returns the number of currently open fixture readers.
func (f *Format) OpenHandles() int64 {
	return f.Opens.Load() - f.Closes.Load()
}

// Match accepts names ending in ".fake".
func (f *Format) Match(name string) bool {
	return strings.HasSuffix(name, ".fake")
}

// Open opens a fixture shard.
func (f *Format) Open(_ context.Context, _ blobstore.BlobStore, name string) (scan.Reader, error) {
	f.mu.Lock()
	fx, ok := f.shards[name]
	f.mu.Unlock()
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	if fx.Corrupt {
		return nil, ErrCorrupt
	}
	f.Opens.Add(1)
	return &reader{fx: fx, format: f}, nil
}

// Names returns the fixture names in registration-independent order.
func (f *Format) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.shards))
	for n := range f.shards {
		names = append(names, n)
	}
	return names
}

// Store returns a memory blob store holding a zero-byte blob per
// fixture, so scanner discovery via List works.
func (f *Format) Store() blobstore.BlobStore {
	s := blobstore.NewMemoryStore()
	for _, n := range f.Names() {
		_ = s.Put(context.Background(), n, nil)
	}
	return s
}

type reader struct {
	fx     *ShardFixture
	format *Format
	closed atomic.Bool
}

func (r *reader) Sources() []model.SourceInfo {
	infos := make([]model.SourceInfo, 0, len(r.fx.Sources))
	for id, sd := range r.fx.Sources {
		infos = append(infos, model.SourceInfo{ID: id, Kind: sd.Kind})
	}
	// Deterministic order for the scanner.
	for i := 1; i < len(infos); i++ {
		for j := i; j > 0 && infos[j].ID < infos[j-1].ID; j-- {
			infos[j], infos[j-1] = infos[j-1], infos[j]
		}
	}
	return infos
}

func (r *reader) Trains() []model.TrainID {
	return r.fx.Trains
}

func (r *reader) PulseCount(_ context.Context, source model.SourceID, train model.TrainID) (int, error) {
	sd, ok := r.fx.Sources[source]
	if !ok {
		return 0, fmt.Errorf("scantest: source %s not in shard", source)
	}
	return len(sd.Pulses[train]), nil
}

func (r *reader) PulseIDs(_ context.Context, source model.SourceID, train model.TrainID) ([]model.PulseID, error) {
	sd, ok := r.fx.Sources[source]
	if !ok {
		return nil, fmt.Errorf("scantest: source %s not in shard", source)
	}
	return sd.Pulses[train], nil
}

func (r *reader) Read(_ context.Context, source model.SourceID, train model.TrainID, pulse model.PulseID) ([]byte, error) {
	sd, ok := r.fx.Sources[source]
	if !ok {
		return nil, ErrNoData
	}
	data, ok := sd.Payload[PayloadKey(train, pulse)]
	if !ok {
		return nil, ErrNoData
	}
	return data, nil
}

func (r *reader) Close() error {
	if !r.closed.Swap(true) {
		r.format.Closes.Add(1)
	}
	return nil
}

// PayloadKey builds the Payload map key for one (train, pulse).
func PayloadKey(train model.TrainID, pulse model.PulseID) string {
	return fmt.Sprintf("%d/%d", train, pulse)
}
