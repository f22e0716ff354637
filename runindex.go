package runindex

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/beamkit/runindex/blobstore"
	"github.com/beamkit/runindex/index"
	"github.com/beamkit/runindex/model"
	"github.com/beamkit/runindex/resource"
	"github.com/beamkit/runindex/scan"
	"github.com/beamkit/runindex/shardfile"
	"github.com/beamkit/runindex/stream"
	"github.com/beamkit/runindex/validate"
)

// Run is an opened, validated and indexed acquisition run.
//
// A Run is immutable after Open and safe for concurrent use, except
// for Close. Streams created from a Run have their own lifecycle and
// survive it being closed only until their next shard read.
type Run struct {
	store  blobstore.BlobStore
	format scan.Format
	rc     *resource.Controller
	log    *Logger
	opts   options

	shards []*scan.Shard
	faults []*scan.UnreadableShardError
	result *validate.Result
	idx    *index.Index

	mu     sync.Mutex
	pool   *stream.Pool
	closed bool
}

// Open discovers, validates and indexes the run held in store. The
// format decides which blobs are shards and how to read them.
//
// Open reads only shard metadata; payload data is fetched lazily by
// train reads and streams.
func Open(ctx context.Context, store blobstore.BlobStore, format scan.Format, optFns ...Option) (*Run, error) {
	opts := applyOptions(optFns)
	rc := resource.NewController(opts.resourceCfg)
	log := opts.logger

	sc := scan.NewScanner(store, format, rc, log.Logger)
	shards, faults, err := sc.Scan(ctx)
	log.LogScan(ctx, len(shards), len(faults), err)
	if err != nil {
		return nil, err
	}

	res := validate.Run(shards, validate.Config{FanOut: opts.fanOut})
	log.LogValidate(ctx, len(res.Sources), len(res.Warnings))

	idx, err := index.Build(res)
	if err != nil {
		log.LogIndex(ctx, 0, 0, err)
		return nil, err
	}
	log.LogIndex(ctx, idx.NumTrains(), idx.Len(), nil)

	return &Run{
		store:  store,
		format: format,
		rc:     rc,
		log:    log,
		opts:   opts,
		shards: shards,
		faults: faults,
		result: res,
		idx:    idx,
		pool:   stream.NewPool(store, format, opts.maxOpenShards),
	}, nil
}

// OpenRun opens a run directory on the local filesystem holding
// reference shard containers.
func OpenRun(ctx context.Context, dir string, optFns ...Option) (*Run, error) {
	return Open(ctx, blobstore.NewLocalStore(dir), shardfile.Format{}, optFns...)
}

// OpenShard opens a single shard container file as a one-shard run.
// Sibling shards in the same directory are ignored.
func OpenShard(ctx context.Context, path string, optFns ...Option) (*Run, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	format := singleShardFormat{Format: shardfile.Format{}, name: base}
	return Open(ctx, blobstore.NewLocalStore(dir), format, optFns...)
}

// singleShardFormat narrows a format to exactly one blob name.
type singleShardFormat struct {
	shardfile.Format
	name string
}

func (f singleShardFormat) Match(name string) bool {
	return name == f.name && f.Format.Match(name)
}

// Index returns the run's canonical index.
func (r *Run) Index() *index.Index {
	return r.idx
}

// Sources returns the run's surviving sources, sorted by ID.
func (r *Run) Sources() []model.SourceInfo {
	return r.idx.Sources()
}

// TrainIDs returns all absolute train IDs, ascending.
func (r *Run) TrainIDs() []model.TrainID {
	return r.idx.TrainIDs()
}

// NumTrains returns the number of trains in the run.
func (r *Run) NumTrains() int {
	return r.idx.NumTrains()
}

// Len returns the total number of records the run can deliver.
func (r *Run) Len() uint64 {
	return r.idx.Len()
}

// Warnings returns the validation findings, including one
// unreadable-shard warning per scan fault, in deterministic order.
func (r *Run) Warnings() []validate.Warning {
	out := make([]validate.Warning, 0, len(r.faults)+len(r.result.Warnings))
	for _, f := range r.faults {
		out = append(out, validate.Warning{
			Code:   validate.CodeUnreadableShard,
			Shard:  f.Name,
			Detail: f.Error(),
		})
	}
	return append(out, r.result.Warnings...)
}

// SelectSources returns the IDs of all sources matching the glob
// pattern, sorted.
func (r *Run) SelectSources(pattern string) ([]model.SourceID, error) {
	return r.idx.MatchSources(pattern)
}

// TrainFromID retrieves all data of one train by absolute ID.
func (r *Run) TrainFromID(ctx context.Context, id model.TrainID) (*model.TrainData, error) {
	e, err := r.idx.EntryByID(id)
	if err != nil {
		return nil, err
	}
	return r.readTrain(ctx, e)
}

// TrainFromIndex retrieves all data of one train by relative index.
func (r *Run) TrainFromIndex(ctx context.Context, rel int) (*model.TrainData, error) {
	e, err := r.idx.Entry(rel)
	if err != nil {
		return nil, err
	}
	return r.readTrain(ctx, e)
}

// readTrain fetches every source's payloads for one train through the
// run's shared handle pool. Sources are read concurrently.
func (r *Run) readTrain(ctx context.Context, e *index.TrainEntry) (*model.TrainData, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, stream.ErrClosed
	}
	pool := r.pool
	r.mu.Unlock()

	td := &model.TrainData{
		ID:     e.ID,
		Rel:    e.Rel,
		Pulses: e.Pulses,
		Data:   make(map[model.SourceID][][]byte),
	}

	// Payload bytes are reserved against the memory budget while the
	// train is being assembled and released once it is handed over.
	var (
		mu       sync.Mutex
		reserved int64
	)
	defer func() { r.rc.ReleaseMemory(reserved) }()

	g, gctx := errgroup.WithContext(ctx)
	for _, info := range r.idx.Sources() {
		src := info.ID
		if !e.HasSource(src) {
			continue
		}
		g.Go(func() error {
			if err := r.rc.AcquireRead(gctx); err != nil {
				return err
			}
			defer r.rc.ReleaseRead()

			sh, _ := e.SourceShard(src)
			h, err := pool.Acquire(gctx, sh.Name)
			if err != nil {
				return err
			}
			defer h.Release()

			// Aligned with the union pulse list; pulses this source
			// did not record stay nil.
			have := e.SourcePulses(src)
			bufs := make([][]byte, len(e.Pulses))
			var total int
			for i, p := range e.Pulses {
				if !hasPulse(have, p) {
					continue
				}
				data, err := h.Reader().Read(gctx, src, e.ID, p)
				if err != nil {
					return fmt.Errorf("read %s train %d pulse %d: %w", src, e.ID, p, err)
				}
				bufs[i] = data
				total += len(data)
			}
			if err := r.rc.AcquireIO(gctx, total); err != nil {
				return err
			}
			if err := r.rc.AcquireMemory(gctx, int64(total)); err != nil {
				return err
			}

			mu.Lock()
			reserved += int64(total)
			td.Data[src] = bufs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return td, nil
}

// hasPulse reports membership in an ascending pulse ID list.
func hasPulse(pulses []model.PulseID, p model.PulseID) bool {
	i := sort.Search(len(pulses), func(i int) bool { return pulses[i] >= p })
	return i < len(pulses) && pulses[i] == p
}

// Stream creates a lazy, ordered record stream over the run. By
// default it delivers the full run in ascending flat order with all
// sources; options narrow the token set, the sources, or both.
//
// Each stream owns its own bounded handle pool: closing the stream
// (or finishing its All iterator) releases every shard handle it
// opened, independent of the Run.
func (r *Run) Stream(optFns ...StreamOption) (*stream.Stream, error) {
	var so streamOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&so)
		}
	}

	tokens := so.tokens
	if tokens == nil && so.explicit {
		var err error
		switch {
		case so.byID != nil:
			tokens, err = r.idx.ResolveTrainRange(so.byID[0], so.byID[1])
		case so.byIndex != nil:
			tokens = r.idx.ResolveRelRange(so.byIndex[0], so.byIndex[1])
		}
		if err != nil {
			return nil, err
		}
		if tokens == nil {
			tokens = []model.Token{}
		}
	}

	sources := so.sources
	for _, src := range sources {
		if !r.idx.HasSource(src) {
			return nil, &index.ErrUnknownSource{Source: src}
		}
	}
	for _, pattern := range so.patterns {
		ids, err := r.idx.MatchSources(pattern)
		if err != nil {
			return nil, err
		}
		sources = append(sources, ids...)
	}
	if sources != nil {
		slices.Sort(sources)
		sources = slices.Compact(sources)
	}

	return stream.New(stream.Config{
		Index:      r.idx,
		Pool:       stream.NewPool(r.store, r.format, r.opts.maxOpenShards),
		Tokens:     tokens,
		Sources:    sources,
		RequireAll: so.requireAll,
		Resources:  r.rc,
		Logger:     r.log.Logger,
	})
}

// Close releases the run's shard handles. Streams already created
// keep their own pools and must be closed separately.
func (r *Run) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.pool.Close()
}
