package scan

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/beamkit/runindex/blobstore"
	"github.com/beamkit/runindex/model"
	"github.com/beamkit/runindex/resource"
)

// Shard is the metadata descriptor of one discovered file.
type Shard struct {
	// Name is the blob name within the run's store.
	Name string
	// Sources are the sources this shard supplies.
	Sources []model.SourceInfo
	// Trains are the absolute train IDs present, in file order.
	Trains []model.TrainID
	// Pulses[src][i] lists the pulse IDs recorded for Trains[i].
	Pulses map[model.SourceID][][]model.PulseID
}

// TrainPos returns the position of a train in the shard's train list.
func (s *Shard) TrainPos(id model.TrainID) (int, bool) {
	for i, t := range s.Trains {
		if t == id {
			return i, true
		}
	}
	return -1, false
}

// Scanner discovers and scans the shards of one run.
type Scanner struct {
	store  blobstore.BlobStore
	format Format
	rc     *resource.Controller
	log    *slog.Logger
}

// NewScanner creates a Scanner. rc and log may be nil.
func NewScanner(store blobstore.BlobStore, format Format, rc *resource.Controller, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Scanner{store: store, format: format, rc: rc, log: log}
}

// Scan lists the run's blobs and scans every shard the format claims.
// Shards are scanned in parallel; results are merged in name order so
// repeated scans of the same run are deterministic.
//
// Unreadable shards are returned as faults, not errors: the run
// continues without them. Scan itself fails only when the store cannot
// be listed or ctx is canceled.
func (s *Scanner) Scan(ctx context.Context) ([]*Shard, []*UnreadableShardError, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	names, err := s.store.List(ctx, "")
	if err != nil {
		return nil, nil, err
	}

	var shardNames []string
	for _, name := range names {
		if s.format.Match(name) {
			shardNames = append(shardNames, name)
		}
	}
	sort.Strings(shardNames)

	shards := make([]*Shard, len(shardNames))

	var mu sync.Mutex
	var faults []*UnreadableShardError

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range shardNames {
		g.Go(func() error {
			if err := s.rc.AcquireRead(gctx); err != nil {
				return err
			}
			defer s.rc.ReleaseRead()

			shard, err := s.scanOne(gctx, name)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.log.Warn("shard unreadable", "shard", name, "error", err)
				mu.Lock()
				faults = append(faults, &UnreadableShardError{Name: name, cause: err})
				mu.Unlock()
				return nil
			}
			shards[i] = shard
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// Compact out unreadable entries, keeping name order.
	out := shards[:0]
	for _, sh := range shards {
		if sh != nil {
			out = append(out, sh)
		}
	}

	sort.Slice(faults, func(i, j int) bool { return faults[i].Name < faults[j].Name })
	return out, faults, nil
}

// scanOne opens one shard, extracts its metadata and closes it again.
// No handle survives the call.
func (s *Scanner) scanOne(ctx context.Context, name string) (*Shard, error) {
	r, err := s.format.Open(ctx, s.store, name)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	shard := &Shard{
		Name:    name,
		Sources: r.Sources(),
		Trains:  r.Trains(),
		Pulses:  make(map[model.SourceID][][]model.PulseID, len(r.Sources())),
	}

	lister, hasLister := r.(PulseLister)

	for _, src := range shard.Sources {
		perTrain := make([][]model.PulseID, len(shard.Trains))
		for i, train := range shard.Trains {
			if hasLister {
				ids, err := lister.PulseIDs(ctx, src.ID, train)
				if err != nil {
					return nil, err
				}
				perTrain[i] = ids
				continue
			}
			n, err := r.PulseCount(ctx, src.ID, train)
			if err != nil {
				return nil, err
			}
			ids := make([]model.PulseID, n)
			for p := range ids {
				ids[p] = model.PulseID(p)
			}
			perTrain[i] = ids
		}
		shard.Pulses[src.ID] = perTrain
	}

	s.log.Debug("scanned shard",
		"shard", name,
		"sources", len(shard.Sources),
		"trains", len(shard.Trains),
	)

	return shard, nil
}
