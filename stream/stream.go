package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/beamkit/runindex/index"
	"github.com/beamkit/runindex/model"
	"github.com/beamkit/runindex/resource"
)

var (
	// ErrClosed is returned by operations on a closed stream or pool.
	ErrClosed = errors.New("stream: closed")

	// ErrMissingData marks a record whose indexed data could not be
	// retrieved from the underlying shard. The stream continues; the
	// caller decides whether to skip or halt.
	ErrMissingData = errors.New("stream: missing data")
)

// MissingDataError reports which sources of one record failed.
// It matches ErrMissingData via errors.Is; the first underlying
// retrieval error is available via errors.As / Unwrap.
type MissingDataError struct {
	Token   model.Token
	Train   model.TrainID
	Pulse   model.PulseID
	Sources []model.SourceID
	cause   error
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("missing data at %s (train %d, pulse %d) for %d source(s): %v",
		e.Token, e.Train, e.Pulse, len(e.Sources), e.cause)
}

func (e *MissingDataError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrMissingData, e.cause}
	}
	return []error{ErrMissingData}
}

// Config assembles a Stream. Index and Pool are required.
type Config struct {
	Index *index.Index
	Pool  *Pool

	// Tokens is the explicit, possibly non-monotonic, ordered token
	// list to deliver. Nil means the full run in ascending flat order.
	Tokens []model.Token

	// Sources restricts retrieval to these sources. Nil means all.
	Sources []model.SourceID

	// RequireAll skips records for which any selected source has no
	// data, instead of delivering partial records.
	RequireAll bool

	// Resources bounds fetch concurrency, in-flight payload memory and
	// IO throughput. May be nil.
	Resources *resource.Controller

	// Logger may be nil.
	Logger *slog.Logger
}

// Stream is a lazy, ordered, restartable sequence of Records.
//
// A Stream owns its handle pool: Close (or letting All run to
// completion or break) releases every shard handle it opened.
// Not safe for concurrent use; open one Stream per consumer.
type Stream struct {
	idx     *index.Index
	pool    *Pool
	tokens  []model.Token // nil = implicit full range
	sources []model.SourceID
	reqAll  bool
	rc      *resource.Controller
	log     *slog.Logger

	pos    uint64
	held   int64 // payload bytes of the delivered record, reserved until the next call
	closed bool
}

// New creates a Stream from a Config.
func New(cfg Config) (*Stream, error) {
	if cfg.Index == nil || cfg.Pool == nil {
		return nil, errors.New("stream: config needs Index and Pool")
	}

	sources := cfg.Sources
	if sources == nil {
		for _, info := range cfg.Index.Sources() {
			sources = append(sources, info.ID)
		}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Stream{
		idx:     cfg.Index,
		pool:    cfg.Pool,
		tokens:  cfg.Tokens,
		sources: sources,
		reqAll:  cfg.RequireAll,
		rc:      cfg.Resources,
		log:     log,
	}, nil
}

// Len returns the number of tokens this stream will deliver.
func (s *Stream) Len() uint64 {
	if s.tokens != nil {
		return uint64(len(s.tokens))
	}
	return s.idx.Len()
}

// Index returns the run index backing the stream.
func (s *Stream) Index() *index.Index {
	return s.idx
}

// Next delivers the next Record, or io.EOF at end of stream.
//
// A *MissingDataError return carries the (possibly partial) record
// alongside the error; the stream is still live and the next call
// continues with the following token.
//
// The delivered record's payload bytes stay reserved against the
// resource controller's memory budget until the next call or Close.
func (s *Stream) Next(ctx context.Context) (*model.Record, error) {
	for {
		if s.closed {
			return nil, ErrClosed
		}
		if s.held > 0 {
			s.rc.ReleaseMemory(s.held)
			s.held = 0
		}
		if s.pos >= s.Len() {
			return nil, io.EOF
		}

		tok := s.tokenAt(s.pos)
		s.pos++

		entry, pulse, err := s.idx.Locate(tok)
		if err != nil {
			return nil, err
		}

		if s.reqAll && !s.covered(entry, pulse) {
			continue
		}

		return s.fetch(ctx, tok, entry, pulse)
	}
}

// Seek repositions the stream at the given resolved token and
// delivers its Record. For explicit token lists the token must be a
// member of the list.
func (s *Stream) Seek(ctx context.Context, tok model.Token) (*model.Record, error) {
	if s.closed {
		return nil, ErrClosed
	}

	if s.tokens == nil {
		if _, _, err := s.idx.Locate(tok); err != nil {
			return nil, err
		}
		s.pos = uint64(tok)
	} else {
		found := false
		for i, t := range s.tokens {
			if t == tok {
				s.pos = uint64(i)
				found = true
				break
			}
		}
		if !found {
			return nil, &index.ErrOutOfRange{Scheme: "flat index", Value: uint64(tok)}
		}
	}

	return s.Next(ctx)
}

// All returns a single-use iterator over the remaining records.
// The stream is closed when iteration finishes or the consumer breaks
// out early, releasing all shard handles either way.
func (s *Stream) All(ctx context.Context) iter.Seq2[*model.Record, error] {
	return func(yield func(*model.Record, error) bool) {
		defer s.Close()
		for {
			rec, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(rec, err) {
				return
			}
			if err != nil && !errors.Is(err, ErrMissingData) {
				return
			}
		}
	}
}

// Close releases the stream's shard handles and its memory
// reservation. Idempotent.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.held > 0 {
		s.rc.ReleaseMemory(s.held)
		s.held = 0
	}
	return s.pool.Close()
}

func (s *Stream) tokenAt(pos uint64) model.Token {
	if s.tokens != nil {
		return s.tokens[pos]
	}
	return model.Token(pos)
}

// covered reports whether every selected source has this pulse.
func (s *Stream) covered(entry *index.TrainEntry, pulse model.PulseID) bool {
	for _, src := range s.sources {
		pulses := entry.SourcePulses(src)
		i := sort.Search(len(pulses), func(i int) bool { return pulses[i] >= pulse })
		if i >= len(pulses) || pulses[i] != pulse {
			return false
		}
	}
	return true
}

// fetch retrieves one record's payload across the selected sources.
// Sources are fetched concurrently when more than one is involved;
// concurrency affects scheduling only, never delivery order.
func (s *Stream) fetch(ctx context.Context, tok model.Token, entry *index.TrainEntry, pulse model.PulseID) (*model.Record, error) {
	rec := &model.Record{
		Token: tok,
		Train: entry.ID,
		Rel:   entry.Rel,
		Pulse: pulse,
		Data:  make(map[model.SourceID][]byte),
	}

	// Sources that index this (train, pulse).
	var wanted []model.SourceID
	for _, src := range s.sources {
		pulses := entry.SourcePulses(src)
		i := sort.Search(len(pulses), func(i int) bool { return pulses[i] >= pulse })
		if i < len(pulses) && pulses[i] == pulse {
			wanted = append(wanted, src)
		}
	}

	var (
		mu      sync.Mutex
		missing []model.SourceID
		cause   error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range wanted {
		g.Go(func() error {
			data, err := s.readOne(gctx, entry, src, pulse)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				missing = append(missing, src)
				if cause == nil {
					cause = err
				}
				return nil
			}
			rec.Data[src] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int64
	for _, d := range rec.Data {
		total += int64(len(d))
	}
	if err := s.rc.AcquireMemory(ctx, total); err != nil {
		return nil, err
	}
	s.held = total

	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		s.log.Warn("record has missing data",
			"token", tok.String(), "train", uint64(entry.ID), "pulse", uint32(pulse),
			"sources", len(missing), "error", cause,
		)
		return rec, &MissingDataError{
			Token:   tok,
			Train:   entry.ID,
			Pulse:   pulse,
			Sources: missing,
			cause:   cause,
		}
	}
	return rec, nil
}

func (s *Stream) readOne(ctx context.Context, entry *index.TrainEntry, src model.SourceID, pulse model.PulseID) ([]byte, error) {
	shard, ok := entry.SourceShard(src)
	if !ok {
		return nil, fmt.Errorf("source %s does not cover train %d", src, entry.ID)
	}

	if err := s.rc.AcquireRead(ctx); err != nil {
		return nil, err
	}
	defer s.rc.ReleaseRead()

	h, err := s.pool.Acquire(ctx, shard.Name)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	data, err := h.Reader().Read(ctx, src, entry.ID, pulse)
	if err != nil {
		return nil, err
	}

	if err := s.rc.AcquireIO(ctx, len(data)); err != nil {
		return nil, err
	}
	return data, nil
}
