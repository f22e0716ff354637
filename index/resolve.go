package index

import (
	"path"
	"sort"

	"github.com/beamkit/runindex/model"
)

// Address resolution. Every scheme resolves into canonical Tokens
// (flat indices). Resolution is pure: no I/O, only index lookups.

// Locate maps a token back to its train entry and pulse ID.
func (x *Index) Locate(tok model.Token) (*TrainEntry, model.PulseID, error) {
	if uint64(tok) >= x.total {
		return nil, 0, &ErrOutOfRange{Scheme: "flat index", Value: uint64(tok)}
	}

	// Last entry with FlatBase <= tok. Entries with no pulses share a
	// FlatBase with their successor and never own a token.
	i := sort.Search(len(x.entries), func(i int) bool {
		return x.entries[i].FlatBase > tok
	}) - 1
	e := x.entries[i]

	return e, e.Pulses[tok-e.FlatBase], nil
}

// ResolveFlat validates a single flat index.
func (x *Index) ResolveFlat(flat uint64) (model.Token, error) {
	if flat >= x.total {
		return 0, &ErrOutOfRange{Scheme: "flat index", Value: flat}
	}
	return model.Token(flat), nil
}

// ResolveFlatRange resolves the half-open flat range [lo, hi).
func (x *Index) ResolveFlatRange(lo, hi uint64) ([]model.Token, error) {
	if lo > hi || hi > x.total {
		return nil, &ErrOutOfRange{Scheme: "flat index", Value: hi}
	}
	out := make([]model.Token, 0, hi-lo)
	for f := lo; f < hi; f++ {
		out = append(out, model.Token(f))
	}
	return out, nil
}

// ResolveTrain resolves an absolute train ID to tokens: all of the
// train's pulses, or only the given ones.
func (x *Index) ResolveTrain(id model.TrainID, pulses ...model.PulseID) ([]model.Token, error) {
	e, err := x.EntryByID(id)
	if err != nil {
		return nil, err
	}
	return e.tokens(pulses)
}

// ResolveRel resolves a relative train index to tokens.
func (x *Index) ResolveRel(rel int, pulses ...model.PulseID) ([]model.Token, error) {
	e, err := x.Entry(rel)
	if err != nil {
		return nil, err
	}
	return e.tokens(pulses)
}

func (e *TrainEntry) tokens(pulses []model.PulseID) ([]model.Token, error) {
	if len(pulses) == 0 {
		out := make([]model.Token, len(e.Pulses))
		for i := range e.Pulses {
			out[i] = e.FlatBase + model.Token(i)
		}
		return out, nil
	}

	out := make([]model.Token, 0, len(pulses))
	for _, p := range pulses {
		off, ok := e.pulseOffset(p)
		if !ok {
			return nil, &ErrOutOfRange{Scheme: "pulse id", Value: uint64(p)}
		}
		out = append(out, e.FlatBase+model.Token(off))
	}
	return out, nil
}

func (e *TrainEntry) pulseOffset(p model.PulseID) (int, bool) {
	i := sort.Search(len(e.Pulses), func(i int) bool { return e.Pulses[i] >= p })
	if i < len(e.Pulses) && e.Pulses[i] == p {
		return i, true
	}
	return 0, false
}

// ResolveSource resolves the tokens a source actually covers,
// optionally restricted to the given trains.
func (x *Index) ResolveSource(src model.SourceID, trains ...model.TrainID) ([]model.Token, error) {
	if !x.HasSource(src) {
		return nil, &ErrUnknownSource{Source: src}
	}

	scope := x.entries
	if len(trains) > 0 {
		scope = make([]*TrainEntry, 0, len(trains))
		for _, id := range trains {
			e, err := x.EntryByID(id)
			if err != nil {
				return nil, err
			}
			scope = append(scope, e)
		}
	}

	var out []model.Token
	for _, e := range scope {
		slot, ok := e.slots[src]
		if !ok {
			continue
		}
		for _, p := range slot.pulses {
			if off, ok := e.pulseOffset(p); ok {
				out = append(out, e.FlatBase+model.Token(off))
			}
		}
	}
	return out, nil
}

// ResolveTrainRange resolves the half-open absolute train ID range
// [lo, hi) to tokens. The bounds need not be trains the run has:
// a lo before the first train clips to the run start, a hi past the
// last train clips to the run end. A lo past the run, or a hi before
// it, is out of range.
func (x *Index) ResolveTrainRange(lo, hi model.TrainID) ([]model.Token, error) {
	if lo > x.LastTrain() {
		return nil, &ErrOutOfRange{Scheme: "train id", Value: uint64(lo)}
	}
	if hi <= x.FirstTrain() {
		return nil, &ErrOutOfRange{Scheme: "train id", Value: uint64(hi)}
	}

	start := sort.Search(len(x.entries), func(i int) bool { return x.entries[i].ID >= lo })
	end := sort.Search(len(x.entries), func(i int) bool { return x.entries[i].ID >= hi })
	return x.relSpanTokens(start, end), nil
}

// ResolveRelRange resolves the half-open relative index range [lo, hi)
// with slice semantics: bounds are clamped, never an error.
func (x *Index) ResolveRelRange(lo, hi int) []model.Token {
	if lo < 0 {
		lo = 0
	}
	if hi > len(x.entries) {
		hi = len(x.entries)
	}
	if lo >= hi {
		return nil
	}
	return x.relSpanTokens(lo, hi)
}

func (x *Index) relSpanTokens(lo, hi int) []model.Token {
	var out []model.Token
	for _, e := range x.entries[lo:hi] {
		for i := range e.Pulses {
			out = append(out, e.FlatBase+model.Token(i))
		}
	}
	return out
}

// MatchSources returns the IDs of all sources matching the glob
// pattern, sorted. A pattern with no matches is an unknown source.
func (x *Index) MatchSources(pattern string) ([]model.SourceID, error) {
	var out []model.SourceID
	for id := range x.sources {
		if ok, err := path.Match(pattern, string(id)); err == nil && ok {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil, &ErrUnknownSource{Source: model.SourceID(pattern)}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
