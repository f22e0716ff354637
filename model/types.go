package model

import (
	"fmt"
)

// TrainID is the absolute identifier of one acquisition window.
// Train IDs are assigned by the facility timing system and are unique
// and monotonically increasing within a run, but not dense.
type TrainID uint64

// PulseID identifies one pulse within a train. Pulse IDs are local to
// a train and ascending, but not necessarily contiguous.
type PulseID uint32

// Token is the canonical address of one (train, pulse) pair: the flat
// index spanning the whole run in (relative train, pulse id) order.
// Every alternate addressing scheme resolves into a Token.
type Token uint64

// String returns a string representation of the Token.
func (t Token) String() string {
	return fmt.Sprintf("Tok(%d)", uint64(t))
}

// SourceID names a data-producing channel, e.g. a detector module
// ("SPB_DET_AGIPD1M-1/DET/7CH0:xtdf") or a slow control device.
type SourceID string

// SourceKind distinguishes fast (per-pulse) from slow (per-train)
// sources.
type SourceKind uint8

const (
	// KindUnknown is the zero value; readers that cannot classify a
	// source report it as unknown and it is treated like KindControl.
	KindUnknown SourceKind = iota
	// KindInstrument marks fast, high-rate sources with per-pulse data.
	KindInstrument
	// KindControl marks slow, low-rate sources with one value per train.
	KindControl
)

// String returns the lowercase name of the kind.
func (k SourceKind) String() string {
	switch k {
	case KindInstrument:
		return "instrument"
	case KindControl:
		return "control"
	default:
		return "unknown"
	}
}

// SourceInfo describes one source as reported by a shard reader.
type SourceInfo struct {
	ID   SourceID
	Kind SourceKind
}

// Record is one materialized unit of reconstructed data: a single
// (train, pulse) pair across the requested sources. Data holds the raw
// payload per source; the engine never interprets it.
//
// A Record borrows nothing from the underlying shards; the payload
// slices are owned by the consumer once Next returns.
type Record struct {
	Token Token
	Train TrainID
	// Rel is the 0-based relative train index within the run.
	Rel   int
	Pulse PulseID
	Data  map[SourceID][]byte
}

// TrainData is one fully assembled train across sources: for every
// source, one payload slice per pulse, aligned with Pulses.
// A nil inner slice marks a pulse the source has no data for.
type TrainData struct {
	ID     TrainID
	Rel    int
	Pulses []PulseID
	Data   map[SourceID][][]byte
}
