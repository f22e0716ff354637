// Package validate cross-checks the metadata of scanned shards and
// reduces it to a per-source "safe" view the index builder can trust.
//
// Validation never aborts a run for partial data. Disagreements shrink
// the safe set and are accumulated as structured warnings; only a
// source with no usable trains at all is dropped.
package validate

import (
	"fmt"
	"path"
	"slices"
	"sort"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/beamkit/runindex/model"
	"github.com/beamkit/runindex/scan"
)

// Code identifies a class of validation warning.
type Code string

const (
	// CodeUnreadableShard marks a shard whose metadata could not be
	// read. Emitted by the scanner, carried here for the report.
	CodeUnreadableShard Code = "unreadable_shard"
	// CodePartialCoverage marks trains a source does not cover even
	// though the run (or the source's own shard group) has them.
	CodePartialCoverage Code = "partial_coverage"
	// CodePulseCountMismatch marks a (source, train) whose shards
	// disagree on pulse content. The minimum count wins.
	CodePulseCountMismatch Code = "pulse_count_mismatch"
	// CodeShardCountMismatch marks a source group whose size differs
	// from the configured fan-out convention.
	CodeShardCountMismatch Code = "shard_count_mismatch"
	// CodeSourceUnavailable marks a source with no usable trains.
	// The source is absent from the index; the run continues.
	CodeSourceUnavailable Code = "source_unavailable"
)

// Warning is one structured validation finding.
type Warning struct {
	Code   Code           `json:"code"`
	Source model.SourceID `json:"source,omitempty"`
	Shard  string         `json:"shard,omitempty"`
	Trains []model.TrainID `json:"trains,omitempty"`
	Detail string         `json:"detail,omitempty"`
}

// FanOutRule declares the expected shard count for sources matching a
// glob pattern, e.g. {"*/DET/*CH0:*", 16} for a 16-file detector.
type FanOutRule struct {
	Pattern string
	N       int
}

// Config holds validation policy.
type Config struct {
	// FanOut lists the per-source shard fan-out conventions.
	// First matching rule wins. Sources without a matching rule use
	// union semantics across their shards (time-sliced sequence files).
	FanOut []FanOutRule
}

func (c Config) fanOutFor(src model.SourceID) (int, bool) {
	for _, r := range c.FanOut {
		if ok, err := path.Match(r.Pattern, string(src)); err == nil && ok {
			return r.N, true
		}
	}
	return 0, false
}

// SourceCoverage is the validated view of one source.
type SourceCoverage struct {
	Info model.SourceInfo
	// Safe is the set of trains this source can be trusted for.
	Safe *roaring64.Bitmap
	// ShardFor maps each safe train to the shard serving reads for it.
	ShardFor map[model.TrainID]*scan.Shard
	// Pulses maps each safe train to its pulse IDs after tie-breaking.
	Pulses map[model.TrainID][]model.PulseID
}

// Result is the validated metadata for one run.
type Result struct {
	// Sources holds every source that survived validation.
	Sources map[model.SourceID]*SourceCoverage
	// Union is the union of all sources' safe train sets.
	Union *roaring64.Bitmap
	// Warnings accumulates all findings, in deterministic order.
	Warnings []Warning
}

// Run validates the scanned shards under the given policy.
// It is a pure reduction: same shards and config, same result.
func Run(shards []*scan.Shard, cfg Config) *Result {
	res := &Result{
		Sources: make(map[model.SourceID]*SourceCoverage),
		Union:   roaring64.New(),
	}

	// Group shards by source, preserving shard (name) order.
	groups := make(map[model.SourceID][]*scan.Shard)
	kinds := make(map[model.SourceID]model.SourceKind)
	for _, sh := range shards {
		for _, src := range sh.Sources {
			groups[src.ID] = append(groups[src.ID], sh)
			if kinds[src.ID] == model.KindUnknown {
				kinds[src.ID] = src.Kind
			}
		}
	}

	srcIDs := make([]model.SourceID, 0, len(groups))
	for id := range groups {
		srcIDs = append(srcIDs, id)
	}
	sort.Slice(srcIDs, func(i, j int) bool { return srcIDs[i] < srcIDs[j] })

	for _, id := range srcIDs {
		cov, warns := validateSource(id, kinds[id], groups[id], cfg)
		res.Warnings = append(res.Warnings, warns...)
		if cov == nil {
			continue
		}
		res.Sources[id] = cov
		res.Union.Or(cov.Safe)
	}

	// Run-level partial coverage: trains the run has but a source lacks.
	for _, id := range srcIDs {
		cov, ok := res.Sources[id]
		if !ok {
			continue
		}
		missing := roaring64.AndNot(res.Union, cov.Safe)
		if missing.IsEmpty() {
			continue
		}
		res.Warnings = append(res.Warnings, Warning{
			Code:   CodePartialCoverage,
			Source: id,
			Trains: toTrainIDs(missing),
			Detail: fmt.Sprintf("source misses %d of %d trains in the run", missing.GetCardinality(), res.Union.GetCardinality()),
		})
	}

	return res
}

func validateSource(id model.SourceID, kind model.SourceKind, group []*scan.Shard, cfg Config) (*SourceCoverage, []Warning) {
	var warns []Warning

	fanOut, convention := cfg.fanOutFor(id)
	if convention && len(group) != fanOut {
		warns = append(warns, Warning{
			Code:   CodeShardCountMismatch,
			Source: id,
			Detail: fmt.Sprintf("expected %d shards, found %d", fanOut, len(group)),
		})
	}

	// Per-shard train sets for this source.
	sets := make([]*roaring64.Bitmap, len(group))
	for i, sh := range group {
		b := roaring64.New()
		for _, t := range sh.Trains {
			b.Add(uint64(t))
		}
		sets[i] = b
	}

	safe := roaring64.New()
	if convention {
		// "N files" convention: every shard must report the same train
		// set and the intersection is safe. A shard sharing no trains
		// with the rest of the group is set aside first, so one rogue
		// shard cannot empty the intersection of the agreeing shards.
		outlier := make([]bool, len(sets))
		if len(sets) > 1 {
			for i, s := range sets {
				others := roaring64.New()
				for j, o := range sets {
					if j != i {
						others.Or(o)
					}
				}
				outlier[i] = !s.Intersects(others)
			}
		}
		first := true
		for i, s := range sets {
			if outlier[i] {
				continue
			}
			if first {
				safe = s.Clone()
				first = false
			} else {
				safe.And(s)
			}
		}
		// All shards mutually disjoint: no agreement to build on, the
		// empty safe set falls through to SourceUnavailable below.
		if !first {
			for i, s := range sets {
				extra := roaring64.AndNot(s, safe)
				if extra.IsEmpty() {
					continue
				}
				detail := "trains outside the shard-group intersection"
				if outlier[i] {
					detail = "train set disjoint from the shard group"
				}
				warns = append(warns, Warning{
					Code:   CodePartialCoverage,
					Source: id,
					Shard:  group[i].Name,
					Trains: toTrainIDs(extra),
					Detail: detail,
				})
			}
		}
	} else {
		// Sequence shards: each covers its own train span; union them.
		for _, s := range sets {
			safe.Or(s)
		}
	}

	if len(group) == 0 || safe.IsEmpty() {
		warns = append(warns, Warning{
			Code:   CodeSourceUnavailable,
			Source: id,
			Detail: "no usable trains",
		})
		return nil, warns
	}

	cov := &SourceCoverage{
		Info:     model.SourceInfo{ID: id, Kind: kind},
		Safe:     safe,
		ShardFor: make(map[model.TrainID]*scan.Shard, safe.GetCardinality()),
		Pulses:   make(map[model.TrainID][]model.PulseID, safe.GetCardinality()),
	}

	it := safe.Iterator()
	for it.HasNext() {
		train := model.TrainID(it.Next())

		// Gather each shard's pulse list for this train.
		var chosen []model.PulseID
		var owner *scan.Shard
		mismatch := false
		for _, sh := range group {
			pos, ok := sh.TrainPos(train)
			if !ok {
				continue
			}
			pulses := sh.Pulses[id][pos]
			if owner == nil {
				owner = sh
				chosen = pulses
				continue
			}
			if !slices.Equal(pulses, chosen) {
				mismatch = true
				// Tie-break: the minimum reported count wins.
				if len(pulses) < len(chosen) {
					chosen = pulses
					owner = sh
				}
			}
		}
		if owner == nil {
			// Unreachable: safe was built from these shards' trains.
			continue
		}
		if mismatch {
			warns = append(warns, Warning{
				Code:   CodePulseCountMismatch,
				Source: id,
				Shard:  owner.Name,
				Trains: []model.TrainID{train},
				Detail: fmt.Sprintf("shards disagree on pulses for train %d; using %d pulses", train, len(chosen)),
			})
		}

		cov.ShardFor[train] = owner
		cov.Pulses[train] = chosen
	}

	return cov, warns
}

func toTrainIDs(b *roaring64.Bitmap) []model.TrainID {
	out := make([]model.TrainID, 0, b.GetCardinality())
	it := b.Iterator()
	for it.HasNext() {
		out = append(out, model.TrainID(it.Next()))
	}
	return out
}
