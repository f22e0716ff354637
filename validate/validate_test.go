package validate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamkit/runindex/model"
	"github.com/beamkit/runindex/scan"
)

func shard(name string, src model.SourceID, kind model.SourceKind, trains []model.TrainID, pulsesPerTrain int) *scan.Shard {
	pulses := make([][]model.PulseID, len(trains))
	for i := range trains {
		ids := make([]model.PulseID, pulsesPerTrain)
		for p := range ids {
			ids[p] = model.PulseID(p)
		}
		pulses[i] = ids
	}
	return &scan.Shard{
		Name:    name,
		Sources: []model.SourceInfo{{ID: src, Kind: kind}},
		Trains:  trains,
		Pulses:  map[model.SourceID][][]model.PulseID{src: pulses},
	}
}

func warningsByCode(ws []Warning, code Code) []Warning {
	var out []Warning
	for _, w := range ws {
		if w.Code == code {
			out = append(out, w)
		}
	}
	return out
}

func TestRun_UnionAcrossSources(t *testing.T) {
	// Source A with trains [100,101,102], Source B with [101,102,103]:
	// the run covers the union, each source is partial for the rest.
	shards := []*scan.Shard{
		shard("a.shard", "SRC/A", model.KindInstrument, []model.TrainID{100, 101, 102}, 2),
		shard("b.shard", "SRC/B", model.KindInstrument, []model.TrainID{101, 102, 103}, 2),
	}

	res := Run(shards, Config{})

	assert.Equal(t, uint64(4), res.Union.GetCardinality())
	require.Contains(t, res.Sources, model.SourceID("SRC/A"))
	require.Contains(t, res.Sources, model.SourceID("SRC/B"))

	partial := warningsByCode(res.Warnings, CodePartialCoverage)
	require.Len(t, partial, 2)
	assert.Equal(t, model.SourceID("SRC/A"), partial[0].Source)
	assert.Equal(t, []model.TrainID{103}, partial[0].Trains)
	assert.Equal(t, model.SourceID("SRC/B"), partial[1].Source)
	assert.Equal(t, []model.TrainID{100}, partial[1].Trains)
}

func TestRun_FanOutIntersection(t *testing.T) {
	// 16-shard convention source where one shard reports a different
	// train list: indexing proceeds on the intersection.
	var shards []*scan.Shard
	for i := 0; i < 15; i++ {
		shards = append(shards,
			shard(fmt.Sprintf("det-%02d.shard", i), "DET/MOD", model.KindInstrument,
				[]model.TrainID{10, 11, 12}, 1))
	}
	shards = append(shards,
		shard("det-15.shard", "DET/MOD", model.KindInstrument,
			[]model.TrainID{10, 11, 12, 13}, 1))

	res := Run(shards, Config{FanOut: []FanOutRule{{Pattern: "DET/*", N: 16}}})

	cov := res.Sources["DET/MOD"]
	require.NotNil(t, cov)
	assert.Equal(t, uint64(3), cov.Safe.GetCardinality())
	assert.False(t, cov.Safe.Contains(13))

	partial := warningsByCode(res.Warnings, CodePartialCoverage)
	require.Len(t, partial, 1)
	assert.Equal(t, "det-15.shard", partial[0].Shard)
	assert.Equal(t, []model.TrainID{13}, partial[0].Trains)

	assert.Empty(t, warningsByCode(res.Warnings, CodeShardCountMismatch))
}

func TestRun_FanOutDisjointShardExcluded(t *testing.T) {
	// One shard of a 16-shard convention group reporting an entirely
	// different train list must not empty the intersection of the
	// other fifteen.
	var shards []*scan.Shard
	for i := 0; i < 15; i++ {
		shards = append(shards,
			shard(fmt.Sprintf("det-%02d.shard", i), "DET/MOD", model.KindInstrument,
				[]model.TrainID{10, 11, 12}, 1))
	}
	shards = append(shards,
		shard("det-15.shard", "DET/MOD", model.KindInstrument,
			[]model.TrainID{900, 901}, 1))

	res := Run(shards, Config{FanOut: []FanOutRule{{Pattern: "DET/*", N: 16}}})

	cov := res.Sources["DET/MOD"]
	require.NotNil(t, cov)
	assert.Equal(t, []uint64{10, 11, 12}, cov.Safe.ToArray())

	partial := warningsByCode(res.Warnings, CodePartialCoverage)
	require.Len(t, partial, 1)
	assert.Equal(t, "det-15.shard", partial[0].Shard)
	assert.Equal(t, []model.TrainID{900, 901}, partial[0].Trains)
	assert.Empty(t, warningsByCode(res.Warnings, CodeSourceUnavailable))
}

func TestRun_FanOutShardCountMismatch(t *testing.T) {
	shards := []*scan.Shard{
		shard("det-00.shard", "DET/MOD", model.KindInstrument, []model.TrainID{10}, 1),
		shard("det-01.shard", "DET/MOD", model.KindInstrument, []model.TrainID{10}, 1),
	}

	res := Run(shards, Config{FanOut: []FanOutRule{{Pattern: "DET/*", N: 16}}})

	warns := warningsByCode(res.Warnings, CodeShardCountMismatch)
	require.Len(t, warns, 1)
	assert.Equal(t, model.SourceID("DET/MOD"), warns[0].Source)
	require.Contains(t, res.Sources, model.SourceID("DET/MOD"))
}

func TestRun_PulseCountMismatchTakesMinimum(t *testing.T) {
	a := shard("a.shard", "DET/MOD", model.KindInstrument, []model.TrainID{10}, 3)
	b := shard("b.shard", "DET/MOD", model.KindInstrument, []model.TrainID{10}, 2)

	res := Run([]*scan.Shard{a, b}, Config{FanOut: []FanOutRule{{Pattern: "DET/*", N: 2}}})

	cov := res.Sources["DET/MOD"]
	require.NotNil(t, cov)
	assert.Equal(t, []model.PulseID{0, 1}, cov.Pulses[10])
	assert.Equal(t, "b.shard", cov.ShardFor[10].Name)

	warns := warningsByCode(res.Warnings, CodePulseCountMismatch)
	require.Len(t, warns, 1)
	assert.Equal(t, []model.TrainID{10}, warns[0].Trains)
}

func TestRun_SourceUnavailable(t *testing.T) {
	// Disjoint train sets under a convention: empty intersection.
	a := shard("a.shard", "DET/MOD", model.KindInstrument, []model.TrainID{10}, 1)
	b := shard("b.shard", "DET/MOD", model.KindInstrument, []model.TrainID{20}, 1)
	c := shard("c.shard", "SRC/OK", model.KindControl, []model.TrainID{10, 20}, 1)

	res := Run([]*scan.Shard{a, b, c}, Config{FanOut: []FanOutRule{{Pattern: "DET/*", N: 2}}})

	assert.NotContains(t, res.Sources, model.SourceID("DET/MOD"))
	assert.Contains(t, res.Sources, model.SourceID("SRC/OK"))
	assert.Equal(t, uint64(2), res.Union.GetCardinality())

	warns := warningsByCode(res.Warnings, CodeSourceUnavailable)
	require.Len(t, warns, 1)
	assert.Equal(t, model.SourceID("DET/MOD"), warns[0].Source)
}

func TestRun_SequenceShardsUnion(t *testing.T) {
	// The same source split over time-sliced sequence files.
	a := shard("s00.shard", "SRC/A", model.KindControl, []model.TrainID{10, 11}, 1)
	b := shard("s01.shard", "SRC/A", model.KindControl, []model.TrainID{12, 13}, 1)

	res := Run([]*scan.Shard{a, b}, Config{})

	cov := res.Sources["SRC/A"]
	require.NotNil(t, cov)
	assert.Equal(t, uint64(4), cov.Safe.GetCardinality())
	assert.Equal(t, "s00.shard", cov.ShardFor[11].Name)
	assert.Equal(t, "s01.shard", cov.ShardFor[12].Name)
	assert.Empty(t, res.Warnings)
}

func TestRun_Deterministic(t *testing.T) {
	shards := []*scan.Shard{
		shard("a.shard", "SRC/A", model.KindInstrument, []model.TrainID{100, 101, 102}, 2),
		shard("b.shard", "SRC/B", model.KindInstrument, []model.TrainID{101, 102, 103}, 2),
	}

	r1 := Run(shards, Config{})
	r2 := Run(shards, Config{})
	assert.Equal(t, r1.Warnings, r2.Warnings)
	assert.True(t, r1.Union.Equals(r2.Union))
}
