package scan_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamkit/runindex/model"
	"github.com/beamkit/runindex/scan"
	"github.com/beamkit/runindex/scan/scantest"
)

func fixture() *scantest.Format {
	f := scantest.NewFormat()
	f.Add("r0001-s00.fake", &scantest.ShardFixture{
		Trains: []model.TrainID{100, 101, 102},
		Sources: map[model.SourceID]*scantest.SourceData{
			"DET/0CH0": {
				Kind: model.KindInstrument,
				Pulses: map[model.TrainID][]model.PulseID{
					100: {0, 1}, 101: {0, 1}, 102: {0, 1},
				},
			},
			"MOTOR/X": {
				Kind: model.KindControl,
				Pulses: map[model.TrainID][]model.PulseID{
					100: {0}, 101: {0}, 102: {0},
				},
			},
		},
	})
	f.Add("r0001-s01.fake", &scantest.ShardFixture{
		Trains: []model.TrainID{103, 104},
		Sources: map[model.SourceID]*scantest.SourceData{
			"DET/0CH0": {
				Kind: model.KindInstrument,
				Pulses: map[model.TrainID][]model.PulseID{
					103: {0, 1}, 104: {0},
				},
			},
		},
	})
	return f
}

func TestScanner_Scan(t *testing.T) {
	f := fixture()
	s := scan.NewScanner(f.Store(), f, nil, nil)

	shards, faults, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, faults)
	require.Len(t, shards, 2)

	// Name order, regardless of scan parallelism.
	assert.Equal(t, "r0001-s00.fake", shards[0].Name)
	assert.Equal(t, "r0001-s01.fake", shards[1].Name)

	s0 := shards[0]
	assert.Equal(t, []model.TrainID{100, 101, 102}, s0.Trains)
	require.Len(t, s0.Sources, 2)
	assert.Equal(t, model.SourceID("DET/0CH0"), s0.Sources[0].ID)
	assert.Equal(t, model.KindInstrument, s0.Sources[0].Kind)
	assert.Equal(t, []model.PulseID{0, 1}, s0.Pulses["DET/0CH0"][0])
	assert.Equal(t, []model.PulseID{0}, s0.Pulses["MOTOR/X"][2])

	// No handles survive the scan phase.
	assert.Equal(t, int64(0), f.OpenHandles())
}

func TestScanner_UnreadableShardIsFaultNotError(t *testing.T) {
	f := fixture()
	f.Add("r0001-s02.fake", &scantest.ShardFixture{Corrupt: true})

	s := scan.NewScanner(f.Store(), f, nil, nil)
	shards, faults, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Len(t, shards, 2)
	require.Len(t, faults, 1)
	assert.Equal(t, "r0001-s02.fake", faults[0].Name)
	assert.ErrorIs(t, faults[0], scantest.ErrCorrupt)
}

func TestScanner_IgnoresForeignBlobs(t *testing.T) {
	f := fixture()
	store := f.Store()
	wr := store.(interface {
		Put(ctx context.Context, name string, data []byte) error
	})
	require.NoError(t, wr.Put(context.Background(), "notes.txt", []byte("hi")))

	s := scan.NewScanner(store, f, nil, nil)
	shards, faults, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, faults)
	assert.Len(t, shards, 2)
}

func TestScanner_Cancel(t *testing.T) {
	f := fixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := scan.NewScanner(f.Store(), f, nil, nil)
	_, _, err := s.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
