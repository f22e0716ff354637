package runindex_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	runindex "github.com/beamkit/runindex"
	"github.com/beamkit/runindex/blobstore"
	"github.com/beamkit/runindex/model"
	"github.com/beamkit/runindex/shardfile"
	"github.com/beamkit/runindex/validate"
)

func TestReport_Contents(t *testing.T) {
	run := openRun(t)
	rep := run.Report()

	assert.Equal(t, 3, rep.Shards)
	assert.Empty(t, rep.UnreadableShards)
	assert.Equal(t, 4, rep.Trains)
	assert.Equal(t, uint64(8), rep.Records)
	assert.Equal(t, model.TrainID(100), rep.FirstTrain)
	assert.Equal(t, model.TrainID(103), rep.LastTrain)
	assert.Equal(t, []model.SourceID{detSrc.ID}, rep.InstrumentSources)
	assert.Equal(t, []model.SourceID{motorSrc.ID}, rep.ControlSources)
	assert.InDelta(t, 0.4, rep.Duration(), 1e-9)

	s := rep.Summary()
	assert.Contains(t, s, "# of trains:    4")
	assert.Contains(t, s, "First train ID: 100")
	assert.Contains(t, s, "Last train ID:  103")
	assert.Contains(t, s, "1 instrument sources:")
	assert.Contains(t, s, string(detSrc.ID))
}

func TestReport_UnknownKindListedAsControl(t *testing.T) {
	store := blobstore.NewMemoryStore()
	ctx := context.Background()

	// A reader that cannot classify the source reports KindUnknown.
	src := model.SourceInfo{ID: "XMPL/GEN/DEV"}
	w := shardfile.NewWriter(shardfile.CodecNone)
	require.NoError(t, w.Append(src, 100, 0, []byte{1}))
	require.NoError(t, w.Put(ctx, store, "r0001-s00.rshard"))

	run, err := runindex.Open(ctx, store, shardfile.Format{})
	require.NoError(t, err)
	defer run.Close()

	rep := run.Report()
	assert.Empty(t, rep.InstrumentSources)
	assert.Equal(t, []model.SourceID{src.ID}, rep.ControlSources)
}

func TestReport_UnreadableShard(t *testing.T) {
	store := blobstore.NewMemoryStore()
	writeRun(t, store)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "broken.rshard", bytes.Repeat([]byte{0xAB}, 64)))

	run, err := runindex.Open(ctx, store, shardfile.Format{})
	require.NoError(t, err)
	defer run.Close()

	rep := run.Report()
	assert.Equal(t, 4, rep.Shards)
	assert.Equal(t, []string{"broken.rshard"}, rep.UnreadableShards)
	// The healthy shards still make up the full run.
	assert.Equal(t, 4, rep.Trains)

	require.NotEmpty(t, rep.Warnings)
	assert.Equal(t, validate.CodeUnreadableShard, rep.Warnings[0].Code)
	assert.Equal(t, "broken.rshard", rep.Warnings[0].Shard)
	assert.Contains(t, rep.Summary(), "broken.rshard")
}
