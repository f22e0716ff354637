package shardfile_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamkit/runindex/blobstore"
	"github.com/beamkit/runindex/model"
	"github.com/beamkit/runindex/scan"
	"github.com/beamkit/runindex/shardfile"
)

var (
	srcA = model.SourceInfo{ID: "SPB/DET/MOD0", Kind: model.KindInstrument}
	srcB = model.SourceInfo{ID: "SPB/MOTOR/X", Kind: model.KindControl}
)

// writeShard builds a two-source container: the instrument source has
// two pulses per train, the control source one.
func writeShard(t *testing.T, codec shardfile.Codec, name string) blobstore.WritableBlobStore {
	t.Helper()

	w := shardfile.NewWriter(codec)
	for _, train := range []model.TrainID{10, 11, 12} {
		for _, pulse := range []model.PulseID{0, 1} {
			data := bytes.Repeat([]byte{byte(train), byte(pulse)}, 64)
			require.NoError(t, w.Append(srcA, train, pulse, data))
		}
		require.NoError(t, w.Append(srcB, train, 0, []byte{byte(train)}))
	}

	store := blobstore.NewMemoryStore()
	require.NoError(t, w.Put(context.Background(), store, name))
	return store
}

func TestRoundTrip(t *testing.T) {
	for _, codec := range []shardfile.Codec{shardfile.CodecNone, shardfile.CodecZstd, shardfile.CodecLZ4} {
		t.Run(codec.String(), func(t *testing.T) {
			store := writeShard(t, codec, "r0010-s00.rshard")

			ctx := context.Background()
			r, err := shardfile.Format{}.Open(ctx, store, "r0010-s00.rshard")
			require.NoError(t, err)
			defer r.Close()

			assert.Equal(t, []model.SourceInfo{srcA, srcB}, r.Sources())
			assert.Equal(t, []model.TrainID{10, 11, 12}, r.Trains())

			n, err := r.PulseCount(ctx, srcA.ID, 11)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			lister, ok := r.(scan.PulseLister)
			require.True(t, ok)
			ids, err := lister.PulseIDs(ctx, srcB.ID, 12)
			require.NoError(t, err)
			assert.Equal(t, []model.PulseID{0}, ids)

			data, err := r.Read(ctx, srcA.ID, 11, 1)
			require.NoError(t, err)
			assert.Equal(t, bytes.Repeat([]byte{11, 1}, 64), data)

			data, err = r.Read(ctx, srcB.ID, 10, 0)
			require.NoError(t, err)
			assert.Equal(t, []byte{10}, data)
		})
	}
}

func TestRead_AbsentAddress(t *testing.T) {
	store := writeShard(t, shardfile.CodecZstd, "x.rshard")
	ctx := context.Background()

	r, err := shardfile.Format{}.Open(ctx, store, "x.rshard")
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Read(ctx, "NO/SUCH/SRC", 10, 0)
	assert.Error(t, err)
	_, err = r.Read(ctx, srcB.ID, 10, 1)
	assert.Error(t, err)
	_, err = r.Read(ctx, srcA.ID, 99, 0)
	assert.Error(t, err)
}

func TestWriter_PulsesMustAscend(t *testing.T) {
	w := shardfile.NewWriter(shardfile.CodecNone)
	require.NoError(t, w.Append(srcA, 10, 1, []byte("a")))
	assert.Error(t, w.Append(srcA, 10, 1, []byte("b")))
	assert.Error(t, w.Append(srcA, 10, 0, []byte("c")))
	// Other trains are unaffected.
	assert.NoError(t, w.Append(srcA, 11, 0, []byte("d")))
}

func TestOpen_RejectsGarbage(t *testing.T) {
	store := blobstore.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "junk.rshard", bytes.Repeat([]byte{0xFF}, 128)))
	_, err := shardfile.Format{}.Open(ctx, store, "junk.rshard")
	assert.ErrorIs(t, err, shardfile.ErrBadMagic)
}

func TestOpen_DetectsMetadataCorruption(t *testing.T) {
	store := writeShard(t, shardfile.CodecZstd, "x.rshard")
	ctx := context.Background()

	blob, err := store.Open(ctx, "x.rshard")
	require.NoError(t, err)
	data := make([]byte, blob.Size())
	_, err = blob.ReadAt(ctx, data, 0)
	require.NoError(t, err)
	require.NoError(t, blob.Close())

	// Flip a bit in the metadata section at the end of the blob.
	data[len(data)-1] ^= 0x01
	require.NoError(t, store.Put(ctx, "x.rshard", data))

	_, err = shardfile.Format{}.Open(ctx, store, "x.rshard")
	var ce *shardfile.ChecksumError
	assert.ErrorAs(t, err, &ce)
}

func TestRead_DetectsBlockCorruption(t *testing.T) {
	store := writeShard(t, shardfile.CodecNone, "x.rshard")
	ctx := context.Background()

	blob, err := store.Open(ctx, "x.rshard")
	require.NoError(t, err)
	data := make([]byte, blob.Size())
	_, err = blob.ReadAt(ctx, data, 0)
	require.NoError(t, err)
	require.NoError(t, blob.Close())

	// First payload block sits right after the header.
	data[48] ^= 0x01
	require.NoError(t, store.Put(ctx, "x.rshard", data))

	r, err := shardfile.Format{}.Open(ctx, store, "x.rshard")
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Read(ctx, srcA.ID, 10, 0)
	var ce *shardfile.ChecksumError
	assert.ErrorAs(t, err, &ce)
}

func TestScannerIntegration(t *testing.T) {
	store := writeShard(t, shardfile.CodecLZ4, "r0010-s00.rshard")

	sc := scan.NewScanner(store, shardfile.Format{}, nil, nil)
	shards, faults, err := sc.Scan(context.Background())
	require.NoError(t, err)
	require.Empty(t, faults)
	require.Len(t, shards, 1)

	sh := shards[0]
	assert.Equal(t, "r0010-s00.rshard", sh.Name)
	assert.Equal(t, []model.TrainID{10, 11, 12}, sh.Trains)
	assert.Equal(t, []model.PulseID{0, 1}, sh.Pulses[srcA.ID][0])
	assert.Equal(t, []model.PulseID{0}, sh.Pulses[srcB.ID][2])
}
