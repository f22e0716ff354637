package shardfile

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"sort"
	"strings"

	"github.com/beamkit/runindex/blobstore"
	"github.com/beamkit/runindex/model"
	"github.com/beamkit/runindex/scan"
)

// Format recognizes and opens shard containers. The zero value is
// ready to use.
type Format struct{}

// Match accepts blob names ending in the container extension.
func (Format) Match(name string) bool {
	return strings.HasSuffix(name, Ext)
}

// Open reads the header and metadata of the named container and
// returns a reader over it. Payload blocks are fetched on demand.
func (Format) Open(ctx context.Context, store blobstore.BlobStore, name string) (scan.Reader, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}

	r, err := open(ctx, blob)
	if err != nil {
		blob.Close()
		return nil, fmt.Errorf("shardfile: open %s: %w", name, err)
	}
	return r, nil
}

func open(ctx context.Context, blob blobstore.Blob) (*reader, error) {
	var buf [headerSize]byte
	if _, err := blob.ReadAt(ctx, buf[:], 0); err != nil {
		return nil, err
	}

	var hdr fileHeader
	if err := binary.Read(bytes.NewReader(buf[:]), binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	if hdr.Magic != Magic {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrBadMagic, hdr.Magic)
	}
	if hdr.Version != Version {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrBadVersion, hdr.Version)
	}
	codec := Codec(hdr.Codec)
	if codec > CodecLZ4 {
		return nil, fmt.Errorf("%w: %d", ErrBadCodec, hdr.Codec)
	}

	metaComp := make([]byte, hdr.MetaLen)
	if _, err := blob.ReadAt(ctx, metaComp, int64(hdr.MetaOff)); err != nil {
		return nil, err
	}
	if sum := crc32.ChecksumIEEE(metaComp); sum != hdr.MetaCRC {
		return nil, &ChecksumError{Expected: hdr.MetaCRC, Actual: sum}
	}
	raw, err := codec.decompress(metaComp)
	if err != nil {
		return nil, err
	}

	var meta metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}

	infos := make([]model.SourceInfo, 0, len(meta.Sources))
	for id, sm := range meta.Sources {
		infos = append(infos, model.SourceInfo{ID: id, Kind: sm.Kind})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	return &reader{blob: blob, codec: codec, meta: meta, infos: infos}, nil
}

type reader struct {
	blob  blobstore.Blob
	codec Codec
	meta  metadata
	infos []model.SourceInfo
}

func (r *reader) Sources() []model.SourceInfo {
	return r.infos
}

func (r *reader) Trains() []model.TrainID {
	return r.meta.Trains
}

func (r *reader) trainMeta(source model.SourceID, train model.TrainID) (*trainMeta, error) {
	sm, ok := r.meta.Sources[source]
	if !ok {
		return nil, fmt.Errorf("shardfile: source %s not in shard", source)
	}
	return sm.Trains[train], nil
}

func (r *reader) PulseCount(_ context.Context, source model.SourceID, train model.TrainID) (int, error) {
	tm, err := r.trainMeta(source, train)
	if err != nil || tm == nil {
		return 0, err
	}
	return len(tm.Pulses), nil
}

// PulseIDs lets the scanner pick up recorded pulse IDs instead of
// assuming a dense 0..n-1 range.
func (r *reader) PulseIDs(_ context.Context, source model.SourceID, train model.TrainID) ([]model.PulseID, error) {
	tm, err := r.trainMeta(source, train)
	if err != nil || tm == nil {
		return nil, err
	}
	return tm.Pulses, nil
}

func (r *reader) Read(ctx context.Context, source model.SourceID, train model.TrainID, pulse model.PulseID) ([]byte, error) {
	tm, err := r.trainMeta(source, train)
	if err != nil {
		return nil, err
	}
	if tm == nil {
		return nil, fmt.Errorf("shardfile: source %s has no train %d", source, train)
	}

	i := sort.Search(len(tm.Pulses), func(i int) bool { return tm.Pulses[i] >= pulse })
	if i >= len(tm.Pulses) || tm.Pulses[i] != pulse {
		return nil, fmt.Errorf("shardfile: source %s train %d has no pulse %d", source, train, pulse)
	}
	ref := tm.Blocks[i]

	comp := make([]byte, ref.Len)
	if _, err := r.blob.ReadAt(ctx, comp, int64(ref.Off)); err != nil {
		return nil, err
	}
	data, err := r.codec.decompress(comp)
	if err != nil {
		return nil, err
	}
	if uint32(len(data)) != ref.Size {
		return nil, fmt.Errorf("shardfile: block size mismatch: expected %d, got %d", ref.Size, len(data))
	}
	if sum := crc32.ChecksumIEEE(data); sum != ref.CRC {
		return nil, &ChecksumError{Expected: ref.CRC, Actual: sum}
	}
	return data, nil
}

func (r *reader) Close() error {
	return r.blob.Close()
}
