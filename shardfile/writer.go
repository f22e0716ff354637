package shardfile

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/beamkit/runindex/blobstore"
	"github.com/beamkit/runindex/model"
)

// Writer assembles a shard container in memory. Payloads for one
// (source, train) must be appended in ascending pulse order; sources
// and trains may arrive in any order.
//
// Not safe for concurrent use.
type Writer struct {
	codec  Codec
	blocks bytes.Buffer
	meta   metadata
	trains map[model.TrainID]struct{}
}

// NewWriter creates a Writer using the given block codec.
func NewWriter(codec Codec) *Writer {
	return &Writer{
		codec: codec,
		meta: metadata{
			Sources: make(map[model.SourceID]*sourceMeta),
		},
		trains: make(map[model.TrainID]struct{}),
	}
}

// Append records one payload for (source, train, pulse).
func (w *Writer) Append(src model.SourceInfo, train model.TrainID, pulse model.PulseID, data []byte) error {
	sm, ok := w.meta.Sources[src.ID]
	if !ok {
		sm = &sourceMeta{Kind: src.Kind, Trains: make(map[model.TrainID]*trainMeta)}
		w.meta.Sources[src.ID] = sm
	}
	tm, ok := sm.Trains[train]
	if !ok {
		tm = &trainMeta{}
		sm.Trains[train] = tm
	}
	if n := len(tm.Pulses); n > 0 && pulse <= tm.Pulses[n-1] {
		return fmt.Errorf("shardfile: pulse %d for %s train %d not ascending", pulse, src.ID, train)
	}

	comp, err := w.codec.compress(data)
	if err != nil {
		return err
	}

	tm.Pulses = append(tm.Pulses, pulse)
	tm.Blocks = append(tm.Blocks, blockRef{
		Off:  uint64(headerSize + w.blocks.Len()),
		Len:  uint32(len(comp)),
		Size: uint32(len(data)),
		CRC:  crc32.ChecksumIEEE(data),
	})
	w.trains[train] = struct{}{}
	w.blocks.Write(comp)
	return nil
}

// Bytes assembles and returns the complete container.
func (w *Writer) Bytes() ([]byte, error) {
	w.meta.Trains = make([]model.TrainID, 0, len(w.trains))
	for id := range w.trains {
		w.meta.Trains = append(w.meta.Trains, id)
	}
	sort.Slice(w.meta.Trains, func(i, j int) bool { return w.meta.Trains[i] < w.meta.Trains[j] })

	raw, err := json.Marshal(&w.meta)
	if err != nil {
		return nil, err
	}
	metaComp, err := w.codec.compress(raw)
	if err != nil {
		return nil, err
	}

	hdr := fileHeader{
		Magic:   Magic,
		Version: Version,
		Codec:   uint8(w.codec),
		MetaOff: uint64(headerSize + w.blocks.Len()),
		MetaLen: uint64(len(metaComp)),
		MetaCRC: crc32.ChecksumIEEE(metaComp),
	}

	var out bytes.Buffer
	out.Grow(headerSize + w.blocks.Len() + len(metaComp))
	if err := binary.Write(&out, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	out.Write(w.blocks.Bytes())
	out.Write(metaComp)
	return out.Bytes(), nil
}

// Put assembles the container and stores it under name.
func (w *Writer) Put(ctx context.Context, store blobstore.WritableBlobStore, name string) error {
	data, err := w.Bytes()
	if err != nil {
		return err
	}
	return store.Put(ctx, name, data)
}
