// Package shardfile implements the reference shard container: a
// single blob holding the payload blocks of one or more sources plus
// a compressed JSON metadata section describing trains and pulses.
//
// The layout is random-access friendly: a fixed header points at the
// metadata section, and each (source, train, pulse) payload is an
// independently compressed block addressed by offset, so a reader
// touches only the blocks it needs.
package shardfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/beamkit/runindex/model"
)

const (
	// Magic identifies shard container blobs (ASCII "RSH1").
	Magic = 0x52534831
	// Version is the current container format version.
	Version = 0x00010000

	// Ext is the blob name suffix the Format matches.
	Ext = ".rshard"

	headerSize = 40
)

var (
	ErrBadMagic   = errors.New("shardfile: bad magic number")
	ErrBadVersion = errors.New("shardfile: unsupported version")
	ErrBadCodec   = errors.New("shardfile: unknown codec")
)

// ChecksumError is returned when a block or the metadata section does
// not match its recorded CRC32.
type ChecksumError struct {
	Expected uint32
	Actual   uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("shardfile: checksum mismatch: expected 0x%08x, got 0x%08x", e.Expected, e.Actual)
}

// Codec selects the per-block compression scheme.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecZstd
	CodecLZ4
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

var (
	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder
)

func init() {
	var err error
	if zstdEnc, err = zstd.NewWriter(nil); err != nil {
		panic(err)
	}
	if zstdDec, err = zstd.NewReader(nil); err != nil {
		panic(err)
	}
}

func (c Codec) compress(data []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return data, nil
	case CodecZstd:
		return zstdEnc.EncodeAll(data, nil), nil
	case CodecLZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, ErrBadCodec
	}
}

func (c Codec) decompress(data []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return data, nil
	case CodecZstd:
		return zstdDec.DecodeAll(data, nil)
	case CodecLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	default:
		return nil, ErrBadCodec
	}
}

// fileHeader is the fixed 40-byte header at the start of every shard
// container. Little-endian, like the rest of the file.
type fileHeader struct {
	Magic    uint32
	Version  uint32
	Codec    uint8
	Pad      [3]byte
	MetaOff  uint64
	MetaLen  uint64
	MetaCRC  uint32 // CRC32 of the compressed metadata section
	Reserved [8]byte
}

// blockRef locates one payload block inside the container.
type blockRef struct {
	Off  uint64 `json:"off"`
	Len  uint32 `json:"len"`
	Size uint32 `json:"size"` // uncompressed
	CRC  uint32 `json:"crc"`  // CRC32 of the uncompressed payload
}

type trainMeta struct {
	Pulses []model.PulseID `json:"pulses"`
	Blocks []blockRef      `json:"blocks"`
}

type sourceMeta struct {
	Kind   model.SourceKind               `json:"kind"`
	Trains map[model.TrainID]*trainMeta `json:"trains"`
}

type metadata struct {
	Trains  []model.TrainID                `json:"trains"`
	Sources map[model.SourceID]*sourceMeta `json:"sources"`
}
