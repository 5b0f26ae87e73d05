package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/bufcache/internal/hash"
)

// Codec selects the payload compression of disk cache entries.
type Codec uint8

const (
	// CodecNone stores payloads as-is.
	CodecNone Codec = 0
	// CodecLZ4 uses LZ4 block compression (fast).
	CodecLZ4 Codec = 1
	// CodecZSTD uses zstd (better ratio).
	CodecZSTD Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ParseCodec parses "none", "lz4" or "zstd".
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZSTD, nil
	}
	return CodecNone, fmt.Errorf("cache: unknown codec %q", s)
}

// ErrCorrupt is returned when a cache entry fails validation.
var ErrCorrupt = errors.New("cache: corrupt entry")

// Entry layout, little endian:
//
//	[0:4]   magic "BCL2"
//	[4]     codec
//	[5:8]   reserved
//	[8:12]  raw length
//	[12:16] payload length
//	[16:20] CRC32C of the raw block
//	[20:]   payload
const (
	entryMagic      = "BCL2"
	entryHeaderSize = 20
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// encodeEntry frames raw with a header. Payloads that do not shrink are
// stored with CodecNone.
func encodeEntry(raw []byte, codec Codec) ([]byte, error) {
	var payload []byte

	switch codec {
	case CodecLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, buf, nil)
		if err != nil {
			return nil, err
		}
		payload = buf[:n]
	case CodecZSTD:
		enc := getZstdEncoder()
		payload = enc.EncodeAll(raw, nil)
		zstdEncoderPool.Put(enc)
	}

	if len(payload) == 0 || len(payload) >= len(raw) {
		codec, payload = CodecNone, raw
	}

	out := make([]byte, entryHeaderSize+len(payload))
	copy(out, entryMagic)
	out[4] = byte(codec)
	binary.LittleEndian.PutUint32(out[8:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(out[12:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(out[16:], hash.CRC32C(raw))
	copy(out[entryHeaderSize:], payload)
	return out, nil
}

// decodeEntry validates an entry and writes the raw block into dst, which
// must have exactly the raw length.
func decodeEntry(data, dst []byte) error {
	if len(data) < entryHeaderSize || string(data[:4]) != entryMagic {
		return fmt.Errorf("%w: bad header", ErrCorrupt)
	}

	codec := Codec(data[4])
	rawLen := binary.LittleEndian.Uint32(data[8:])
	payloadLen := binary.LittleEndian.Uint32(data[12:])
	sum := binary.LittleEndian.Uint32(data[16:])

	if int(rawLen) != len(dst) {
		return fmt.Errorf("%w: raw length %d, want %d", ErrCorrupt, rawLen, len(dst))
	}
	if uint64(len(data)) != entryHeaderSize+uint64(payloadLen) {
		return fmt.Errorf("%w: payload length %d", ErrCorrupt, payloadLen)
	}
	payload := data[entryHeaderSize:]

	switch codec {
	case CodecNone:
		if len(payload) != len(dst) {
			return fmt.Errorf("%w: stored length mismatch", ErrCorrupt)
		}
		copy(dst, payload)
	case CodecLZ4:
		n, err := lz4.UncompressBlock(payload, dst)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if n != len(dst) {
			return fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
	case CodecZSTD:
		dec := getZstdDecoder()
		out, err := dec.DecodeAll(payload, dst[:0])
		zstdDecoderPool.Put(dec)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if len(out) != len(dst) {
			return fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		if len(out) > 0 && &out[0] != &dst[0] {
			copy(dst, out)
		}
	default:
		return fmt.Errorf("%w: unknown codec %d", ErrCorrupt, codec)
	}

	if hash.CRC32C(dst) != sum {
		return fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return nil
}
