package pintos

import (
	"fmt"
	"io"
)

// SegmentCodec names the compression applied to a read-only file-backed
// SPTE's on-disk bytes (SPEC_FULL §4 "Compressed file-backed segment").
// Unlike the teacher's SquashComp (14 codecs covering a whole filesystem
// image), this kernel only ever needs to decompress, and only for
// executable segments, so the set is small.
type SegmentCodec uint8

const (
	CodecNone SegmentCodec = iota
	CodecZstd
	CodecXZ
)

func (c SegmentCodec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecXZ:
		return "xz"
	default:
		return fmt.Sprintf("SegmentCodec(%d)", c)
	}
}

// segDecompressor turns compressed on-disk bytes into exactly dstLen bytes
// of decompressed output.
type segDecompressor func(compressed []byte, dstLen int) ([]byte, error)

var segCodecs = make(map[SegmentCodec]segDecompressor)

// RegisterSegCodec installs the decompressor for a codec; codec packages
// call this from init(), mirroring the teacher's RegisterCompHandler
// pattern in comp.go.
func RegisterSegCodec(codec SegmentCodec, fn segDecompressor) {
	segCodecs[codec] = fn
}

// decompressSegment looks up and runs the registered decompressor. Called
// by the fault resolver's load() when an SPTE's codec is not CodecNone.
func decompressSegment(codec SegmentCodec, compressed []byte, dstLen int) ([]byte, error) {
	fn, ok := segCodecs[codec]
	if !ok {
		return nil, fmt.Errorf("pintos: no decompressor registered for codec %s (build without the matching tag?)", codec)
	}
	return fn(compressed, dstLen)
}

// readAllLimited drains r into exactly n bytes, failing on a short read —
// a compressed segment must decompress to precisely its recorded length.
func readAllLimited(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
