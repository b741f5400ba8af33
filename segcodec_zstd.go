//go:build zstd

package pintos

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

func init() {
	RegisterSegCodec(CodecZstd, func(compressed []byte, dstLen int) ([]byte, error) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		out, err := dec.DecodeAll(compressed, make([]byte, 0, dstLen))
		if err != nil {
			return nil, err
		}
		if len(out) != dstLen {
			return nil, fmt.Errorf("zstd: segment decompressed to %d bytes, want %d", len(out), dstLen)
		}
		return out, nil
	})
}
