//go:build xz

package pintos

import (
	"bytes"

	"github.com/ulikunitz/xz"
)

func init() {
	RegisterSegCodec(CodecXZ, func(compressed []byte, dstLen int) ([]byte, error) {
		r, err := xz.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, err
		}
		return readAllLimited(r, dstLen)
	})
}
