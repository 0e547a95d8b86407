package codec

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// NDArray is a self-describing array: a dtype string (e.g. "float64",
// "int32"), a shape, and the raw row-major bytes. It carries exactly
// enough metadata for a consumer to reinterpret the raw bytes, nothing
// more.
type NDArray struct {
	DType string
	Shape []int
	Data  []byte
}

// ndarrayCodec implements the wire layout:
//
//	[4B dtype-len][dtype bytes][4B shape-len][shape bytes][raw data]
//
// shape-len counts bytes, not dimensions; each dimension is a big-endian
// uint32 within the shape blob.
type ndarrayCodec struct{}

func (ndarrayCodec) Encode(v any) ([]byte, error) {
	arr, ok := v.(NDArray)
	if !ok {
		return nil, errors.Errorf("ndarray codec expects NDArray, got %T", v)
	}
	dtype := []byte(arr.DType)
	shapeBlob := make([]byte, 4*len(arr.Shape))
	for i, dim := range arr.Shape {
		binary.BigEndian.PutUint32(shapeBlob[i*4:], uint32(dim))
	}

	out := make([]byte, 0, 4+len(dtype)+4+len(shapeBlob)+len(arr.Data))
	out = appendU32(out, uint32(len(dtype)))
	out = append(out, dtype...)
	out = appendU32(out, uint32(len(shapeBlob)))
	out = append(out, shapeBlob...)
	out = append(out, arr.Data...)
	return out, nil
}

func (ndarrayCodec) Decode(b []byte) (any, error) {
	dtype, rest, err := readU32Prefixed(b)
	if err != nil {
		return nil, errors.Wrap(err, "reading dtype")
	}
	shapeBlob, rest, err := readU32Prefixed(rest)
	if err != nil {
		return nil, errors.Wrap(err, "reading shape")
	}
	if len(shapeBlob)%4 != 0 {
		return nil, errors.Errorf("shape blob length %d is not a multiple of 4", len(shapeBlob))
	}
	shape := make([]int, len(shapeBlob)/4)
	for i := range shape {
		shape[i] = int(binary.BigEndian.Uint32(shapeBlob[i*4:]))
	}
	return NDArray{DType: string(dtype), Shape: shape, Data: rest}, nil
}

func appendU32(b []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(b, buf[:]...)
}

func readU32Prefixed(b []byte) (field, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, errors.Errorf("buffer too short for length prefix: %d bytes", len(b))
	}
	n := binary.BigEndian.Uint32(b)
	if uint64(4+n) > uint64(len(b)) {
		return nil, nil, errors.Errorf("length prefix %d exceeds remaining buffer %d", n, len(b)-4)
	}
	return b[4 : 4+n], b[4+n:], nil
}
