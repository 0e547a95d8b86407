package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripBytes(t *testing.T) {
	r := NewRegistry()
	b, err := r.Encode("bytes", []byte("hello"))
	require.NoError(t, err)
	v, err := r.Decode("bytes", b)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), v)
}

func TestRoundTripStr(t *testing.T) {
	r := NewRegistry()
	b, err := r.Encode("str", "forecast-in-a-box")
	require.NoError(t, err)
	v, err := r.Decode("str", b)
	require.NoError(t, err)
	assert.Equal(t, "forecast-in-a-box", v)
}

func TestRoundTripInt(t *testing.T) {
	r := NewRegistry()
	for _, n := range []int{0, 1, -1, 42, 1 << 20} {
		b, err := r.Encode("int", n)
		require.NoError(t, err)
		assert.Len(t, b, 4)
		v, err := r.Decode("int", b)
		require.NoError(t, err)
		assert.Equal(t, n, v)
	}
}

func TestRoundTripNDArray(t *testing.T) {
	r := NewRegistry()
	arr := NDArray{DType: "float64", Shape: []int{2, 3}, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}}
	b, err := r.Encode("ndarray", arr)
	require.NoError(t, err)

	v, err := r.Decode("ndarray", b)
	require.NoError(t, err)
	got := v.(NDArray)
	assert.Equal(t, arr.DType, got.DType)
	assert.Equal(t, arr.Shape, got.Shape)
	assert.Equal(t, arr.Data, got.Data)
}

func TestRoundTripNDArrayEmptyShape(t *testing.T) {
	r := NewRegistry()
	arr := NDArray{DType: "int32", Shape: nil, Data: []byte{9, 9, 9, 9}}
	b, err := r.Encode("ndarray", arr)
	require.NoError(t, err)
	v, err := r.Decode("ndarray", b)
	require.NoError(t, err)
	got := v.(NDArray)
	assert.Empty(t, got.Shape)
	assert.Equal(t, arr.Data, got.Data)
}

func TestGribSubtypeFallback(t *testing.T) {
	r := NewRegistry()
	b, err := r.Encode("grib.earthkit", []byte("GRIB-bytes"))
	require.NoError(t, err)
	v, err := r.Decode("grib.mir", b)
	require.NoError(t, err)
	assert.Equal(t, GribView{Raw: []byte("GRIB-bytes")}, v)

	// An unregistered but dotted sub-variant falls back to the "grib" base.
	v2, err := r.Decode("grib.unknown-variant", b)
	require.NoError(t, err)
	assert.Equal(t, GribView{Raw: []byte("GRIB-bytes")}, v2)
}

func TestUnknownClassTag(t *testing.T) {
	r := NewRegistry()
	_, err := r.Encode("no.such.tag", "x")
	assert.Error(t, err)
	_, err = r.Decode("no.such.tag", []byte("x"))
	assert.Error(t, err)
}

func TestWrongValueType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Encode("int", "not-an-int")
	assert.Error(t, err)
	_, err = r.Decode("int", []byte{1, 2})
	assert.Error(t, err, "int decode requires exactly 4 bytes")
}

func TestRegisterOverridesCodec(t *testing.T) {
	r := NewRegistry()
	r.Register("custom", Funcs{
		EncodeFn: func(v any) ([]byte, error) { return []byte(v.(string)), nil },
		DecodeFn: func(b []byte) (any, error) { return "custom:" + string(b), nil },
	})
	b, err := r.Encode("custom", "x")
	require.NoError(t, err)
	v, err := r.Decode("custom", b)
	require.NoError(t, err)
	assert.Equal(t, "custom:x", v)
}
