// Package catalog holds the built-in task entrypoints used to exercise
// the engine end-to-end: a small addition chain (reader/increment/writer)
// and a two-task ndarray intermediate (producer/consumer). It is the
// name-to-function registry a Task's Entrypoint resolves through.
package catalog

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/taskmesh/taskmesh/internal/codec"
)

// Func is the signature every catalog entrypoint implements: dynamic
// (keyword) inputs already decoded to Go values, static (keyword)
// parameters already type-converted, returning the task's output value
// ready for its declared codec to encode.
type Func func(ctx context.Context, dynamic map[string]any, static map[string]any) (any, error)

// Registry maps an Entrypoint string (e.g. "catalog.increment") to its
// Func.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry returns a Registry pre-loaded with the built-in entrypoints.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	r.Register("catalog.reader", Reader)
	r.Register("catalog.increment", Increment)
	r.Register("catalog.writer", Writer)
	r.Register("catalog.make_array", MakeArray)
	r.Register("catalog.describe_array", DescribeArray)
	return r
}

// Register adds or replaces the Func for name.
func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Lookup returns the Func registered under name.
func (r *Registry) Lookup(name string) (Func, error) {
	fn, ok := r.funcs[name]
	if !ok {
		return nil, errors.Errorf("no catalog entrypoint registered for %q", name)
	}
	return fn, nil
}

// Reader is S1's source task: it emits the int 0, ignoring its inputs.
func Reader(ctx context.Context, dynamic, static map[string]any) (any, error) {
	return 0, nil
}

// Increment is S1's interior task: it reads keyword input "value" (an
// int) and emits value+1.
func Increment(ctx context.Context, dynamic, static map[string]any) (any, error) {
	v, ok := dynamic["value"].(int)
	if !ok {
		return nil, errors.Errorf("increment expects int input %q, got %T", "value", dynamic["value"])
	}
	return v + 1, nil
}

// Writer is S1's terminal task: it reads keyword input "value" (an int)
// and emits "value is N".
func Writer(ctx context.Context, dynamic, static map[string]any) (any, error) {
	v, ok := dynamic["value"].(int)
	if !ok {
		return nil, errors.Errorf("writer expects int input %q, got %T", "value", dynamic["value"])
	}
	return fmt.Sprintf("value is %d", v), nil
}

// MakeArray is S2's T1: it reads static int params "a" and "b" and emits
// a one-dimensional int32 ndarray [a, b].
func MakeArray(ctx context.Context, dynamic, static map[string]any) (any, error) {
	a, aOK := static["a"].(int)
	b, bOK := static["b"].(int)
	if !aOK || !bOK {
		return nil, errors.New("make_array requires int static params a and b")
	}
	return codec.NDArray{DType: "int32", Shape: []int{2}, Data: encodeInts(a, b)}, nil
}

func encodeInts(vals ...int) []byte {
	out := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		out = append(out, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	return out
}

func decodeInts(data []byte) []int {
	out := make([]int, len(data)/4)
	for i := range out {
		b := data[i*4 : i*4+4]
		out[i] = int(int32(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])))
	}
	return out
}

// DescribeArray is S2's T2: it reads keyword input "arr" (an ndarray) and
// static string param "suffix", emitting
// "hello world from [<values>] and <suffix>".
func DescribeArray(ctx context.Context, dynamic, static map[string]any) (any, error) {
	arr, ok := dynamic["arr"].(codec.NDArray)
	if !ok {
		return nil, errors.Errorf("describe_array expects ndarray input %q, got %T", "arr", dynamic["arr"])
	}
	suffix, ok := static["suffix"].(string)
	if !ok {
		return nil, errors.New("describe_array requires string static param suffix")
	}
	vals := decodeInts(arr.Data)
	return fmt.Sprintf("hello world from %s and %s", formatIntSlice(vals), suffix), nil
}

func formatIntSlice(vals []int) string {
	out := "["
	for i, v := range vals {
		if i > 0 {
			out += " "
		}
		out += strconv.Itoa(v)
	}
	return out + "]"
}
