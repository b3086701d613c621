// Package num contains the float32 array type and CPU kernels used by the network layers.
package num

import (
	"fmt"
	"strings"
)

// Parameters for array printing
var (
	PrintThreshold = 12
	PrintEdgeitems = 4
)

// Array is a general n dimensional tensor similar to a numpy ndarray.
// Data is stored in row major order with the batch index first, so a batch
// of images has dims [batch, height, width, channels].
type Array struct {
	dims []int
	Data []float32
}

// NewArray allocates a zeroed array with the given shape.
func NewArray(dims ...int) *Array {
	return &Array{dims: append([]int{}, dims...), Data: make([]float32, Prod(dims))}
}

// NewArrayFrom wraps an existing slice. It panics if the size does not match the shape.
func NewArrayFrom(data []float32, dims ...int) *Array {
	if len(data) != Prod(dims) {
		panic(fmt.Sprintf("NewArrayFrom: data length %d does not match dims %v", len(data), dims))
	}
	return &Array{dims: append([]int{}, dims...), Data: data}
}

// Dims returns the shape of the array.
func (a *Array) Dims() []int { return a.dims }

// Size is the total number of elements.
func (a *Array) Size() int { return len(a.Data) }

// Batch returns the size of the leading dimension.
func (a *Array) Batch() int {
	if len(a.dims) == 0 {
		return 1
	}
	return a.dims[0]
}

// Sample returns the slice of data for entry i along the leading dimension.
func (a *Array) Sample(i int) []float32 {
	n := a.Size() / a.Batch()
	return a.Data[i*n : (i+1)*n]
}

// Reshape returns a view on the same data with a different shape. One dimension may be -1.
func (a *Array) Reshape(dims ...int) *Array {
	dims = append([]int{}, dims...)
	n := len(a.Data)
	for i := range dims {
		if dims[i] == -1 {
			other := 1
			for j, dim := range dims {
				if i != j {
					if dim == -1 {
						panic("Reshape: can only have single -1 value")
					}
					other *= dim
				}
			}
			dims[i] = n / other
		}
	}
	if Prod(dims) != n {
		panic("reshape must be to array of same size")
	}
	return &Array{dims: dims, Data: a.Data}
}

func (a *Array) String() string {
	if len(a.dims) == 0 {
		return format(nil, a.Data, 0, "", false)
	}
	return format(a.dims, a.Data, 0, "", false)
}

func format(dims []int, data []float32, at int, indent string, dots bool) string {
	switch len(dims) {
	case 0:
		if dots {
			return "    ... "
		}
		val := data[at]
		if abs(val) < 1 {
			val = float32(int(10000*val+0.5)) / 10000
		}
		return fmt.Sprintf("%7.5g ", val)
	case 1:
		var b strings.Builder
		b.WriteString("[")
		for i := 0; i < dims[0]; i++ {
			skip := dims[0] > PrintThreshold+1 && i == PrintEdgeitems
			b.WriteString(format(nil, data, at+i, "", skip))
			if skip {
				i = dims[0] - PrintEdgeitems - 1
			}
		}
		b.WriteString("]")
		return b.String()
	default:
		var b strings.Builder
		stride := Prod(dims[1:])
		b.WriteString(indent + "[\n")
		for i := 0; i < dims[0]; i++ {
			if dims[0] > PrintThreshold+1 && i == PrintEdgeitems {
				b.WriteString(indent + "   ...\n")
				i = dims[0] - PrintEdgeitems - 1
				continue
			}
			s := format(dims[1:], data, at+i*stride, indent+" ", false)
			if len(dims) == 2 {
				s = indent + " " + s + "\n"
			}
			b.WriteString(s)
		}
		b.WriteString(indent + "]\n")
		return b.String()
	}
}

func abs(x float32) float32 {
	if x >= 0 {
		return x
	}
	return -x
}

// Product of elements of an integer array. Zero dimension array (scalar) has size 1.
func Prod(arr []int) int {
	prod := 1
	for _, v := range arr {
		prod *= v
	}
	return prod
}

// Check if two arrays are the same shape
func SameShape(xd, yd []int) bool {
	if len(xd) != len(yd) {
		return false
	}
	for i := range xd {
		if xd[i] != yd[i] {
			return false
		}
	}
	return true
}
