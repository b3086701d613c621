package num

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clone(a *Array) *Array {
	return NewArrayFrom(append([]float32{}, a.Data...), a.Dims()...)
}

func TestArray(t *testing.T) {
	x := NewArray(6)
	assert.Equal(t, []int{6}, x.Dims())
	x = x.Reshape(2, -1)
	assert.Equal(t, []int{2, 3}, x.Dims())
	copy(x.Data, []float32{1, 2, 3, 4, 5, 6})
	assert.Equal(t, []float32{4, 5, 6}, x.Sample(1))
	y := x.Reshape(3, 2)
	y.Data[0] = 9
	assert.Equal(t, float32(9), x.Data[0])
	assert.Panics(t, func() { x.Reshape(4, 2) })
	assert.Panics(t, func() { NewArrayFrom([]float32{1, 2}, 3) })
	t.Log("\n" + x.String())
}

func TestGemm(t *testing.T) {
	a := NewArrayFrom([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := NewArrayFrom([]float32{1, 0, 0, 1, 1, 1}, 3, 2)
	c := NewArray(2, 2)
	Gemm(1, 0, a, b, c, NoTrans, NoTrans)
	assert.Equal(t, []float32{4, 5, 10, 11}, c.Data)

	d := NewArray(3, 3)
	Gemm(1, 0, a, a, d, Trans, NoTrans)
	assert.Equal(t, []float32{17, 22, 27, 22, 29, 36, 27, 36, 45}, d.Data)

	AddBias(c, []float32{1, -1})
	assert.Equal(t, []float32{5, 4, 11, 10}, c.Data)
}

func TestActivations(t *testing.T) {
	x := NewArrayFrom([]float32{-1, 0, 2, 1, 1, 1}, 2, 3)
	r := clone(x)
	Relu(r)
	assert.Equal(t, []float32{0, 0, 2, 1, 1, 1}, r.Data)

	s := clone(x)
	Sigmoid(s)
	assert.InDelta(t, 0.5, s.Data[1], 1e-6)
	assert.InDelta(t, 0.880797, s.Data[2], 1e-5)

	sm := clone(x)
	Softmax(sm)
	for _, row := range [][]float32{sm.Sample(0), sm.Sample(1)} {
		var sum float32
		for _, v := range row {
			sum += v
		}
		assert.InDelta(t, 1, sum, 1e-6)
	}
	assert.InDelta(t, 1.0/3, sm.Data[4], 1e-6)
	assert.Equal(t, []int{2, 0}, Unhot(sm))
}

func TestIm2col(t *testing.T) {
	// 3x3 single channel image, 2x2 kernel => 2x2 output of 4 values
	src := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}
	dst := NewArray(4, 4)
	Im2col(src, 3, 3, 1, 2, 1, 0, dst)
	expect := []float32{
		1, 2, 4, 5,
		2, 3, 5, 6,
		4, 5, 7, 8,
		5, 6, 8, 9,
	}
	assert.Equal(t, expect, dst.Data)

	padded := NewArray(9, 9)
	Im2col(src, 3, 3, 1, 3, 1, 1, padded)
	assert.Equal(t, []float32{0, 0, 0, 0, 1, 2, 0, 4, 5}, padded.Data[:9])
	require.Panics(t, func() { Im2col(src, 3, 3, 1, 2, 1, 0, NewArray(3, 4)) })
}

func TestMaxPool(t *testing.T) {
	// 4x4 image with 2 channels
	src := make([]float32, 32)
	for i := range src {
		src[i] = float32(i)
	}
	dst := make([]float32, 8)
	MaxPool(src, 4, 4, 2, 2, 2, dst)
	assert.Equal(t, []float32{10, 11, 14, 15, 26, 27, 30, 31}, dst)
	assert.Equal(t, 5, ConvOut(10, 2, 2, 0))
	assert.Equal(t, 124, ConvOut(126, 3, 1, 0))
}
