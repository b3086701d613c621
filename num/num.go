package num

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// TransType flags if a matrix is transposed in Gemm.
type TransType bool

const (
	NoTrans TransType = false
	Trans   TransType = true
)

func (t TransType) blas() blas.Transpose {
	if t {
		return blas.Trans
	}
	return blas.NoTrans
}

// Gemm computes C = alpha * op(A) * op(B) + beta * C for 2 dimensional arrays.
func Gemm(alpha, beta float32, mA, mB, mC *Array, aTrans, bTrans TransType) {
	blas32.Gemm(aTrans.blas(), bTrans.blas(), alpha, general(mA), general(mB), beta, general(mC))
}

func general(a *Array) blas32.General {
	if len(a.dims) != 2 {
		panic(fmt.Sprintf("Gemm: expect 2 dimensional array, got %v", a.dims))
	}
	return blas32.General{Rows: a.dims[0], Cols: a.dims[1], Stride: a.dims[1], Data: a.Data}
}

// AddBias adds b to every row where b has the length of the last dimension of x.
func AddBias(x *Array, b []float32) {
	n := len(b)
	if n == 0 || len(x.Data)%n != 0 {
		panic(fmt.Sprintf("AddBias: bias length %d invalid for dims %v", n, x.dims))
	}
	for i := 0; i < len(x.Data); i += n {
		blas32.Axpy(1, blas32.Vector{N: n, Inc: 1, Data: b}, blas32.Vector{N: n, Inc: 1, Data: x.Data[i : i+n]})
	}
}

// Relu applies max(x, 0) in place.
func Relu(x *Array) {
	for i, v := range x.Data {
		if v < 0 {
			x.Data[i] = 0
		}
	}
}

// Sigmoid applies the logistic function in place.
func Sigmoid(x *Array) {
	for i, v := range x.Data {
		x.Data[i] = float32(1 / (1 + math.Exp(-float64(v))))
	}
}

// Softmax normalises each row over the last dimension in place.
func Softmax(x *Array) {
	n := x.dims[len(x.dims)-1]
	for i := 0; i < len(x.Data); i += n {
		row := x.Data[i : i+n]
		max := row[0]
		for _, v := range row[1:] {
			if v > max {
				max = v
			}
		}
		var sum float64
		for j, v := range row {
			e := math.Exp(float64(v - max))
			row[j] = float32(e)
			sum += e
		}
		for j := range row {
			row[j] = float32(float64(row[j]) / sum)
		}
	}
}

// ConvOut returns the output size of a convolution or pooling window along one axis.
func ConvOut(in, size, stride, pad int) int {
	return (in+2*pad-size)/stride + 1
}

// Im2col unrolls the size x size patches of one [h, w, c] image into the rows of dst,
// which must have dims [oh*ow, size*size*c]. Padded pixels are zero.
func Im2col(src []float32, h, w, c, size, stride, pad int, dst *Array) {
	oh, ow := ConvOut(h, size, stride, pad), ConvOut(w, size, stride, pad)
	cols := size * size * c
	if dst.Size() != oh*ow*cols {
		panic(fmt.Sprintf("Im2col: dst dims %v invalid for output %dx%dx%d", dst.dims, oh, ow, cols))
	}
	for oy := 0; oy < oh; oy++ {
		for ox := 0; ox < ow; ox++ {
			row := dst.Data[(oy*ow+ox)*cols : (oy*ow+ox+1)*cols]
			k := 0
			for ky := 0; ky < size; ky++ {
				y := oy*stride + ky - pad
				for kx := 0; kx < size; kx++ {
					x := ox*stride + kx - pad
					if y < 0 || y >= h || x < 0 || x >= w {
						for ch := 0; ch < c; ch++ {
							row[k+ch] = 0
						}
					} else {
						copy(row[k:k+c], src[(y*w+x)*c:(y*w+x+1)*c])
					}
					k += c
				}
			}
		}
	}
}

// MaxPool takes the maximum over size x size windows of one [h, w, c] image.
// dst must hold oh*ow*c values.
func MaxPool(src []float32, h, w, c, size, stride int, dst []float32) {
	oh, ow := ConvOut(h, size, stride, 0), ConvOut(w, size, stride, 0)
	for oy := 0; oy < oh; oy++ {
		for ox := 0; ox < ow; ox++ {
			out := dst[(oy*ow+ox)*c : (oy*ow+ox+1)*c]
			for ch := range out {
				out[ch] = float32(math.Inf(-1))
			}
			for ky := 0; ky < size; ky++ {
				for kx := 0; kx < size; kx++ {
					in := src[((oy*stride+ky)*w+ox*stride+kx)*c:]
					for ch := range out {
						if in[ch] > out[ch] {
							out[ch] = in[ch]
						}
					}
				}
			}
		}
	}
}

// Unhot returns the index of the maximum value in each row.
func Unhot(x *Array) []int {
	n := x.dims[len(x.dims)-1]
	res := make([]int, 0, len(x.Data)/n)
	for i := 0; i < len(x.Data); i += n {
		best := 0
		for j, v := range x.Data[i : i+n] {
			if v > x.Data[i+best] {
				best = j
			}
		}
		res = append(res, best)
	}
	return res
}
