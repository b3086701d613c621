package nnet

import (
	"testing"

	"github.com/ethanbass/amfinder/num"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallModel(t *testing.T) *Model {
	g := NewGraph()
	x := g.Input("in", 6, 6, 2)
	x = x.Apply(Conv{Name: "c1", Nfeats: 4, Size: 3, Activation: Relu, Init: HeUniform})
	x = x.Apply(MaxPool{Name: "m1", Size: 2})
	x = x.Apply(Flatten{Name: "f"})
	a := x.Apply(Dense{Name: "a1", Nout: 5, Activation: Relu, Init: HeUniform})
	a = a.Apply(Dropout{Name: "ad", Rate: 0.3})
	a = a.Apply(Dense{Name: "a", Nout: 3, Activation: Softmax})
	b := x.Apply(Dense{Name: "b", Nout: 1, Activation: Sigmoid})
	m, err := g.Model("small", a, b)
	require.NoError(t, err)
	require.NoError(t, m.InitWeights(42))
	return m
}

func TestModelShapes(t *testing.T) {
	m := smallModel(t)
	shape, ok := m.Shape("f")
	require.True(t, ok)
	assert.Equal(t, []int{16}, shape)
	assert.Equal(t, []int{6, 6, 2}, m.InputShape())
	assert.Equal(t, []Head{
		{Name: "a", Units: 3, Activation: Softmax},
		{Name: "b", Units: 1, Activation: Sigmoid},
	}, m.Heads())
	// conv 3*3*2*4+4, dense 16*5+5, 5*3+3, 16*1+1
	assert.Equal(t, 76+85+18+17, m.NumParams())
	t.Log("\n" + m.Summary())
	t.Log("\n" + m.String())
}

func TestForwardBatchSizes(t *testing.T) {
	m := smallModel(t)
	for _, batch := range []int{1, 2, 5} {
		input := num.NewArray(batch, 6, 6, 2)
		for i := range input.Data {
			input.Data[i] = float32(i%7) / 7
		}
		out, err := m.Forward(input, "f", "a", "b")
		require.NoError(t, err)
		assert.Equal(t, []int{batch, 16}, out["f"].Dims())
		assert.Equal(t, []int{batch, 3}, out["a"].Dims())
		assert.Equal(t, []int{batch, 1}, out["b"].Dims())
		for i := 0; i < batch; i++ {
			var sum float32
			for _, v := range out["a"].Sample(i) {
				sum += v
			}
			assert.InDelta(t, 1, sum, 1e-5)
			p := out["b"].Sample(i)[0]
			assert.True(t, p > 0 && p < 1)
		}
	}
	_, err := m.Forward(num.NewArray(1, 5, 6, 2))
	assert.ErrorIs(t, err, ErrShape)
	_, err = m.Forward(num.NewArray(1, 6, 6, 2), "nope")
	assert.ErrorIs(t, err, ErrConfig)
}

func TestPredictOrder(t *testing.T) {
	m := smallModel(t)
	res, err := m.Predict(num.NewArray(2, 6, 6, 2))
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, []int{2, 3}, res[0].Dims())
	assert.Equal(t, []int{2, 1}, res[1].Dims())
}

func TestConvFprop(t *testing.T) {
	g := NewGraph()
	c := g.Input("in", 3, 3, 1).Apply(Conv{Name: "c", Nfeats: 1, Size: 2, Activation: Relu})
	m, err := g.Model("conv", c)
	require.NoError(t, err)
	layer, ok := m.GetLayer("c")
	require.True(t, ok)
	require.NoError(t, layer.(ParamLayer).SetParams([]float32{1, 1, 1, 1}, []float32{0.5}))
	input := num.NewArrayFrom([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, 1, 3, 3, 1)
	out, err := m.Predict(input)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2, 1}, out[0].Dims())
	assert.Equal(t, []float32{12.5, 16.5, 24.5, 28.5}, out[0].Data)
}

func TestDenseSoftmax(t *testing.T) {
	g := NewGraph()
	d := g.Input("in", 2).Apply(Dense{Name: "d", Nout: 2, Activation: Softmax})
	m, err := g.Model("dense", d)
	require.NoError(t, err)
	layer, _ := m.GetLayer("d")
	require.NoError(t, layer.(ParamLayer).SetParams([]float32{1, 2, 3, 4}, []float32{0, 0}))
	out, err := m.Predict(num.NewArrayFrom([]float32{1, 1}, 1, 2))
	require.NoError(t, err)
	assert.InDelta(t, 0.119203, out[0].Data[0], 1e-5)
	assert.InDelta(t, 0.880797, out[0].Data[1], 1e-5)
	assert.Error(t, layer.(ParamLayer).SetParams([]float32{1}, []float32{0, 0}))
}

func TestGetLayer(t *testing.T) {
	m := smallModel(t)
	l, ok := m.GetLayer("c1")
	require.True(t, ok)
	assert.Equal(t, "conv", l.Type())
	_, ok = m.GetLayer("RS")
	assert.False(t, ok)
}

func TestGraphErrors(t *testing.T) {
	g := NewGraph()
	x := g.Input("in", 4)
	x = x.Apply(Dense{Name: "d", Nout: 2})
	x = x.Apply(Dense{Name: "d", Nout: 2})
	_, err := g.Model("dup", x)
	assert.ErrorIs(t, err, ErrDuplicateLayer)

	g = NewGraph()
	_, err = g.Model("empty")
	assert.ErrorIs(t, err, ErrConfig)

	g = NewGraph()
	x = g.Input("in", 4).Apply(Conv{Name: "c", Nfeats: 2, Size: 3})
	_, err = g.Model("rank", x)
	assert.ErrorIs(t, err, ErrShape)

	g = NewGraph()
	x = g.Input("in", 4).Apply(Dense{Name: "d", Nout: 2, Activation: "tanh"})
	_, err = g.Model("activ", x)
	assert.ErrorIs(t, err, ErrConfig)

	g = NewGraph()
	x = g.Input("in", 4).Apply(Dropout{Name: "d", Rate: 1.5})
	_, err = g.Model("rate", x)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestInitWeights(t *testing.T) {
	m1 := smallModel(t)
	m2 := smallModel(t)
	for _, name := range []string{"c1", "a1", "a", "b"} {
		l1, _ := m1.GetLayer(name)
		l2, _ := m2.GetLayer(name)
		W1, B1 := l1.(ParamLayer).Params()
		W2, _ := l2.(ParamLayer).Params()
		assert.Equal(t, W1.Data, W2.Data, "same seed gives same weights for %s", name)
		for _, v := range B1.Data {
			assert.Zero(t, v)
		}
	}
	// He uniform bound for conv c1 is sqrt(6 / (3*3*2))
	limit := HeUniform.Limit(18, 36)
	stats := m1.WeightStats()
	require.Len(t, stats, 4)
	assert.Equal(t, "c1", stats[0].Name)
	assert.True(t, stats[0].Min >= -limit && stats[0].Max <= limit)
	assert.True(t, stats[0].Max-stats[0].Min > limit/2)
	c1, _ := m1.GetLayer("c1")
	cw, _ := c1.(ParamLayer).Params()
	assert.Equal(t, float64(cw.Size()), stats[0].Weights.Count)
	assert.True(t, stats[0].Weights.Mean > -limit && stats[0].Weights.Mean < limit)

	require.NoError(t, m2.InitWeights(7))
	l1, _ := m1.GetLayer("c1")
	l2, _ := m2.GetLayer("c1")
	W1, _ := l1.(ParamLayer).Params()
	W2, _ := l2.(ParamLayer).Params()
	assert.NotEqual(t, W1.Data, W2.Data)
}

func TestInitTypes(t *testing.T) {
	w := make([]float32, 1000)
	require.NoError(t, GlorotUniform.Fill(w, 10, 20, nil))
	limit := float32(GlorotUniform.Limit(10, 20))
	for _, v := range w {
		assert.True(t, v >= -limit && v <= limit)
	}
	assert.Error(t, InitType("bogus").Fill(w, 10, 20, nil))
	assert.ErrorIs(t, HeUniform.Fill(w, 0, 20, nil), ErrShape)
}
