package nnet

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethanbass/amfinder/num"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadModel(t *testing.T) {
	m := smallModel(t)
	m.Compile("binary_crossentropy", "adam", "acc")
	path := filepath.Join(t.TempDir(), "small.amf")
	require.NoError(t, m.Save(path))

	m2, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, m.Name, m2.Name)
	assert.Equal(t, m.Outputs, m2.Outputs)
	assert.Equal(t, "adam", m2.Optimizer)
	assert.Equal(t, []string{"acc"}, m2.Metrics)
	assert.Equal(t, m.Heads(), m2.Heads())

	input := num.NewArray(3, 6, 6, 2)
	for i := range input.Data {
		input.Data[i] = float32(i%11) / 11
	}
	out1, err := m.Predict(input)
	require.NoError(t, err)
	out2, err := m2.Predict(input)
	require.NoError(t, err)
	for i := range out1 {
		assert.Equal(t, out1[i].Data, out2[i].Data)
	}
}

func TestLoadModelErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadModel(filepath.Join(dir, "missing.amf"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	corrupt := filepath.Join(dir, "corrupt.amf")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a model"), 0644))
	_, err = LoadModel(corrupt)
	assert.ErrorIs(t, err, ErrModelFile)

	// weights for one layer missing
	m := smallModel(t)
	data := m.Export()
	data.Params = data.Params[1:]
	partial := filepath.Join(dir, "partial.amf")
	writeGob(t, partial, data)
	_, err = LoadModel(partial)
	assert.ErrorIs(t, err, ErrModelFile)

	data = m.Export()
	data.Version = 99
	version := filepath.Join(dir, "version.amf")
	writeGob(t, version, data)
	_, err = LoadModel(version)
	assert.ErrorIs(t, err, ErrModelFile)

	data = m.Export()
	data.Params[0].Weights = data.Params[0].Weights[:3]
	short := filepath.Join(dir, "short.amf")
	writeGob(t, short, data)
	_, err = LoadModel(short)
	assert.ErrorIs(t, err, ErrModelFile)
}

func TestConfigSaveLoad(t *testing.T) {
	m := smallModel(t)
	path := filepath.Join(t.TempDir(), "small.json")
	require.NoError(t, m.Config.Save(path))
	conf, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, m.Config.Outputs, conf.Outputs)
	require.Len(t, conf.Layers, len(m.Layers))
	l, ok := conf.Layer("a1")
	require.True(t, ok)
	assert.Equal(t, "f", l.Input)
	m2, err := New(conf)
	require.NoError(t, err)
	assert.Equal(t, m.NumParams(), m2.NumParams())
	t.Log("\n" + conf.String())

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err = LoadConfig(bad)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestNewErrors(t *testing.T) {
	_, err := New(Config{Name: "none"})
	assert.ErrorIs(t, err, ErrConfig)

	conf := smallModel(t).Config
	conf.Layers = append([]LayerConfig{}, conf.Layers...)
	conf.Layers[2].Input = "nowhere"
	_, err = New(conf)
	assert.ErrorIs(t, err, ErrConfig)

	conf = smallModel(t).Config
	conf.Outputs = []string{"a", "a"}
	_, err = New(conf)
	assert.ErrorIs(t, err, ErrDuplicateLayer)

	conf = smallModel(t).Config
	conf.Layers = append([]LayerConfig{}, conf.Layers...)
	conf.Layers[1].Type = "lstm"
	_, err = New(conf)
	assert.ErrorIs(t, err, ErrConfig)
}

func writeGob(t *testing.T, path string, data ModelData) {
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, gob.NewEncoder(f).Encode(data))
}
