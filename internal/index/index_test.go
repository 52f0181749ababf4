package index

import (
	"os"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadModels(t *testing.T) *Index {
	t.Helper()
	idx, err := LoadFS("models", os.DirFS("testdata"), "models.json", "layer", "mtype", "etype", "name")
	require.NoError(t, err)
	return idx
}

func TestLoadFS_Dir(t *testing.T) {
	idx := loadModels(t)
	assert.Equal(t, "models", idx.Name())
	assert.Equal(t, 7, idx.Len())
}

func TestLoad_MalformedRecord(t *testing.T) {
	body := `[{"layer":"SLM","mtype":"SLM_PPA"},{"layer":"SR"}]`

	_, err := Load("models", strings.NewReader(body), "layer", "mtype")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedRecord)
	assert.Contains(t, err.Error(), "record 1")
	assert.Contains(t, err.Error(), `"mtype"`)
}

func TestLoad_NonStringAttribute(t *testing.T) {
	_, err := Load("models", strings.NewReader(`[{"layer":4}]`), "layer")
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestLoad_BadJSON(t *testing.T) {
	_, err := Load("models", strings.NewReader(`{"layer":"SLM"}`))
	assert.Error(t, err)
}

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"traces.json": {Data: []byte(`[{"etype":"bAC","name":"95810035"}]`)},
	}
	idx, err := LoadFS("traces", fsys, "traces.json", "etype", "name")
	require.NoError(t, err)
	assert.Equal(t, []string{"95810035"}, idx.Options("name", Filter{Attr: "etype", Value: "bAC"}))

	_, err = LoadFS("traces", fsys, "missing.json")
	assert.Error(t, err)
}

func TestOptions_ScenarioSLM(t *testing.T) {
	idx, err := Load("models", strings.NewReader(`[
		{"layer": "SLM", "mtype": "SLM_PPA", "etype": "bAC", "name": "011127HP1"},
		{"layer": "SR", "mtype": "SR_SCA", "etype": "cAC", "name": "X"}
	]`), "layer", "mtype", "etype", "name")
	require.NoError(t, err)

	got := idx.Options("mtype", Filter{Attr: "layer", Value: "SLM"})
	assert.Equal(t, []string{"SLM_PPA"}, got)
}

func TestOptions_DedupAndSort(t *testing.T) {
	idx := loadModels(t)

	layers := idx.Options("layer")
	assert.Equal(t, []string{"SLM", "SO", "SP", "SR"}, layers)

	etypes := idx.Options("etype", Filter{Attr: "layer", Value: "SLM"}, Filter{Attr: "mtype", Value: "SLM_PPA"})
	assert.Equal(t, []string{"bAC", "cAC"}, etypes)

	for _, opts := range [][]string{layers, etypes, idx.Options("etype")} {
		seen := map[string]bool{}
		for i, v := range opts {
			assert.False(t, seen[v], "duplicate %q", v)
			seen[v] = true
			if i > 0 {
				assert.True(t, opts[i-1] < v, "not sorted: %v", opts)
			}
		}
	}
}

func TestOptions_CodePointOrder(t *testing.T) {
	idx, err := Load("x", strings.NewReader(`[{"v":"b"},{"v":"B"},{"v":"a"},{"v":"_z"}]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "_z", "a", "b"}, idx.Options("v"))
}

func TestOptions_CaseSensitiveFilter(t *testing.T) {
	idx := loadModels(t)
	assert.Empty(t, idx.Options("mtype", Filter{Attr: "layer", Value: "slm"}))
}

func TestOptions_EmptyFilterValue(t *testing.T) {
	idx := loadModels(t)
	got := idx.Options("mtype", Filter{Attr: "layer", Value: ""})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestOptions_Deterministic(t *testing.T) {
	idx := loadModels(t)
	f := Filter{Attr: "etype", Value: "cAC"}
	assert.Equal(t, idx.Options("mtype", f), idx.Options("mtype", f))
}
