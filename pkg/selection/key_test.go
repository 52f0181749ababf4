package selection

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var neuronOrder = MustOrder("layer", "mtype", "etype", "instance")

func fullNeuronKey() Key {
	return FromValues(neuronOrder, map[string]string{
		"layer":    "SLM",
		"mtype":    "SLM_PPA",
		"etype":    "bAC",
		"instance": "011127HP1",
	})
}

func TestNewOrder(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		o, err := NewOrder("a", "b", "c")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, o.Fields())
		assert.Equal(t, 1, o.Index("b"))
		assert.Equal(t, -1, o.Index("z"))
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := NewOrder("a", "a")
		assert.Error(t, err)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := NewOrder("a", "")
		assert.Error(t, err)
	})

	t.Run("no fields", func(t *testing.T) {
		_, err := NewOrder()
		assert.Error(t, err)
	})
}

func TestOrder_BeforeAfter(t *testing.T) {
	before, err := neuronOrder.Before("etype")
	require.NoError(t, err)
	assert.Equal(t, []string{"layer", "mtype"}, before)

	after, err := neuronOrder.After("mtype")
	require.NoError(t, err)
	assert.Equal(t, []string{"etype", "instance"}, after)

	_, err = neuronOrder.After("nope")
	assert.True(t, errors.Is(err, ErrUnknownField))
}

func TestKey_SetClearsDownstream(t *testing.T) {
	key := fullNeuronKey()

	next, err := key.Set("mtype", "SR_SCA")
	require.NoError(t, err)

	assert.Equal(t, "SLM", next.Value("layer"))
	assert.Equal(t, "SR_SCA", next.Value("mtype"))
	assert.False(t, next.IsSet("etype"))
	assert.False(t, next.IsSet("instance"))

	// the original key is untouched
	assert.Equal(t, "bAC", key.Value("etype"))
}

func TestKey_SetCascadeInvariant(t *testing.T) {
	fields := neuronOrder.Fields()
	for i, f := range fields {
		for _, v := range []string{"X", ""} {
			next, err := fullNeuronKey().Set(f, v)
			require.NoError(t, err)

			for _, downstream := range fields[i+1:] {
				assert.False(t, next.IsSet(downstream), "set %s=%q left %s set", f, v, downstream)
			}
			for _, upstream := range fields[:i] {
				assert.True(t, next.IsSet(upstream), "set %s=%q cleared %s", f, v, upstream)
			}
		}
	}
}

func TestKey_SetUnknownField(t *testing.T) {
	_, err := fullNeuronKey().Set("region", "CA1")
	assert.True(t, errors.Is(err, ErrUnknownField))

	assert.Panics(t, func() {
		fullNeuronKey().MustSet("region", "CA1")
	})
}

func TestKey_SetEmptyClearsField(t *testing.T) {
	next, err := fullNeuronKey().Set("layer", "")
	require.NoError(t, err)
	assert.True(t, next.IsEmpty())
}

func TestFromQuery_NormalizesOrphans(t *testing.T) {
	q := url.Values{}
	q.Set("mtype", "SLM_PPA")
	q.Set("etype", "bAC")

	key := FromQuery(neuronOrder, q)
	assert.True(t, key.IsEmpty())
	assert.False(t, key.IsSet("mtype"))

	q.Set("layer", "SLM")
	key = FromQuery(neuronOrder, q)
	assert.Equal(t, "SLM", key.Value("layer"))
	assert.Equal(t, "bAC", key.Value("etype"))
	assert.False(t, key.IsSet("instance"))
}

func TestKey_QueryRoundTrip(t *testing.T) {
	key := fullNeuronKey()
	back := FromQuery(neuronOrder, key.Query())
	assert.True(t, key.Equal(back))
	assert.Equal(t, "etype=bAC&instance=011127HP1&layer=SLM&mtype=SLM_PPA", key.Encode())
}

func TestKey_Prefix(t *testing.T) {
	p, err := fullNeuronKey().Prefix("etype")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"layer": "SLM", "mtype": "SLM_PPA"}, p.Values())
}

func TestKey_Complete(t *testing.T) {
	key := fullNeuronKey()
	assert.True(t, key.Complete())
	assert.True(t, key.CompleteThrough("mtype"))

	partial := key.MustSet("etype", "")
	assert.False(t, partial.Complete())
	assert.True(t, partial.CompleteThrough("mtype"))
	assert.False(t, partial.CompleteThrough("etype"))
	assert.False(t, partial.CompleteThrough("unknown"))
}

func TestKey_String(t *testing.T) {
	key := NewKey(neuronOrder).MustSet("layer", "SR")
	assert.Equal(t, "{layer=SR}", key.String())
}
