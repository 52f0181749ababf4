package selection

import (
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNavigator_PushAndVersions(t *testing.T) {
	nav := NewNavigator(NewKey(neuronOrder))
	assert.Equal(t, uint64(1), nav.Current().Version)
	assert.Equal(t, KindInitial, nav.Current().Kind)

	e, err := nav.SetField("layer", "SLM")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), e.Version)
	assert.Equal(t, KindPush, e.Kind)
	assert.Equal(t, "layer=SLM", e.Query)

	e, err = nav.SetField("mtype", "SLM_PPA")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), e.Version)

	_, err = nav.SetField("bogus", "x")
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.Equal(t, uint64(3), nav.Current().Version)
}

func TestNavigator_BackForward(t *testing.T) {
	nav := NewNavigator(NewKey(neuronOrder))
	_, _ = nav.SetField("layer", "SLM")
	_, _ = nav.SetField("mtype", "SLM_PPA")

	e, ok := nav.Back()
	require.True(t, ok)
	assert.Equal(t, KindBack, e.Kind)
	assert.Equal(t, "layer=SLM", e.Query)

	e, ok = nav.Forward()
	require.True(t, ok)
	assert.Equal(t, "layer=SLM&mtype=SLM_PPA", e.Query)

	_, ok = nav.Forward()
	assert.False(t, ok)

	// pushing after going back drops forward steps
	nav.Back()
	_, _ = nav.SetField("layer", "SR")
	assert.False(t, nav.CanGoForward())
	assert.True(t, nav.CanGoBack())
}

func TestNavigator_ConcurrentSetFieldKeepsEveryUpdate(t *testing.T) {
	order := MustOrder("a", "b")
	for i := 0; i < 2000; i++ {
		nav := NewNavigator(NewKey(order).MustSet("a", "1"))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = nav.SetField("b", "x")
		}()
		go func() {
			defer wg.Done()
			_, _ = nav.SetField("a", "2")
		}()
		wg.Wait()

		// either serial order ends with a=2
		require.Equal(t, "2", nav.Key().Value("a"), "run %d", i)
		require.Equal(t, uint64(3), nav.Current().Version)
		require.Len(t, nav.Log(), 3)
	}
}

func TestNavigator_ReplaceKeepsStackDepth(t *testing.T) {
	nav := NewNavigator(NewKey(neuronOrder))
	nav.Replace(NewKey(neuronOrder).MustSet("layer", "SO"))

	assert.False(t, nav.CanGoBack())
	assert.Equal(t, "SO", nav.Key().Value("layer"))

	_, ok := nav.Back()
	assert.False(t, ok)
}

func TestNavigator_LogIsAppendOnly(t *testing.T) {
	nav := NewNavigator(NewKey(neuronOrder))
	_, _ = nav.SetField("layer", "SLM")
	nav.Back()
	nav.Forward()

	log := nav.Log()
	require.Len(t, log, 4)
	kinds := []Kind{KindInitial, KindPush, KindBack, KindForward}
	for i, e := range log {
		assert.Equal(t, kinds[i], e.Kind)
		assert.Equal(t, uint64(i+1), e.Version)
	}

	// the returned slice is a copy
	log[0].Query = "tampered"
	assert.Equal(t, "", nav.Log()[0].Query)
}

func TestNavigator_Listeners(t *testing.T) {
	nav := NewNavigator(NewKey(neuronOrder))

	var seen []Entry
	nav.OnChange(func(e Entry) {
		// listeners may read the navigator without deadlocking
		_ = nav.Current()
		seen = append(seen, e)
	})

	_, _ = nav.SetField("layer", "SLM")
	nav.Replace(nav.Key().MustSet("mtype", "SLM_PPA"))

	require.Len(t, seen, 2)
	assert.Equal(t, KindPush, seen[0].Kind)
	assert.Equal(t, KindReplace, seen[1].Kind)
}

func TestPreselection_Apply(t *testing.T) {
	pre := Preselection{
		Driving: []string{"layer"},
		Defaults: map[string]string{
			"layer":    "SLM",
			"mtype":    "SLM_PPA",
			"etype":    "bAC",
			"instance": "CA1_int_bAC_011127HP1_20190329115610",
		},
	}
	require.NoError(t, pre.Validate(neuronOrder))

	nav := NewNavigator(FromQuery(neuronOrder, url.Values{}))
	assert.True(t, pre.Apply(nav))

	cur := nav.Current()
	assert.Equal(t, KindReplace, cur.Kind)
	assert.True(t, cur.Key.Complete())
	assert.False(t, nav.CanGoBack())
}

func TestPreselection_Idempotent(t *testing.T) {
	pre := Preselection{
		Driving:  []string{"layer"},
		Defaults: map[string]string{"layer": "SLM", "mtype": "SLM_PPA"},
	}

	q := url.Values{}
	q.Set("layer", "SR")
	nav := NewNavigator(FromQuery(neuronOrder, q))
	before := nav.Current()

	assert.False(t, pre.Apply(nav))
	assert.False(t, pre.Apply(nav))

	after := nav.Current()
	assert.Equal(t, before.Version, after.Version)
	assert.True(t, before.Key.Equal(after.Key))
}

func TestPreselection_AnyDrivingFieldCounts(t *testing.T) {
	order := MustOrder("volume_section", "prelayer", "postlayer")
	pre := Preselection{
		Driving:  []string{"volume_section", "prelayer", "postlayer"},
		Defaults: map[string]string{"volume_section": "region", "prelayer": "SP_PC", "postlayer": "SP_PC"},
	}

	q := url.Values{}
	q.Set("volume_section", "slice")
	nav := NewNavigator(FromQuery(order, q))
	assert.False(t, pre.Apply(nav))
	assert.Equal(t, "slice", nav.Key().Value("volume_section"))
}

func TestPreselection_ValidateUnknownField(t *testing.T) {
	pre := Preselection{Driving: []string{"region"}}
	assert.ErrorIs(t, pre.Validate(neuronOrder), ErrUnknownField)

	pre = Preselection{Defaults: map[string]string{"region": "CA1"}}
	assert.ErrorIs(t, pre.Validate(neuronOrder), ErrUnknownField)
}
