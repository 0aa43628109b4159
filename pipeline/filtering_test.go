package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticFilter(name string, pass bool) *FilterFunc {
	return NewFilterFunc(name, func(ctx context.Context, rc *Context) (bool, error) {
		return pass, nil
	})
}

func TestCompositeFilter(t *testing.T) {
	tests := []struct {
		name    string
		filters []FilterStage
		want    bool
	}{
		{"no filters", nil, true},
		{"all pass", []FilterStage{staticFilter("a", true), staticFilter("b", true)}, true},
		{"one fails", []FilterStage{staticFilter("a", true), staticFilter("b", false)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewCompositeFilter("all", tt.filters...)

			pass, err := f.Filter(context.Background(), NewContext("req"))

			require.NoError(t, err)
			assert.Equal(t, tt.want, pass)
			assert.Equal(t, "all", f.Name())
		})
	}

	t.Run("error stops evaluation", func(t *testing.T) {
		boom := errors.New("boom")
		second := &countingFilter{name: "second", pass: true}
		f := NewCompositeFilter("all",
			NewFilterFunc("broken", func(ctx context.Context, rc *Context) (bool, error) {
				return false, boom
			}),
			second,
		)

		_, err := f.Filter(context.Background(), NewContext("req"))

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, second.calls)
	})
}

func TestOrFilter(t *testing.T) {
	tests := []struct {
		name    string
		filters []FilterStage
		want    bool
	}{
		{"no filters", nil, false},
		{"one passes", []FilterStage{staticFilter("a", false), staticFilter("b", true)}, true},
		{"none pass", []FilterStage{staticFilter("a", false), staticFilter("b", false)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pass, err := NewOrFilter("any", tt.filters...).Filter(context.Background(), NewContext("req"))

			require.NoError(t, err)
			assert.Equal(t, tt.want, pass)
		})
	}
}

func TestMatchFilter(t *testing.T) {
	t.Run("invalid pattern", func(t *testing.T) {
		_, err := NewMatchFilter("bad", "([")
		assert.Error(t, err)
	})

	t.Run("matches request", func(t *testing.T) {
		f, err := NewMatchFilter("gear", `gear\s*box`)
		require.NoError(t, err)

		pass, err := f.Filter(context.Background(), NewContext("check the gear box"))
		require.NoError(t, err)
		assert.True(t, pass)
	})

	t.Run("rejects with reason inside a pipeline", func(t *testing.T) {
		f, err := NewMatchFilter("gear", `gear\s*box`)
		require.NoError(t, err)
		p := New("test", nil).Add(f)

		rc := NewContext("check the engine")
		pass, err := p.RunShortCircuit(context.Background(), rc)

		require.NoError(t, err)
		assert.False(t, pass)
		rejection, ok := rc.Rejection()
		require.True(t, ok)
		assert.Equal(t, "gear", rejection.Stage)
		assert.Contains(t, rejection.Reason, `gear\s*box`)
	})
}

func TestValueFilter(t *testing.T) {
	f := NewValueFilter("tier", "gold")

	rc := NewContextWithValues("req", map[string]interface{}{"tier": "gold"})
	pass, err := f.Filter(context.Background(), rc)
	require.NoError(t, err)
	assert.True(t, pass)

	pass, err = f.Filter(context.Background(), NewContext("req"))
	require.NoError(t, err)
	assert.False(t, pass)
	assert.Equal(t, "ValueFilter[tier]", f.Name())

	t.Run("typed and printed values match", func(t *testing.T) {
		f := NewValueFilter("attempt", 3)

		for _, value := range []interface{}{3, "3"} {
			pass, err := f.Filter(context.Background(), NewContextWithValues("req", map[string]interface{}{"attempt": value}))
			require.NoError(t, err)
			assert.True(t, pass, "%#v", value)
		}

		rc := NewContextWithValues("req", map[string]interface{}{"attempt": 4})
		pass, err := f.Filter(context.Background(), rc)
		require.NoError(t, err)
		assert.False(t, pass)
	})

	t.Run("uncomparable values do not panic", func(t *testing.T) {
		f := NewValueFilter("tags", []string{"a", "b"})

		assert.NotPanics(t, func() {
			pass, err := f.Filter(context.Background(), NewContextWithValues("req", map[string]interface{}{"tags": []string{"a", "b"}}))
			require.NoError(t, err)
			assert.True(t, pass)

			pass, err = f.Filter(context.Background(), NewContextWithValues("req", map[string]interface{}{"tags": map[string]int{"a": 1}}))
			require.NoError(t, err)
			assert.False(t, pass)
		})
	})
}

func TestConditionalStage(t *testing.T) {
	marker := NewInterceptFunc("marker", func(ctx context.Context, rc *Context, next Continuation) error {
		rc.Append("marked")
		return next()
	})

	t.Run("runs interceptor when condition passes", func(t *testing.T) {
		p := New("test", nil).
			Add(NewConditionalStage(staticFilter("yes", true), marker)).
			Add(nestingStage(1))

		rc := NewContext("req")
		require.NoError(t, p.RunWrapped(context.Background(), rc))

		assert.Equal(t, []string{"marked", "before_1", "after_1"}, rc.Fragments())
	})

	t.Run("continues without interceptor when condition fails", func(t *testing.T) {
		p := New("test", nil).
			Add(NewConditionalStage(staticFilter("no", false), marker)).
			Add(nestingStage(1))

		rc := NewContext("req")
		require.NoError(t, p.RunWrapped(context.Background(), rc))

		assert.Equal(t, []string{"before_1", "after_1"}, rc.Fragments())
	})

	t.Run("condition error is a stage fault", func(t *testing.T) {
		boom := errors.New("boom")
		stage := NewConditionalStage(NewFilterFunc("broken", func(ctx context.Context, rc *Context) (bool, error) {
			return false, boom
		}), marker)
		p := New("test", nil).Add(stage)

		err := p.RunWrapped(context.Background(), NewContext("req"))

		assert.ErrorIs(t, err, boom)
		assert.True(t, IsStageFault(err))
		assert.Equal(t, "ConditionalStage[marker]", stage.Name())
	})
}
