package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext(t *testing.T) {
	t.Run("NewContext", func(t *testing.T) {
		rc := NewContext("check engine")

		assert.NotEmpty(t, rc.ID())
		assert.Equal(t, "check engine", rc.Request())
		assert.Empty(t, rc.Fragments())
		assert.False(t, rc.Sealed())
	})

	t.Run("each context has its own id", func(t *testing.T) {
		assert.NotEqual(t, NewContext("a").ID(), NewContext("a").ID())
	})

	t.Run("NewContextWithValues copies fields", func(t *testing.T) {
		fields := map[string]interface{}{"vin": "WVW123", "mileage": 42000}
		rc := NewContextWithValues("inspect", fields)
		fields["vin"] = "changed"

		vin, ok := rc.GetString("vin")
		assert.True(t, ok)
		assert.Equal(t, "WVW123", vin)

		mileage, ok := rc.GetInt("mileage")
		assert.True(t, ok)
		assert.Equal(t, 42000, mileage)
	})

	t.Run("Set Get Delete", func(t *testing.T) {
		rc := NewContext("req")

		rc.Set("key", "value")
		val, exists := rc.Get("key")
		assert.True(t, exists)
		assert.Equal(t, "value", val)

		_, ok := rc.GetInt("key")
		assert.False(t, ok)

		rc.Delete("key")
		_, exists = rc.Get("key")
		assert.False(t, exists)

		str, ok := rc.GetString("missing")
		assert.False(t, ok)
		assert.Empty(t, str)
	})

	t.Run("Append keeps order", func(t *testing.T) {
		rc := NewContext("req")

		rc.Append("one")
		rc.Append("two", "three")

		assert.Equal(t, []string{"one", "two", "three"}, rc.Fragments())
		assert.Equal(t, "one\ntwo\nthree", rc.Response())
	})

	t.Run("Fragments returns a copy", func(t *testing.T) {
		rc := NewContext("req")
		rc.Append("one")

		fragments := rc.Fragments()
		fragments[0] = "mutated"

		assert.Equal(t, []string{"one"}, rc.Fragments())
	})

	t.Run("sealed context drops appends", func(t *testing.T) {
		rc := NewContext("req")
		rc.Append("kept")
		rc.seal()
		rc.Append("dropped")

		assert.True(t, rc.Sealed())
		assert.Equal(t, []string{"kept"}, rc.Fragments())
	})

	t.Run("Reject returns false and keeps the reason", func(t *testing.T) {
		rc := NewContext("req")

		assert.False(t, rc.Reject("no engine"))
		_, rejected := rc.Rejection()
		assert.False(t, rejected)

		rc.reject(3, "EngineFilter")
		rejection, ok := rc.Rejection()
		require.True(t, ok)
		assert.Equal(t, "no engine", rejection.Reason)
		assert.Equal(t, 3, rejection.Index)
	})

	t.Run("run-local values flow between stages", func(t *testing.T) {
		p := New("test", nil).
			Add(NewInterceptFunc("writer", func(ctx context.Context, rc *Context, next Continuation) error {
				rc.Set("checked", 1)
				return next()
			})).
			Add(NewInterceptFunc("reader", func(ctx context.Context, rc *Context, next Continuation) error {
				n, _ := rc.GetInt("checked")
				rc.Set("checked", n+1)
				return next()
			}))

		rc := NewContext("req")
		require.NoError(t, p.RunWrapped(context.Background(), rc))

		n, ok := rc.GetInt("checked")
		assert.True(t, ok)
		assert.Equal(t, 2, n)
	})
}
