package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmit(t *testing.T) {
	t.Run("invokes handlers in registration order", func(t *testing.T) {
		b := New()
		var order []string
		b.On("greet", func(...any) { order = append(order, "first") })
		b.On("greet", func(...any) { order = append(order, "second") })
		b.On("greet", func(...any) { order = append(order, "third") })

		b.Emit("greet")

		assert.Equal(t, []string{"first", "second", "third"}, order)
	})

	t.Run("passes args through unmodified", func(t *testing.T) {
		b := New()
		var got []any
		b.On("greet", func(args ...any) { got = args })

		payload := map[string]string{"user": "david"}
		b.Emit("greet", payload, 42)

		assert.Len(t, got, 2)
		assert.Equal(t, payload, got[0])
		assert.Equal(t, 42, got[1])
	})

	t.Run("same handler registered twice runs once per registration", func(t *testing.T) {
		b := New()
		calls := 0
		h := func(...any) { calls++ }
		b.On("greet", h)
		b.On("greet", h)

		b.Emit("greet")

		assert.Equal(t, 2, calls)
	})

	t.Run("event with no subscribers is a no-op", func(t *testing.T) {
		b := New()
		assert.NotPanics(t, func() { b.Emit("nobody-listens") })
	})

	t.Run("panicking handler does not stop the others or the emitter", func(t *testing.T) {
		b := New()
		var after bool
		b.On("greet", func(...any) { panic("boom") })
		b.On("greet", func(...any) { after = true })

		assert.NotPanics(t, func() { b.Emit("greet") })
		assert.True(t, after)
	})
}

func TestOff(t *testing.T) {
	t.Run("removes exactly one registration", func(t *testing.T) {
		b := New()
		calls := 0
		h := func(...any) { calls++ }
		first := b.On("greet", h)
		b.On("greet", h)

		b.Off(first)
		b.Emit("greet")

		assert.Equal(t, 1, calls)
	})

	t.Run("removing twice is a no-op", func(t *testing.T) {
		b := New()
		calls := 0
		sub := b.On("greet", func(...any) { calls++ })
		b.On("greet", func(...any) { calls++ })

		b.Off(sub)
		b.Off(sub)
		b.Emit("greet")

		assert.Equal(t, 1, calls)
	})

	t.Run("unknown subscription is a no-op", func(t *testing.T) {
		b := New()
		assert.NotPanics(t, func() { b.Off(Subscription{event: "ghost", seq: 99}) })
	})
}

func TestMutationDuringEmit(t *testing.T) {
	t.Run("handler unsubscribing itself does not skip later handlers", func(t *testing.T) {
		b := New()
		var order []string
		var self Subscription
		self = b.On("greet", func(...any) {
			order = append(order, "self")
			b.Off(self)
		})
		b.On("greet", func(...any) { order = append(order, "other") })

		b.Emit("greet")
		assert.Equal(t, []string{"self", "other"}, order)

		b.Emit("greet")
		assert.Equal(t, []string{"self", "other", "other"}, order)
	})

	t.Run("handler subscribing during emit does not run in the same emit", func(t *testing.T) {
		b := New()
		calls := 0
		b.On("greet", func(...any) {
			b.On("greet", func(...any) { calls++ })
		})

		b.Emit("greet")
		assert.Equal(t, 0, calls)

		b.Emit("greet")
		assert.Equal(t, 1, calls)
	})
}
