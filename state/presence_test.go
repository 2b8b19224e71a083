package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresence(t *testing.T) {
	t.Run("first sighting creates a record", func(t *testing.T) {
		p := NewPresence()
		p.Apply("u1", "online")

		rec, ok := p.Get("u1")
		require.True(t, ok)
		assert.Equal(t, "online", rec.Status)
		assert.False(t, rec.LastSeen.IsZero())
	})

	t.Run("records survive offline transitions", func(t *testing.T) {
		p := NewPresence()
		p.Apply("u1", "online")
		first, _ := p.Get("u1")

		p.Apply("u1", "offline")

		rec, ok := p.Get("u1")
		require.True(t, ok, "offline must never delete the record")
		assert.Equal(t, "offline", rec.Status)
		assert.False(t, rec.LastSeen.Before(first.LastSeen))
	})

	t.Run("unknown user yields no record", func(t *testing.T) {
		p := NewPresence()
		_, ok := p.Get("ghost")
		assert.False(t, ok)
	})

	t.Run("online filters by status and orders by user id", func(t *testing.T) {
		p := NewPresence()
		p.Apply("zoe", "online")
		p.Apply("amy", "online")
		p.Apply("bob", "online")
		p.Apply("bob", "offline")

		online := p.Online()
		require.Len(t, online, 2)
		assert.Equal(t, "amy", online[0].UserID)
		assert.Equal(t, "zoe", online[1].UserID)

		assert.Len(t, p.All(), 3)
	})
}
