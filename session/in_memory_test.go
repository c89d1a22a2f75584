package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_CreateGet(t *testing.T) {
	s := NewInMemoryStore()
	created, err := s.Create("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", created.ID)
	assert.Empty(t, created.GetEvents())

	lazy, err := s.Get("s2")
	require.NoError(t, err)
	assert.Equal(t, "s2", lazy.ID)
}

func TestInMemoryStore_AppendAndClone(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.AppendEvent("s1", NewEvent("s1", "t1", "Zeus", EventInput, "hello")))
	require.NoError(t, s.AppendEvent("s1", NewEvent("s1", "t1", "Zeus", EventReply, "hi")))
	require.NoError(t, s.AppendEvent("s1", NewEvent("s1", "t2", "Zeus", EventInput, "again")))

	sess, err := s.Get("s1")
	require.NoError(t, err)
	events := sess.GetEvents()
	require.Len(t, events, 3)
	assert.Equal(t, EventInput, events[0].Kind)
	assert.NotEmpty(t, events[0].ID)
	assert.NotEqual(t, events[0].ID, events[1].ID)
	assert.Len(t, sess.TurnEvents("t1"), 2)

	sess.AddEvent(NewEvent("s1", "t3", "Zeus", EventError, "local only"))
	again, err := s.Get("s1")
	require.NoError(t, err)
	assert.Len(t, again.GetEvents(), 3)
}

func TestInMemoryStore_ApplyDelta(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.ApplyDelta("s1", map[string]any{"active_agent": "Hermes"}))

	sess, err := s.Get("s1")
	require.NoError(t, err)
	v, ok := sess.GetState("active_agent")
	require.True(t, ok)
	assert.Equal(t, "Hermes", v)
}

func TestInMemoryStore_Concurrent(t *testing.T) {
	s := NewInMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.AppendEvent("s1", NewEvent("s1", "t", "a", EventAction, "x"))
			_, _ = s.Get("s1")
		}()
	}
	wg.Wait()
	sess, err := s.Get("s1")
	require.NoError(t, err)
	assert.Len(t, sess.GetEvents(), 20)
}
