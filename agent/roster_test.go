package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/backend"
	"github.com/hupe1980/agentrelay/internal/testutil"
)

func TestRoster(t *testing.T) {
	pool := testutil.NewMockPool(backend.NewMockClient())
	model := testutil.MockModel("m1", testutil.MockBackend("mock", 1), 100)
	zeus, err := New("Zeus", model, pool)
	require.NoError(t, err)
	hermes, err := New("Hermes", model, pool)
	require.NoError(t, err)

	r := NewRoster(zeus, hermes)

	assert.Equal(t, []string{"Hermes", "Zeus"}, r.Names())
	assert.True(t, r.Has("Zeus"))
	assert.False(t, r.Has("Apollo"))

	got, err := r.Get("Hermes")
	require.NoError(t, err)
	assert.Same(t, hermes, got)

	_, err = r.Get("Apollo")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	assert.Error(t, r.Add(zeus))
	assert.Len(t, r.Agents(), 2)
}

func TestInstruction_Provider(t *testing.T) {
	inst := NewInstructionFromFunc(func(state map[string]any) (string, error) {
		return "dynamic " + state["name"].(string), nil
	})
	assert.False(t, inst.IsStatic())
	out, err := inst.Resolve(map[string]any{"name": "Zeus"})
	require.NoError(t, err)
	assert.Equal(t, "dynamic Zeus", out)

	static := NewInstructionFromText("plain")
	assert.True(t, static.IsStatic())
}
