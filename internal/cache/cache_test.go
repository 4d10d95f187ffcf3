package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestMemory_ExpiresWithInjectedClock(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	c := NewMemory(clk.now)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 30*time.Second))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(got))

	clk.t = clk.t.Add(30 * time.Second)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemory_DeleteInvalidates(t *testing.T) {
	c := NewMemory(nil)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))

	require.NoError(t, c.Delete(ctx, "a", "missing"))

	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "b")
	assert.True(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	c := NewMemory(nil)
	ctx := context.Background()

	type payload struct {
		Orders int `json:"orders"`
	}
	require.NoError(t, SetJSON(ctx, c, "p", payload{Orders: 7}, time.Minute))

	var out payload
	found, err := GetJSON(ctx, c, "p", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 7, out.Orders)

	found, err = GetJSON(ctx, c, "absent", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "broken", []byte("{"), 0))
	_, err = GetJSON(ctx, c, "broken", &out)
	assert.Error(t, err)
}
