package kvstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behaviour every driver must share.
func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok, "missing key must report ok=false")

	require.NoError(t, store.Set(ctx, "lb_device_id", `{"deviceId":"abc"}`))
	v, ok, err := store.Get(ctx, "lb_device_id")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"deviceId":"abc"}`, v)

	require.NoError(t, store.Set(ctx, "lb_device_id", "legacy-plain-value"))
	v, _, err = store.Get(ctx, "lb_device_id")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plain-value", v, "set must overwrite")

	require.NoError(t, store.Remove(ctx, "lb_device_id"))
	_, ok, err = store.Get(ctx, "lb_device_id")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Remove(ctx, "never-set"), "removing an absent key is not an error")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Set(ctx, "lb_submission_p1", fmt.Sprintf("writer-%d", i)))
		}(i)
	}
	wg.Wait()
	v, ok, err = store.Get(ctx, "lb_submission_p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Regexp(t, `^writer-\d$`, v, "concurrent writes are last-write-wins, never corrupt")
}
