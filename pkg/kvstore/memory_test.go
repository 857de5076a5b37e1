package kvstore

import (
	"context"
	"testing"
)

func TestMemoryStoreContract(t *testing.T) {
	store := NewMemory()
	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})
	runStoreContract(t, store)
}
