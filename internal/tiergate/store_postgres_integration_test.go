//go:build integration

package tiergate

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	id "vouch/pkg/domain"
	"vouch/pkg/testutil/containers"
)

func TestPostgresConsumptionStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pg := containers.NewPostgres(t, Schema)
	store := NewPostgresConsumptionStore(pg.DB)
	ctx := context.Background()

	userID := id.UserID(uuid.New())

	consumed, err := store.Consumed(ctx, userID)
	require.NoError(t, err)
	require.False(t, consumed)

	const attempts = 8
	var wg sync.WaitGroup
	wins := make(chan bool, attempts)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.TryConsume(ctx, userID)
			require.NoError(t, err)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for ok := range wins {
		if ok {
			count++
		}
	}
	require.Equal(t, 1, count, "exactly one claim may win")

	consumed, err = store.Consumed(ctx, userID)
	require.NoError(t, err)
	require.True(t, consumed)
}
