package chat

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// associationsAreLive checks that every username maps to a live clientId.
func associationsAreLive(t *testing.T, snap Snapshot) bool {
	t.Helper()
	for u, id := range snap.Associations {
		if !lo.Contains(snap.Live, id) {
			t.Errorf("%s -> %s but %s is not live (live=%v)", u, id, id, snap.Live)
			return false
		}
	}
	return true
}

func TestRegistry_ConcurrentMutation(t *testing.T) {
	const (
		workers = 8
		ops     = 300
	)
	ctx := context.Background()
	f := newFixture(t)
	users := []string{"u0", "u1", "u2", "u3", "u4", "u5"}
	clients := []string{"c0", "c1", "c2", "c3"}
	f.register(t, users...)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for i := 0; i < ops; i++ {
				u := users[rnd.Intn(len(users))]
				c := clients[rnd.Intn(len(clients))]
				switch rnd.Intn(6) {
				case 0:
					f.reg.Connect(c, &fakeHandle{})
				case 1:
					_ = f.reg.Associate(ctx, u, c)
				case 2:
					_ = f.reg.Disconnect(ctx, c)
				case 3:
					_, _ = f.disp.Deliver(ctx, u, fmt.Sprintf("op-%d", i))
				case 4:
					f.reg.RepairAssociation(u, c)
				default:
					if !associationsAreLive(t, f.reg.Snapshot()) {
						return
					}
				}
			}
		}(int64(w + 1))
	}
	wg.Wait()

	snap := f.reg.Snapshot()
	require.True(t, associationsAreLive(t, snap))
	for _, id := range snap.Associations {
		assert.True(t, f.reg.IsLive(id))
	}
}
