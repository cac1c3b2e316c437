package delivery

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/graybeam/relaypoint/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaiterRegistry(t *testing.T) {
	assert := assert.New(t)

	t.Run("at most one waiter per recipient", func(t *testing.T) {
		registry := NewWaiterRegistry()

		_, err := registry.Register("bob", time.Now().Add(time.Second))
		assert.Nil(err)

		_, err = registry.Register("bob", time.Now().Add(time.Second))
		assert.ErrorIs(err, model.ErrorAlreadyWaiting)

		_, err = registry.Register("carol", time.Now().Add(time.Second))
		assert.Nil(err)
	})

	t.Run("resolve delivers the fetched batch", func(t *testing.T) {
		registry := NewWaiterRegistry()

		waiter, err := registry.Register("bob", time.Now().Add(time.Second))
		require.Nil(t, err)

		batch := []*model.Message{newTestMessage("bob", "hi")}
		assert.True(registry.TryResolve("bob", func() []*model.Message { return batch }))

		select {
		case got := <-waiter.Result():
			assert.Equal(batch, got)
		default:
			t.Fatal("waiter not completed")
		}

		// the waiter is gone, a second resolve finds nothing
		assert.False(registry.TryResolve("bob", func() []*model.Message { return batch }))
	})

	t.Run("empty fetch leaves the waiter live", func(t *testing.T) {
		registry := NewWaiterRegistry()

		waiter, err := registry.Register("bob", time.Now().Add(time.Second))
		require.Nil(t, err)

		assert.False(registry.TryResolve("bob", func() []*model.Message { return nil }))

		select {
		case <-waiter.Result():
			t.Fatal("waiter completed with nothing to deliver")
		default:
		}

		// still resolvable once mail shows up
		assert.True(registry.TryResolve("bob", func() []*model.Message {
			return []*model.Message{newTestMessage("bob", "later")}
		}))
	})

	t.Run("expire fires only past the deadline", func(t *testing.T) {
		registry := NewWaiterRegistry()

		waiter, err := registry.Register("bob", time.Now().Add(time.Hour))
		require.Nil(t, err)
		assert.False(registry.Expire("bob"))

		_, err = registry.Register("carol", time.Now().Add(-time.Millisecond))
		require.Nil(t, err)
		// carol's waiter may already have been expired by its own timer
		registry.Expire("carol")

		select {
		case <-waiter.Result():
			t.Fatal("unexpired waiter completed")
		default:
		}
	})

	t.Run("timer expires a waiter without outside help", func(t *testing.T) {
		registry := NewWaiterRegistry()

		waiter, err := registry.Register("bob", time.Now().Add(50*time.Millisecond))
		require.Nil(t, err)

		select {
		case batch := <-waiter.Result():
			assert.Empty(batch)
		case <-time.After(2 * time.Second):
			t.Fatal("waiter never expired")
		}
	})

	t.Run("cancel completes with an empty result", func(t *testing.T) {
		registry := NewWaiterRegistry()

		waiter, err := registry.Register("bob", time.Now().Add(time.Hour))
		require.Nil(t, err)

		assert.True(registry.Cancel("bob"))
		assert.False(registry.Cancel("bob"))

		select {
		case batch := <-waiter.Result():
			assert.Empty(batch)
		default:
			t.Fatal("cancelled waiter not completed")
		}

		// the slot is free again
		_, err = registry.Register("bob", time.Now().Add(time.Hour))
		assert.Nil(err)
	})

	t.Run("racing resolve and expire complete exactly once", func(t *testing.T) {
		for round := 0; round < 50; round++ {
			registry := NewWaiterRegistry()

			waiter, err := registry.Register("bob", time.Now().Add(time.Millisecond))
			require.Nil(t, err)

			var completions int32
			var wg sync.WaitGroup
			start := make(chan struct{})

			wg.Add(2)
			go func() {
				defer wg.Done()
				<-start
				if registry.TryResolve("bob", func() []*model.Message {
					return []*model.Message{newTestMessage("bob", "hi")}
				}) {
					atomic.AddInt32(&completions, 1)
				}
			}()
			go func() {
				defer wg.Done()
				<-start
				time.Sleep(time.Millisecond)
				if registry.Expire("bob") {
					atomic.AddInt32(&completions, 1)
				}
			}()

			close(start)
			wg.Wait()

			// the armed timer may have been the one that fired; what matters
			// is that the handle saw exactly one completion
			select {
			case <-waiter.Result():
			case <-time.After(time.Second):
				t.Fatal("waiter never completed")
			}
			select {
			case <-waiter.Result():
				t.Fatal("waiter completed twice")
			default:
			}
			assert.LessOrEqual(atomic.LoadInt32(&completions), int32(1))
		}
	})
}
