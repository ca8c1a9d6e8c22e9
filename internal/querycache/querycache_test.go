package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestKey(t *testing.T) {
	t.Run("encoding is collision free", func(t *testing.T) {
		assert.NotEqual(t, NewKey("a:b").String(), NewKey("a", "b").String())
		assert.NotEqual(t, NewKey("a,b").String(), NewKey("a", "b").String())
		assert.Equal(t, `["browser","playlists","P1"]`, NewKey("browser", "playlists", "P1").String())
	})

	t.Run("HasPrefix", func(t *testing.T) {
		k := NewKey("browser", "playlists", "P1", "analysis")
		assert.True(t, k.HasPrefix(NewKey("browser", "playlists", "P1")))
		assert.True(t, k.HasPrefix(nil))
		assert.False(t, k.HasPrefix(NewKey("browser", "playlists", "P2")))
		assert.False(t, NewKey("a").HasPrefix(NewKey("a", "b")))
	})

	t.Run("With copies", func(t *testing.T) {
		base := make(Key, 1, 4)
		base[0] = "root"
		a := base.With("x")
		b := base.With("y")
		assert.Equal(t, NewKey("root", "x"), a)
		assert.Equal(t, NewKey("root", "y"), b)
	})
}

func TestCache(t *testing.T) {
	ctx := context.Background()

	t.Run("Set and Get", func(t *testing.T) {
		c := New()
		_, ok := c.Get(NewKey("missing"))
		assert.False(t, ok)

		c.Set(NewKey("notifications", "n1"), "hello")
		e, ok := c.Get(NewKey("notifications", "n1"))
		require.True(t, ok)
		assert.Equal(t, "hello", e.Data)
		assert.Equal(t, StatusSuccess, e.Status)
		assert.False(t, e.Invalidated)

		c.Set(NewKey("notifications", "n1"), "again")
		got, ok := GetAs[string](c, NewKey("notifications", "n1"))
		require.True(t, ok)
		assert.Equal(t, "again", got)
	})

	t.Run("Invalidate by prefix", func(t *testing.T) {
		c := New()
		c.Set(NewKey("browser", "playlists", "P1"), 1)
		c.Set(NewKey("browser", "playlists", "P1", "analysis"), 2)
		c.Set(NewKey("browser", "playlists", "P2"), 3)

		n := c.Invalidate(NewKey("browser", "playlists", "P1"))
		assert.Equal(t, 2, n)

		e, _ := c.Get(NewKey("browser", "playlists", "P1"))
		assert.True(t, e.Invalidated)
		e, _ = c.Get(NewKey("browser", "playlists", "P1", "analysis"))
		assert.True(t, e.Invalidated)
		e, _ = c.Get(NewKey("browser", "playlists", "P2"))
		assert.False(t, e.Invalidated)
	})

	t.Run("Fetch caches within stale time", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(0, 0)}
		c := New(WithStaleTime(time.Minute), WithClock(clock.Now))

		var calls atomic.Int32
		q := Query{
			Key:     NewKey("tracks"),
			Enabled: true,
			Fn: func(context.Context) (any, error) {
				return int(calls.Add(1)), nil
			},
		}

		v, err := c.Fetch(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, 1, v)

		v, err = c.Fetch(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, 1, v)

		clock.Advance(2 * time.Minute)
		v, err = c.Fetch(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, 2, v)

		e, _ := c.Get(q.Key)
		assert.Equal(t, 2, e.FetchCount)
	})

	t.Run("Fetch after invalidation refetches", func(t *testing.T) {
		c := New(WithStaleTime(time.Hour))
		var calls atomic.Int32
		q := Query{Key: NewKey("p"), Enabled: true, Fn: func(context.Context) (any, error) {
			return int(calls.Add(1)), nil
		}}

		_, err := c.Fetch(ctx, q)
		require.NoError(t, err)
		c.Invalidate(NewKey("p"))

		v, err := c.Fetch(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, 2, v)

		e, _ := c.Get(q.Key)
		assert.False(t, e.Invalidated)
	})

	t.Run("Fetch records errors and keeps data", func(t *testing.T) {
		c := New()
		boom := errors.New("boom")
		fail := false
		q := Query{Key: NewKey("x"), Enabled: true, Fn: func(context.Context) (any, error) {
			if fail {
				return nil, boom
			}
			return "ok", nil
		}}

		_, err := c.Fetch(ctx, q)
		require.NoError(t, err)

		fail = true
		_, err = c.Fetch(ctx, q)
		assert.ErrorIs(t, err, boom)

		e, _ := c.Get(q.Key)
		assert.Equal(t, StatusError, e.Status)
		assert.ErrorIs(t, e.Err, boom)
		assert.Equal(t, "ok", e.Data)
	})

	t.Run("disabled query does not run", func(t *testing.T) {
		c := New()
		called := false
		_, err := c.Fetch(ctx, Query{Key: NewKey("ids"), Fn: func(context.Context) (any, error) {
			called = true
			return nil, nil
		}})
		assert.ErrorIs(t, err, ErrQueryDisabled)
		assert.False(t, called)
		assert.Zero(t, c.Len())
	})

	t.Run("concurrent fetches coalesce", func(t *testing.T) {
		c := New(WithStaleTime(time.Minute))
		var calls atomic.Int32
		release := make(chan struct{})
		q := Query{Key: NewKey("slow"), Enabled: true, Fn: func(context.Context) (any, error) {
			calls.Add(1)
			<-release
			return "done", nil
		}}

		var wg sync.WaitGroup
		results := make(chan any, 8)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := c.Fetch(ctx, q)
				if err == nil {
					results <- v
				}
			}()
		}

		require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
		close(release)
		wg.Wait()
		close(results)

		assert.Equal(t, int32(1), calls.Load())
		for v := range results {
			assert.Equal(t, "done", v)
		}
	})

	t.Run("invalidation during fetch survives completion", func(t *testing.T) {
		c := New(WithStaleTime(time.Hour))
		var calls atomic.Int32
		started := make(chan struct{}, 1)
		release := make(chan struct{})
		q := Query{Key: NewKey("p", "1"), Enabled: true, Fn: func(context.Context) (any, error) {
			n := calls.Add(1)
			if n == 1 {
				started <- struct{}{}
				<-release
				return "old", nil
			}
			return "new", nil
		}}

		events, cancel := c.Subscribe(NewKey("p"))
		defer cancel()

		done := make(chan error, 1)
		go func() {
			_, err := c.Fetch(ctx, q)
			done <- err
		}()

		<-started
		c.Invalidate(NewKey("p"))
		close(release)
		require.NoError(t, <-done)

		e, ok := c.Get(q.Key)
		require.True(t, ok)
		assert.Equal(t, "old", e.Data)
		assert.True(t, e.Invalidated)

		var kinds []EventKind
		for len(kinds) < 3 {
			select {
			case ev := <-events:
				kinds = append(kinds, ev.Kind)
			case <-time.After(time.Second):
				t.Fatalf("missing events, got %v", kinds)
			}
		}
		assert.Equal(t, []EventKind{EventInvalidated, EventUpdated, EventInvalidated}, kinds)

		v, err := c.Fetch(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, "new", v)
		assert.Equal(t, int32(2), calls.Load())

		e, _ = c.Get(q.Key)
		assert.False(t, e.Invalidated)
	})

	t.Run("cancelled caller does not fail coalesced waiters", func(t *testing.T) {
		c := New(WithStaleTime(time.Minute))
		var calls atomic.Int32
		release := make(chan struct{})
		q := Query{Key: NewKey("shared"), Enabled: true, Fn: func(fnCtx context.Context) (any, error) {
			calls.Add(1)
			select {
			case <-release:
				return "done", nil
			case <-fnCtx.Done():
				return nil, fnCtx.Err()
			}
		}}

		first, cancelFirst := context.WithCancel(ctx)
		firstErr := make(chan error, 1)
		go func() {
			_, err := c.Fetch(first, q)
			firstErr <- err
		}()
		require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

		second := make(chan any, 1)
		go func() {
			v, err := c.Fetch(ctx, q)
			if err != nil {
				second <- err
				return
			}
			second <- v
		}()

		cancelFirst()
		assert.ErrorIs(t, <-firstErr, context.Canceled)

		close(release)
		assert.Equal(t, "done", <-second)
		assert.Equal(t, int32(1), calls.Load())

		e, _ := c.Get(q.Key)
		assert.Equal(t, StatusSuccess, e.Status)
		assert.NoError(t, e.Err)
	})

	t.Run("FetchAs type mismatch", func(t *testing.T) {
		c := New()
		_, err := FetchAs[int](ctx, c, Query{Key: NewKey("s"), Enabled: true, Fn: func(context.Context) (any, error) {
			return "string", nil
		}})
		assert.Error(t, err)
	})

	t.Run("Subscribe", func(t *testing.T) {
		c := New()
		events, cancel := c.Subscribe(NewKey("browser", "playlists"))
		defer cancel()

		c.Set(NewKey("notifications", "n1"), 1)
		c.Set(NewKey("browser", "playlists", "P1"), 1)
		c.Invalidate(NewKey("browser", "playlists", "P1"))

		ev := <-events
		assert.Equal(t, EventUpdated, ev.Kind)
		assert.Equal(t, NewKey("browser", "playlists", "P1"), ev.Key)

		ev = <-events
		assert.Equal(t, EventInvalidated, ev.Kind)

		select {
		case ev := <-events:
			t.Fatalf("unexpected event %+v", ev)
		default:
		}
	})

	t.Run("Subscribe cancel closes channel", func(t *testing.T) {
		c := New()
		events, cancel := c.Subscribe(nil)
		cancel()
		cancel()

		_, open := <-events
		assert.False(t, open)
		c.Set(NewKey("k"), 1)
	})

	t.Run("Reset", func(t *testing.T) {
		c := New()
		c.Set(NewKey("a"), 1)
		c.Set(NewKey("b"), 2)
		events, cancel := c.Subscribe(NewKey("a"))
		defer cancel()

		c.Reset()
		assert.Zero(t, c.Len())
		assert.Equal(t, EventReset, (<-events).Kind)
	})
}
