package certified

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetGetRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value Value[int64]
	}{
		{name: "certified", value: Certify[int64](500000)},
		{name: "uncertified", value: Uncertified[int64](42)},
		{name: "zero certified", value: Certify[int64](0)},
		{name: "zero uncertified", value: Value[int64]{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := NewStore[string, int64]()
			store.Set("token", tt.value)

			got, ok := store.Get("token")
			require.True(t, ok)
			require.NotNil(t, got)
			assert.Equal(t, tt.value, *got)
			assert.True(t, store.IsLoaded("token"))
			assert.Equal(t, tt.value.Certified, store.IsCertified("token"))
		})
	}
}

func TestStore_ResetIsDistinguishableFromAbsent(t *testing.T) {
	t.Parallel()

	store := NewStore[string, int64]()
	store.Set("loaded", Certify[int64](1))
	store.Reset("loaded")
	store.Reset("never-set")

	v, ok := store.Get("loaded")
	assert.True(t, ok, "reset key must still be present")
	assert.Nil(t, v)
	assert.False(t, store.IsLoaded("loaded"))

	v, ok = store.Get("never-set")
	assert.True(t, ok)
	assert.Nil(t, v)

	v, ok = store.Get("unknown")
	assert.False(t, ok)
	assert.Nil(t, v)

	assert.ElementsMatch(t, []string{"loaded", "never-set"}, store.Keys())
}

func TestStore_ResetAll(t *testing.T) {
	t.Parallel()

	store := NewStore[string, int64]()
	store.Set("a", Certify[int64](1))
	store.Set("b", Uncertified[int64](2))
	store.Reset("c")

	store.ResetAll()

	assert.Empty(t, store.Keys())
	_, ok := store.Get("a")
	assert.False(t, ok)
}

func TestStore_LastWriteWins(t *testing.T) {
	t.Parallel()

	store := NewStore[string, int64]()
	store.Set("token", Certify[int64](10))
	store.Set("token", Uncertified[int64](20))

	got, ok := store.Get("token")
	require.True(t, ok)
	assert.Equal(t, Uncertified[int64](20), *got)
}

func TestStore_Merge(t *testing.T) {
	t.Parallel()

	base := time.Now()

	t.Run("applies to absent key", func(t *testing.T) {
		t.Parallel()
		store := NewStore[string, int64]()
		assert.True(t, store.Merge("k", base, Certify[int64](1)))
		assert.True(t, store.IsCertified("k"))
	})

	t.Run("stale success does not resurrect invalidated key", func(t *testing.T) {
		t.Parallel()
		store := NewStore[string, int64]()
		store.now = func() time.Time { return base }
		store.Reset("k")

		assert.False(t, store.Merge("k", base.Add(-time.Second), Certify[int64](1)))
		v, ok := store.Get("k")
		assert.True(t, ok)
		assert.Nil(t, v)

		assert.True(t, store.Merge("k", base.Add(time.Second), Certify[int64](2)))
		v, ok = store.Get("k")
		require.True(t, ok)
		assert.Equal(t, int64(2), v.Data)
	})

	t.Run("stale success rejected after reset all", func(t *testing.T) {
		t.Parallel()
		store := NewStore[string, int64]()
		store.now = func() time.Time { return base }
		store.ResetAll()

		assert.False(t, store.Merge("k", base.Add(-time.Millisecond), Uncertified[int64](1)))
		_, ok := store.Get("k")
		assert.False(t, ok)
	})

	t.Run("successes are last write wins", func(t *testing.T) {
		t.Parallel()
		store := NewStore[string, int64]()
		assert.True(t, store.Merge("k", base.Add(time.Second), Certify[int64](1)))
		assert.True(t, store.Merge("k", base, Uncertified[int64](2)))
		v, _ := store.Get("k")
		assert.Equal(t, Uncertified[int64](2), *v)
	})
}

func TestStore_ValuesAreCopied(t *testing.T) {
	t.Parallel()

	store := NewListStore[string, string]()
	input := []string{"a", "b"}
	store.Set("k", Certify(input))
	input[0] = "mutated"

	got, ok := store.Get("k")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got.Data)

	got.Data[1] = "mutated"
	again, _ := store.Get("k")
	assert.Equal(t, []string{"a", "b"}, again.Data)
}

func TestStore_Snapshot(t *testing.T) {
	t.Parallel()

	store := NewStore[string, int64]()
	store.Set("a", Certify[int64](1))
	store.Reset("b")

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, Certify[int64](1), *snapshot["a"])
	assert.Nil(t, snapshot["b"])
}

func TestStore_Subscribe(t *testing.T) {
	t.Parallel()

	store := NewStore[string, int64]()
	changes, unsubscribe := store.Subscribe(4)

	store.Set("a", Certify[int64](1))
	store.Reset("a")
	store.ResetAll()

	assert.Equal(t, Change[string]{Key: "a"}, <-changes)
	assert.Equal(t, Change[string]{Key: "a"}, <-changes)
	assert.Equal(t, Change[string]{All: true}, <-changes)

	unsubscribe()
	unsubscribe()
	_, open := <-changes
	assert.False(t, open)

	// Writes after unsubscribing must not panic
	store.Set("b", Certify[int64](2))
}

func TestStore_ConcurrentWrites(t *testing.T) {
	t.Parallel()

	store := NewStore[int, int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := i % 5
			store.Set(key, Certify(i))
			if i%7 == 0 {
				store.Reset(key)
			}
			_, _ = store.Get(key)
		}()
	}
	wg.Wait()

	assert.Len(t, store.Keys(), 5)
}

func TestListStore_Filter(t *testing.T) {
	t.Parallel()

	t.Run("drops matching elements and keeps certified flag", func(t *testing.T) {
		t.Parallel()
		store := NewListStore[string, string]()
		store.Set("addr", Certify([]string{"tx1", "tx2", "tx3"}))

		changed := store.Filter("addr", func(id string) bool { return id != "tx2" })
		assert.True(t, changed)

		got, ok := store.Get("addr")
		require.True(t, ok)
		assert.Equal(t, Certify([]string{"tx1", "tx3"}), *got)
		assert.Equal(t, 2, store.Len("addr"))
	})

	t.Run("no change when everything is kept", func(t *testing.T) {
		t.Parallel()
		store := NewListStore[string, string]()
		store.Set("addr", Uncertified([]string{"tx1"}))
		assert.False(t, store.Filter("addr", func(string) bool { return true }))
	})

	t.Run("absent and invalidated keys are untouched", func(t *testing.T) {
		t.Parallel()
		store := NewListStore[string, string]()
		store.Reset("gone")

		assert.False(t, store.Filter("gone", func(string) bool { return false }))
		assert.False(t, store.Filter("missing", func(string) bool { return false }))

		v, ok := store.Get("gone")
		assert.True(t, ok)
		assert.Nil(t, v)
		_, ok = store.Get("missing")
		assert.False(t, ok)
		assert.Equal(t, 0, store.Len("missing"))
	})
}

func TestSortedKeys(t *testing.T) {
	t.Parallel()

	store := NewStore[string, int]()
	store.Set("b", Certify(1))
	store.Set("a", Certify(2))
	store.Set("c", Certify(3))

	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(store, func(a, b string) bool { return a < b }))
}
