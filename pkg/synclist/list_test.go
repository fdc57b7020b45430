package synclist

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, l *List[string], id int) []string {
	t.Helper()
	var out []string
	for {
		item, ok, err := l.GetNext(id)
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, item)
	}
}

func TestList_IterateInOrder(t *testing.T) {
	l := New[string]()
	l.AddItem("a")
	l.AddItem("b")
	l.AddItem("c")

	id := l.StartIterating()
	defer l.StopIterating(id)

	assert.Equal(t, []string{"a", "b", "c"}, drain(t, l, id))

	// end is sticky
	_, ok, err := l.GetNext(id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestList_EmptyList(t *testing.T) {
	l := New[string]()
	assert.True(t, l.IsEmpty())

	id := l.StartIterating()
	_, ok, err := l.GetNext(id)
	require.NoError(t, err)
	assert.False(t, ok)
	l.StopIterating(id)
}

func TestList_ModificationReportedOnce(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(l *List[string])
	}{
		{"add", func(l *List[string]) { l.AddItem("z") }},
		{"remove", func(l *List[string]) { l.RemoveItem("b") }},
		{"add then remove", func(l *List[string]) {
			l.AddItem("z")
			l.RemoveItem("z")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New[string]()
			l.AddItem("a")
			l.AddItem("b")

			id := l.StartIterating()
			item, ok, err := l.GetNext(id)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "a", item)

			tt.mutate(l)

			_, _, err = l.GetNext(id)
			assert.ErrorIs(t, err, ErrModified)

			_, _, err = l.GetNext(id)
			assert.ErrorIs(t, err, ErrUnknownConsumer)

			// releasing after the error is safe
			l.StopIterating(id)
			assert.Equal(t, 0, l.consumers())
		})
	}
}

func TestList_UnknownConsumer(t *testing.T) {
	l := New[string]()
	_, _, err := l.GetNext(42)
	assert.ErrorIs(t, err, ErrUnknownConsumer)

	id := l.StartIterating()
	l.StopIterating(id)
	l.StopIterating(id)
	_, _, err = l.GetNext(id)
	assert.ErrorIs(t, err, ErrUnknownConsumer)
}

func TestList_IndependentCursorsSeeSameSequence(t *testing.T) {
	l := New[string]()
	for _, s := range []string{"u1", "u2", "u3", "u4"} {
		l.AddItem(s)
	}

	first := l.StartIterating()
	second := l.StartIterating()
	defer l.StopIterating(first)
	defer l.StopIterating(second)

	var a, b []string
	// interleave the two cursors unevenly
	for i := 0; i < 10; i++ {
		if item, ok, err := l.GetNext(first); err == nil && ok {
			a = append(a, item)
		}
		if i%2 == 0 {
			if item, ok, err := l.GetNext(second); err == nil && ok {
				b = append(b, item)
			}
		}
	}

	assert.Equal(t, []string{"u1", "u2", "u3", "u4"}, a)
	assert.Equal(t, a, b)
}

func TestList_AddDuplicateAndRemoveMissing(t *testing.T) {
	l := New[string]()
	assert.True(t, l.AddItem("a"))

	id := l.StartIterating()
	assert.False(t, l.AddItem("a"))
	assert.False(t, l.RemoveItem("missing"))

	// neither no-op invalidated the cursor
	assert.Equal(t, []string{"a"}, drain(t, l, id))
	assert.Equal(t, 1, l.Len())
	assert.True(t, l.Contains("a"))
}

func TestList_Snapshot(t *testing.T) {
	l := New[int]()
	l.AddItem(3)
	l.AddItem(1)
	l.AddItem(2)
	l.RemoveItem(1)

	assert.Equal(t, []int{3, 2}, l.Snapshot())
}

func TestList_ConcurrentAccess(t *testing.T) {
	l := New[int]()
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				l.AddItem(base*1000 + i)
			}
		}(w)
	}

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := l.StartIterating()
				for {
					_, ok, err := l.GetNext(id)
					if err != nil || !ok {
						break
					}
				}
				l.StopIterating(id)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 400, l.Len())
	assert.Equal(t, 0, l.consumers())
}

func TestSelect(t *testing.T) {
	notFound := errors.New("no such item")
	l := New[string]()
	l.AddItem("alpha")
	l.AddItem("beta")

	item, err := Select(l, func(s string) (bool, error) { return s == "beta", nil }, notFound)
	require.NoError(t, err)
	assert.Equal(t, "beta", item)

	_, err = Select(l, func(s string) (bool, error) { return s == "gamma", nil }, notFound)
	assert.ErrorIs(t, err, notFound)
	assert.Equal(t, 0, l.consumers())
}

func TestSelect_RetriesOnModification(t *testing.T) {
	l := New[string]()
	l.AddItem("a")
	l.AddItem("b")

	calls := 0
	item, err := Select(l, func(s string) (bool, error) {
		calls++
		if calls == 1 {
			l.AddItem("c")
		}
		return s == "c", nil
	}, errors.New("not found"))

	require.NoError(t, err)
	assert.Equal(t, "c", item)
	assert.Greater(t, calls, 3)
	assert.Equal(t, 0, l.consumers())
}

func TestSelect_PropagatesPredicateError(t *testing.T) {
	boom := errors.New("boom")
	l := New[string]()
	l.AddItem("a")

	_, err := Select(l, func(string) (bool, error) { return false, boom }, errors.New("not found"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, l.consumers())
}

func TestProcessAll(t *testing.T) {
	l := New[int]()
	for i := 1; i <= 4; i++ {
		l.AddItem(i)
	}

	sum := 0
	require.NoError(t, ProcessAll(l, func(i int) error {
		sum += i
		return nil
	}))
	assert.Equal(t, 10, sum)
}

func TestProcessAll_RetriesOnModification(t *testing.T) {
	l := New[int]()
	l.AddItem(1)
	l.AddItem(2)

	var seen []int
	modified := false
	err := ProcessAll(l, func(i int) error {
		seen = append(seen, i)
		if !modified {
			modified = true
			l.AddItem(3)
		}
		return nil
	})

	require.NoError(t, err)
	// first pass aborted after item 1, second pass sees everything
	assert.Equal(t, []int{1, 1, 2, 3}, seen)
	assert.Equal(t, 0, l.consumers())
}

func TestProcessAll_PropagatesActionError(t *testing.T) {
	boom := errors.New("boom")
	l := New[int]()
	l.AddItem(1)
	l.AddItem(2)

	calls := 0
	err := ProcessAll(l, func(int) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, l.consumers())
}
