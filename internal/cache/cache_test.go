package cache

import (
	"errors"
	"slices"
	"testing"
)

func TestCacheGetSet(t *testing.T) {
	c := New[string, int](0, nil)
	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}
	if _, ok := c.Get("b"); ok {
		t.Error("Get(b) found a missing key")
	}
	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.HitRate != 0.5 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	var released []string
	c := New[string, int](2, func(k string, _ int) { released = append(released, k) })
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if !slices.Equal(released, []string{"b"}) {
		t.Fatalf("released = %v, want [b]", released)
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("recently used entry was evicted")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", c.Stats().Evictions)
	}
}

func TestCacheReplaceReleasesOld(t *testing.T) {
	var released []int
	c := New[string, int](0, func(_ string, v int) { released = append(released, v) })
	c.Set("a", 1)
	c.Set("a", 2)
	if !slices.Equal(released, []int{1}) {
		t.Errorf("released = %v, want [1]", released)
	}
}

func TestCacheGetOrCreate(t *testing.T) {
	c := New[int, string](4, nil)
	calls := 0
	create := func() (string, error) {
		calls++
		return "v", nil
	}
	for range 3 {
		v, err := c.GetOrCreate(7, create)
		if err != nil || v != "v" {
			t.Fatalf("GetOrCreate = %q, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrCreate(8, func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if _, ok := c.Get(8); ok {
		t.Error("failed create was stored")
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	n := 0
	c := New[int, int](0, func(int, int) { n++ })
	for i := range 5 {
		c.Set(i, i)
	}
	if !c.Delete(3) || c.Delete(3) {
		t.Error("Delete should report presence once")
	}
	c.Clear()
	if c.Len() != 0 || n != 5 {
		t.Errorf("after Clear: Len=%d released=%d; want 0, 5", c.Len(), n)
	}
	c.Set(9, 9)
	if v, ok := c.Get(9); !ok || v != 9 {
		t.Error("cache unusable after Clear")
	}
}
