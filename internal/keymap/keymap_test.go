package keymap

import "testing"

func TestGetPutDelete(t *testing.T) {
	m := New[int](4)
	if _, ok := m.Get("a"); ok {
		t.Fatalf("expected absent key")
	}
	m.Put("a", 1)
	m.Put("b", 2)
	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Fatalf("got %v, %v", v, ok)
	}
	if m.Size() != 2 {
		t.Fatalf("size = %d", m.Size())
	}
	if !m.Delete("a") {
		t.Fatalf("expected delete to report found")
	}
	if _, ok := m.Get("a"); ok {
		t.Fatalf("expected a to be gone")
	}
	if m.Size() != 1 {
		t.Fatalf("size after delete = %d", m.Size())
	}
}

func TestPutOverwrites(t *testing.T) {
	m := New[int](4)
	m.Put("a", 1)
	m.Put("a", 2)
	if m.Size() != 1 {
		t.Fatalf("size = %d, want 1", m.Size())
	}
	if v, _ := m.Get("a"); v != 2 {
		t.Fatalf("value = %d, want 2", v)
	}
}

func TestGrowPreservesEntries(t *testing.T) {
	m := New[int](2)
	for i := 0; i < 50; i++ {
		m.Put(string(rune('a'+i%26))+string(rune('0'+i/26)), i)
	}
	if m.Size() != 50 {
		t.Fatalf("size = %d, want 50", m.Size())
	}
	if m.TableSize() <= 2 {
		t.Fatalf("expected table to have grown, tablesize = %d", m.TableSize())
	}
	for i := 0; i < 50; i++ {
		key := string(rune('a'+i%26)) + string(rune('0'+i/26))
		if v, ok := m.Get(key); !ok || v != i {
			t.Fatalf("key %q: got %v, %v, want %d", key, v, ok, i)
		}
	}
}

func TestFilterDeletesMatching(t *testing.T) {
	m := New[int](4)
	m.Put("even0", 0)
	m.Put("odd1", 1)
	m.Put("even2", 2)
	m.Put("odd3", 3)
	m.Filter(func(key string, v int) bool { return v%2 == 0 })
	if m.Size() != 2 {
		t.Fatalf("size after filter = %d, want 2", m.Size())
	}
	if _, ok := m.Get("even0"); ok {
		t.Fatalf("expected even0 removed")
	}
	if _, ok := m.Get("odd1"); !ok {
		t.Fatalf("expected odd1 retained")
	}
}

func TestIterStopHaltsEarly(t *testing.T) {
	m := New[int](8)
	for i := 0; i < 10; i++ {
		m.Put(string(rune('a'+i)), i)
	}
	visited := 0
	m.Iter(func(key string, v int) Action {
		visited++
		return Stop
	})
	if visited != 1 {
		t.Fatalf("visited = %d, want 1", visited)
	}
	if m.Size() != 10 {
		t.Fatalf("Stop must not delete anything, size = %d", m.Size())
	}
}
