package graph

import (
	"strings"
	"testing"
)

func TestConnectAssignsStableIndices(t *testing.T) {
	s := New()
	s.Connect("example.com/", "example.com/a")
	s.Connect("example.com/a", "example.com/b")
	s.Connect("example.com/b", "example.com/")

	if !s.Seen("example.com/") || !s.Seen("example.com/a") || !s.Seen("example.com/b") {
		t.Fatal("expected all three URLs to be recorded")
	}
	if s.NumURLs() != 3 {
		t.Fatalf("NumURLs() = %d, want 3", s.NumURLs())
	}

	var gotEdges [][2]int
	s.YieldEdges(func(src, dst int) { gotEdges = append(gotEdges, [2]int{src, dst}) })
	if len(gotEdges) != 3 {
		t.Fatalf("got %d edges, want 3", len(gotEdges))
	}

	// Revisiting an already-seen URL must not change its index.
	firstIndex := map[string]int{}
	s.YieldURLs(func(index int, url string) { firstIndex[url] = index })
	s.Connect("example.com/a", "example.com/new")
	secondIndex := map[string]int{}
	s.YieldURLs(func(index int, url string) {
		if url != "example.com/new" {
			secondIndex[url] = index
		}
	})
	for url, idx := range secondIndex {
		if firstIndex[url] != idx {
			t.Errorf("index of %s changed from %d to %d", url, firstIndex[url], idx)
		}
	}
}

func TestYieldURLsSortedByURLString(t *testing.T) {
	s := New()
	s.Connect("example.com/z", "example.com/a")
	s.Connect("example.com/a", "example.com/m")

	var order []string
	s.YieldURLs(func(_ int, url string) { order = append(order, url) })

	want := []string{"example.com/a", "example.com/m", "example.com/z"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestYieldEdgesInsertionOrder(t *testing.T) {
	s := New()
	s.Connect("example.com/a", "example.com/b")
	s.Connect("example.com/b", "example.com/c")
	s.Connect("example.com/c", "example.com/a")

	var got [][2]int
	s.YieldEdges(func(src, dst int) { got = append(got, [2]int{src, dst}) })

	a := indexFor(s, "example.com/a")
	b := indexFor(s, "example.com/b")
	c := indexFor(s, "example.com/c")

	want := [][2]int{{a, b}, {b, c}, {c, a}}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("edge[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func indexFor(s *Store, url string) int {
	var idx int
	s.YieldURLs(func(i int, u string) {
		if u == url {
			idx = i
		}
	})
	return idx
}

func TestWriteReportFormat(t *testing.T) {
	s := New()
	s.Connect("example.com/", "example.com/a")
	s.Connect("example.com/a", "example.com/b")

	var buf strings.Builder
	if err := s.WriteReport(&buf); err != nil {
		t.Fatalf("WriteReport() error = %v", err)
	}

	out := buf.String()
	blockSep := strings.Index(out, "\n\n")
	if blockSep < 0 {
		t.Fatalf("report has no blank line separating blocks:\n%s", out)
	}

	block1 := strings.TrimSpace(out[:blockSep])
	block2 := strings.TrimSpace(out[blockSep:])

	urlLines := strings.Split(block1, "\n")
	if len(urlLines) != 3 {
		t.Fatalf("block 1 has %d lines, want 3 (one per URL): %q", len(urlLines), block1)
	}

	edgeLines := strings.Split(block2, "\n")
	if len(edgeLines) != 2 {
		t.Fatalf("block 2 has %d lines, want 2 (one per edge): %q", len(edgeLines), block2)
	}
}

func TestGraphIntegrity(t *testing.T) {
	s := New()
	s.Connect("example.com/", "example.com/a")
	s.Connect("example.com/a", "example.com/b")
	s.Connect("example.com/b", "example.com/")

	n := s.NumURLs()
	s.YieldEdges(func(src, dst int) {
		if src < 1 || src > n || dst < 1 || dst > n {
			t.Errorf("edge (%d, %d) out of range [1, %d]", src, dst, n)
		}
	})
}
