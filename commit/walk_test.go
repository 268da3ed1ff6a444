package commit

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/jeffrom/yamlgate/config"
	"github.com/jeffrom/yamlgate/model"
	"github.com/jeffrom/yamlgate/vcs"
)

func newTestConfig(overrides *config.Config) config.Config {
	tio, _, _ := config.BufferedTermIO(nil)
	return config.NewWithTerminalIO(overrides, &tio)
}

func cmt(id string, parents ...string) *model.Commit {
	return &model.Commit{ID: id, Parents: parents}
}

func ids(commits []*model.Commit) []string {
	var res []string
	for _, c := range commits {
		res = append(res, c.ID)
	}
	sort.Strings(res)
	return res
}

func equalStrs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDiscover(t *testing.T) {
	tcs := []struct {
		name    string
		commits []*model.Commit
		known   []string
		to      string
		expect  []string
	}{
		{
			name:    "linear",
			commits: []*model.Commit{cmt("c", "b"), cmt("b", "a"), cmt("a")},
			known:   []string{"a"},
			to:      "c",
			expect:  []string{"b", "c"},
		},
		{
			name:    "root",
			commits: []*model.Commit{cmt("b", "a"), cmt("a")},
			to:      "b",
			expect:  []string{"a", "b"},
		},
		{
			name:    "tip-known",
			commits: []*model.Commit{cmt("b", "a"), cmt("a")},
			known:   []string{"b"},
			to:      "b",
			expect:  nil,
		},
		{
			name: "merge",
			// d merges b and c, both children of a
			commits: []*model.Commit{cmt("d", "b", "c"), cmt("c", "a"), cmt("b", "a"), cmt("a", "base"), cmt("base")},
			known:   []string{"base"},
			to:      "d",
			expect:  []string{"a", "b", "c", "d"},
		},
		{
			name:    "deletion",
			commits: []*model.Commit{cmt("a")},
			to:      model.ZeroHash,
			expect:  nil,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			m := vcs.NewMock().SetCommits(tc.commits...).SetKnown(tc.known...)
			w := NewWalker(newTestConfig(nil), m, nil)

			found, err := w.Discover(context.Background(), tc.to, NewVisited())
			if err != nil {
				t.Fatal(err)
			}
			if got := ids(found); !equalStrs(got, tc.expect) {
				t.Fatalf("expected %v, got %v", tc.expect, got)
			}

			for _, c := range tc.commits {
				if n := m.CommitFetches(c.ID); n > 1 {
					t.Errorf("commit %s fetched %d times", c.ID, n)
				}
			}
			for _, h := range tc.known {
				if n := m.CommitFetches(h); n != 0 {
					t.Errorf("known commit %s fetched %d times", h, n)
				}
			}
		})
	}
}

func TestDiscoverDeletionSkipsCollaborators(t *testing.T) {
	m := vcs.NewMock()
	w := NewWalker(newTestConfig(nil), m, nil)
	found, err := w.Discover(context.Background(), model.ZeroHash, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no commits, got %d", len(found))
	}
	if n := m.CommitFetches(model.ZeroHash); n != 0 {
		t.Fatalf("expected no fetches, got %d", n)
	}
}

func TestDiscoverMissingCommit(t *testing.T) {
	m := vcs.NewMock().SetCommits(cmt("b", "a"))
	w := NewWalker(newTestConfig(nil), m, nil)

	_, err := w.Discover(context.Background(), "b", NewVisited())
	if err == nil {
		t.Fatal("expected missing parent to abort the walk")
	}
	if !errors.As(err, &vcs.NotFoundError{}) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

type staticIndex map[string]bool

func (s staticIndex) IsKnown(ctx context.Context, hash string) (bool, error) {
	return s[hash], nil
}

func TestDiscoverSeparateIndex(t *testing.T) {
	m := vcs.NewMock().SetCommits(cmt("c", "b"), cmt("b", "a"), cmt("a"))
	w := NewWalker(newTestConfig(nil), m, staticIndex{"b": true})

	found, err := w.Discover(context.Background(), "c", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(found); !equalStrs(got, []string{"c"}) {
		t.Fatalf("expected [c], got %v", got)
	}
}

func TestDiscoverSharedVisited(t *testing.T) {
	// two branches pushed together share history below their tips
	commits := []*model.Commit{
		cmt("x", "m"), cmt("y", "m"), cmt("m", "l"), cmt("l", "k"), cmt("k"),
	}
	m := vcs.NewMock().SetCommits(commits...)
	w := NewWalker(newTestConfig(nil), m, nil)
	visited := NewVisited()

	var mu sync.Mutex
	var all []*model.Commit
	var wg sync.WaitGroup
	for _, tip := range []string{"x", "y"} {
		wg.Add(1)
		go func(tip string) {
			defer wg.Done()
			found, err := w.Discover(context.Background(), tip, visited)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			all = append(all, found...)
			mu.Unlock()
		}(tip)
	}
	wg.Wait()

	expect := []string{"k", "l", "m", "x", "y"}
	if got := ids(all); !equalStrs(got, expect) {
		t.Fatalf("expected %v, got %v", expect, got)
	}
	for _, c := range commits {
		if n := m.CommitFetches(c.ID); n != 1 {
			t.Errorf("expected commit %s to be fetched once, got %d", c.ID, n)
		}
	}
}

func TestVisitedClaim(t *testing.T) {
	v := NewVisited()
	if !v.Claim("a") {
		t.Fatal("expected first claim to succeed")
	}
	if v.Claim("a") {
		t.Fatal("expected second claim to fail")
	}
	if v.Len() != 1 {
		t.Fatalf("expected 1 visited, got %d", v.Len())
	}
}
