package vcs

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jeffrom/yamlgate/model"
)

// Mock is an in-memory Interface. It records how often each commit and path
// is fetched so tests can assert on collaborator traffic.
type Mock struct {
	mu       sync.Mutex
	t        time.Time
	commits  map[string]*model.Commit
	changes  map[string][]*model.Change
	contents map[string][]byte
	known    map[string]bool
	failures map[string]error

	commitFetches  map[string]int
	contentFetches map[string]int
	pageRequests   map[string]int
}

func NewMock() *Mock {
	return &Mock{
		t:              time.Now(),
		commits:        make(map[string]*model.Commit),
		changes:        make(map[string][]*model.Change),
		contents:       make(map[string][]byte),
		known:          make(map[string]bool),
		failures:       make(map[string]error),
		commitFetches:  make(map[string]int),
		contentFetches: make(map[string]int),
		pageRequests:   make(map[string]int),
	}
}

// SetCommits adds commits to the mock. Commits without an author date are
// given one a minute older than the previous commit, so earlier arguments
// are newer, like git log output.
func (m *Mock) SetCommits(commits ...*model.Commit) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, commit := range commits {
		c := *commit
		if c.AuthorDate.IsZero() {
			c.AuthorDate = m.t
			m.t = m.t.Add(-time.Minute)
		}
		m.commits[c.ID] = &c
	}
	return m
}

func (m *Mock) SetKnown(hashes ...string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range hashes {
		m.known[h] = true
	}
	return m
}

func (m *Mock) SetChanges(commitID string, changes ...*model.Change) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes[commitID] = changes
	return m
}

func (m *Mock) SetContent(commitID, path, content string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contents[contentKey(commitID, path)] = []byte(content)
	return m
}

// SetFailure makes lookups of key fail with err. key is either a commit
// hash or "commitID:path" for content.
func (m *Mock) SetFailure(key string, err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[key] = err
	return m
}

func (m *Mock) CommitFetches(hash string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitFetches[hash]
}

func (m *Mock) ContentFetches(commitID, path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contentFetches[contentKey(commitID, path)]
}

func (m *Mock) PageRequests(commitID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageRequests[commitID]
}

func (m *Mock) IsKnown(ctx context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.known[hash], nil
}

func (m *Mock) GetCommit(ctx context.Context, hash string) (*model.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitFetches[hash]++
	if err := m.failures[hash]; err != nil {
		return nil, err
	}
	c, ok := m.commits[hash]
	if !ok {
		return nil, NotFoundError{Ref: hash}
	}
	return c, nil
}

func (m *Mock) GetChanges(ctx context.Context, commit *model.Commit, page PageRequest) (*ChangePage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageRequests[commit.ID]++
	return Page(m.changes[commit.ID], page), nil
}

func (m *Mock) StreamContent(ctx context.Context, commitID, path string, w io.Writer) error {
	m.mu.Lock()
	key := contentKey(commitID, path)
	m.contentFetches[key]++
	err := m.failures[key]
	b, ok := m.contents[key]
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		return NotFoundError{Ref: key}
	}
	_, err = w.Write(b)
	return err
}

func contentKey(commitID, path string) string {
	return fmt.Sprintf("%s:%s", commitID, path)
}
