package commit

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jeffrom/yamlgate/config"
	"github.com/jeffrom/yamlgate/model"
	"github.com/jeffrom/yamlgate/vcs"
)

// KnownIndex answers whether a commit was recorded by a previous push.
// vcs.Interface implementations satisfy it, as does index.Store.
type KnownIndex interface {
	IsKnown(ctx context.Context, hash string) (bool, error)
}

// Visited is the set of hashes claimed during one push. It is shared by
// every traversal of the push so that no commit is fetched twice.
type Visited struct {
	mu     sync.Mutex
	hashes map[string]struct{}
}

func NewVisited() *Visited {
	return &Visited{hashes: make(map[string]struct{})}
}

// Claim marks hash visited and reports whether the caller is the first to
// claim it.
func (v *Visited) Claim(hash string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.hashes[hash]; ok {
		return false
	}
	v.hashes[hash] = struct{}{}
	return true
}

func (v *Visited) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.hashes)
}

// Walker discovers the commits a push introduces.
type Walker struct {
	cfg   config.Config
	vcs   vcs.Interface
	index KnownIndex
}

// NewWalker returns a Walker reading commits from v. If idx is nil, v
// decides which commits are known.
func NewWalker(cfg config.Config, v vcs.Interface, idx KnownIndex) *Walker {
	if idx == nil {
		idx = v
	}
	return &Walker{cfg: cfg, vcs: v, index: idx}
}

// Discover walks the ancestry of toHash and returns the commits that are not
// known yet, stopping at known history. A zero toHash is a ref deletion and
// introduces nothing. Commits already claimed in visited by another
// traversal are skipped along with their ancestry, which that traversal
// covers.
func (w *Walker) Discover(ctx context.Context, toHash string, visited *Visited) ([]*model.Commit, error) {
	if model.IsZeroHash(toHash) {
		return nil, nil
	}
	if visited == nil {
		visited = NewVisited()
	}
	log := w.cfg.Log()

	var found []*model.Commit
	stack := []string{toHash}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hash := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !visited.Claim(hash) {
			continue
		}

		known, err := w.index.IsKnown(ctx, hash)
		if err != nil {
			log.Error("known commit lookup failed", zap.String("commit", hash), zap.Error(err))
			return nil, fmt.Errorf("commit: check %s: %w", hash, err)
		}
		if known {
			log.Debug("stopping at known commit", zap.String("commit", hash))
			continue
		}

		c, err := w.vcs.GetCommit(ctx, hash)
		if err != nil {
			log.Error("fetching commit failed", zap.String("commit", hash), zap.Error(err))
			return nil, fmt.Errorf("commit: fetch %s: %w", hash, err)
		}
		log.Debug("found commit to check", zap.String("commit", c.ID), zap.Int("parents", len(c.Parents)))
		found = append(found, c)

		// push in reverse so the first parent is walked first
		for i := len(c.Parents) - 1; i >= 0; i-- {
			stack = append(stack, c.Parents[i])
		}
	}
	return found, nil
}
