package commit

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/jeffrom/yamlgate/config"
	"github.com/jeffrom/yamlgate/model"
	"github.com/jeffrom/yamlgate/vcs"
)

// PathVerdicts maps each path to the commit whose version of it must be
// validated. It is safe for concurrent use.
type PathVerdicts struct {
	mu    sync.Mutex
	paths map[string]*model.Commit
}

func NewPathVerdicts() *PathVerdicts {
	return &PathVerdicts{paths: make(map[string]*model.Commit)}
}

// Offer records c for path if path is absent, or if c was authored strictly
// after the commit currently recorded. It reports whether c was recorded.
// The check and the write happen under one lock.
func (p *PathVerdicts) Offer(path string, c *model.Commit) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if curr, ok := p.paths[path]; ok && !c.NewerThan(curr) {
		return false
	}
	p.paths[path] = c
	return true
}

func (p *PathVerdicts) Get(path string) (*model.Commit, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.paths[path]
	return c, ok
}

func (p *PathVerdicts) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.paths)
}

// Paths returns the recorded paths in sorted order.
func (p *PathVerdicts) Paths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	paths := make([]string, 0, len(p.paths))
	for path := range p.paths {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Snapshot returns a copy of the mapping.
func (p *PathVerdicts) Snapshot() map[string]*model.Commit {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := make(map[string]*model.Commit, len(p.paths))
	for path, c := range p.paths {
		m[path] = c
	}
	return m
}

// Observer is told about every change the reducer looks at.
type Observer interface {
	ObserveChange(c *model.Commit, change *model.Change, matched bool)
}

// Reducer folds the changes of discovered commits into PathVerdicts.
type Reducer struct {
	cfg      config.Config
	vcs      vcs.Interface
	re       *regexp.Regexp
	pageSize int
	observer Observer
}

func NewReducer(cfg config.Config, v vcs.Interface) (*Reducer, error) {
	re, err := cfg.ExtensionRE()
	if err != nil {
		return nil, err
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = vcs.DefaultPageLimit
	}
	return &Reducer{cfg: cfg, vcs: v, re: re, pageSize: pageSize}, nil
}

// SetObserver registers o to receive every change folded afterwards.
func (r *Reducer) SetObserver(o Observer) { r.observer = o }

// Matches reports whether a change to path is subject to validation.
func (r *Reducer) Matches(path string) bool {
	ext := model.Extension(path)
	if ext == "" {
		return false
	}
	return r.re.MatchString(ext)
}

// Fold reads every page of c's changes and offers each non-delete change of
// a matching path to acc.
func (r *Reducer) Fold(ctx context.Context, acc *PathVerdicts, c *model.Commit) error {
	log := r.cfg.Log()
	req := vcs.PageRequest{Limit: r.pageSize}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := r.vcs.GetChanges(ctx, c, req)
		if err != nil {
			log.Error("reading changes failed", zap.String("commit", c.ID), zap.Error(err))
			return fmt.Errorf("commit: changes of %s: %w", c.ID, err)
		}

		for _, change := range page.Values {
			matched := change.Type != model.ChangeDelete && r.Matches(change.Path)
			if matched {
				recorded := acc.Offer(change.Path, c)
				log.Debug("offered change",
					zap.String("commit", c.ID),
					zap.String("path", change.Path),
					zap.Stringer("type", change.Type),
					zap.Bool("recorded", recorded),
				)
			}
			if r.observer != nil {
				r.observer.ObserveChange(c, change, matched)
			}
		}

		if page.IsLastPage || len(page.Values) == 0 {
			return nil
		}
		req = page.Next(r.pageSize)
	}
}
