// Package runner evaluates pushes for the command line
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeffrom/yamlgate/commit"
	"github.com/jeffrom/yamlgate/config"
	"github.com/jeffrom/yamlgate/model"
	"github.com/jeffrom/yamlgate/validate"
	"github.com/jeffrom/yamlgate/vcs"
)

// Recorder is a known-commit index that accepted pushes can be added to.
// index.Store implements it.
type Recorder interface {
	commit.KnownIndex
	Add(ctx context.Context, ref string, hashes ...string) error
}

type Runner struct {
	cfg       config.Config
	vcs       vcs.Interface
	known     commit.KnownIndex
	walker    *commit.Walker
	reducer   *commit.Reducer
	validator *validate.Validator
	stats     *Stats
}

// New returns a Runner reading from v. When known is nil, a commit is known
// if v reports it known.
func New(cfg config.Config, v vcs.Interface, known commit.KnownIndex) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reducer, err := commit.NewReducer(cfg, v)
	if err != nil {
		return nil, err
	}

	stats := NewStats()
	reducer.SetObserver(stats)

	return &Runner{
		cfg:       cfg,
		vcs:       v,
		known:     known,
		walker:    commit.NewWalker(cfg, v, known),
		reducer:   reducer,
		validator: validate.NewValidator(cfg, v, nil),
		stats:     stats,
	}, nil
}

// Stats returns the counts gathered by every push evaluated so far.
func (r *Runner) Stats() *Stats { return r.stats }

// EvaluatePush decides whether a push consisting of updates is accepted.
// Every file touched by a new commit is checked at its newest version
// across the whole push. A non-nil error means the push could not be
// evaluated.
func (r *Runner) EvaluatePush(ctx context.Context, updates []model.RefUpdate) (validate.Result, error) {
	verdicts, err := r.Reduce(ctx, updates)
	if err != nil {
		return validate.Result{}, err
	}
	r.cfg.Debugf("checking %d file(s)", verdicts.Len())
	return r.validator.Validate(ctx, verdicts)
}

// Reduce discovers the commits introduced by updates and folds their
// changes into one mapping of path to the commit whose version of it is
// checked.
func (r *Runner) Reduce(ctx context.Context, updates []model.RefUpdate) (*commit.PathVerdicts, error) {
	commits, err := r.discover(ctx, updates)
	if err != nil {
		return nil, err
	}

	verdicts := commit.NewPathVerdicts()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, c := range commits {
		c := c
		g.Go(func() error {
			return r.reducer.Fold(gctx, verdicts, c)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return verdicts, nil
}

// discover walks every update concurrently with one Visited set, so each
// commit is returned at most once for the whole push.
func (r *Runner) discover(ctx context.Context, updates []model.RefUpdate) ([]*model.Commit, error) {
	log := r.cfg.Log()
	visited := commit.NewVisited()

	var mu sync.Mutex
	var commits []*model.Commit

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, upd := range updates {
		upd := upd
		g.Go(func() error {
			found, err := r.walker.Discover(gctx, upd.To, visited)
			if err != nil {
				return fmt.Errorf("runner: %s: %w", upd.Ref, err)
			}
			log.Info("discovered commits",
				zap.String("ref", upd.Ref),
				zap.String("to", upd.To),
				zap.Int("commits", len(found)),
			)
			r.stats.AddRef(upd.Ref, len(found))

			mu.Lock()
			commits = append(commits, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	r.cfg.Debugf("found %d new commit(s) in %d update(s)", len(commits), len(updates))
	return commits, nil
}

// ErrNoIndex is returned by Record when the runner has no index to write.
var ErrNoIndex = errors.New("runner: no commit index configured")

// Record adds the commits introduced by updates to the index, so that later
// pushes stop walking at them. It runs after a push has been accepted.
func (r *Runner) Record(ctx context.Context, updates []model.RefUpdate) error {
	rec, ok := r.known.(Recorder)
	if !ok {
		return ErrNoIndex
	}
	log := r.cfg.Log()
	visited := commit.NewVisited()
	for _, upd := range updates {
		found, err := r.walker.Discover(ctx, upd.To, visited)
		if err != nil {
			return fmt.Errorf("runner: %s: %w", upd.Ref, err)
		}
		if len(found) == 0 {
			continue
		}
		hashes := make([]string, len(found))
		for i, c := range found {
			hashes[i] = c.ID
		}
		if r.cfg.Dryrun {
			r.cfg.Printf("dryrun: would record %d commit(s) for %s", len(hashes), upd.Ref)
			continue
		}
		if err := rec.Add(ctx, upd.Ref, hashes...); err != nil {
			return err
		}
		log.Info("recorded commits", zap.String("ref", upd.Ref), zap.Int("commits", len(hashes)))
		r.cfg.Debugf("recorded %d commit(s) for %s", len(hashes), upd.Ref)
	}
	return nil
}
