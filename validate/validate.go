package validate

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeffrom/yamlgate/commit"
	"github.com/jeffrom/yamlgate/config"
	"github.com/jeffrom/yamlgate/model"
	"github.com/jeffrom/yamlgate/vcs"
)

// Validator checks the content of every path selected for a push.
type Validator struct {
	cfg     config.Config
	vcs     vcs.Interface
	checker Checker
}

// NewValidator returns a Validator reading content from v. A nil checker
// means YAML.
func NewValidator(cfg config.Config, v vcs.Interface, checker Checker) *Validator {
	if checker == nil {
		checker = YAML{}
	}
	return &Validator{cfg: cfg, vcs: v, checker: checker}
}

// Validate checks each path at its selected commit and stops at the first
// one that fails to parse. Paths are started in sorted order, so with a
// single worker the first failing path in that order is the one reported
// and no later path is fetched. Content that can't be retrieved aborts with
// a *FetchError.
func (v *Validator) Validate(ctx context.Context, verdicts *commit.PathVerdicts) (Result, error) {
	paths := verdicts.Paths()
	if len(paths) == 0 {
		return Accept(), nil
	}
	log := v.cfg.Log()
	log.Info("validating files", zap.Int("files", len(paths)))

	dir, err := os.MkdirTemp(v.cfg.TempDir, "yamlgate-")
	if err != nil {
		return Result{}, fmt.Errorf("validate: create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("removing temp dir failed", zap.String("dir", dir), zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	workers := v.cfg.ValidateWorkers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	var mu sync.Mutex
	var rejected *Result
	isRejected := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return rejected != nil
	}

	for _, path := range paths {
		if isRejected() || gctx.Err() != nil {
			break
		}
		path := path
		c, _ := verdicts.Get(path)

		g.Go(func() error {
			if isRejected() {
				return nil
			}
			res, err := v.checkPath(gctx, dir, path, c)
			if err != nil {
				// work cancelled by an earlier rejection isn't a fault
				if isRejected() {
					return nil
				}
				return err
			}
			if !res.Accepted {
				mu.Lock()
				if rejected == nil {
					rejected = &res
					cancel()
				}
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if rejected != nil {
		return *rejected, nil
	}
	return Accept(), nil
}

func (v *Validator) checkPath(ctx context.Context, dir, path string, c *model.Commit) (Result, error) {
	log := v.cfg.Log().With(zap.String("path", path), zap.String("commit", c.ID))

	sp := newSpool(dir, v.cfg.SpoolLimit)
	defer func() {
		if err := sp.Close(); err != nil {
			log.Warn("closing spool failed", zap.Error(err))
		}
	}()

	if err := v.vcs.StreamContent(ctx, c.ID, path, sp); err != nil {
		log.Error("retrieving content failed", zap.Error(err))
		return Result{}, &FetchError{Path: path, Commit: c.ID, Err: err}
	}
	r, err := sp.Reader()
	if err != nil {
		return Result{}, &FetchError{Path: path, Commit: c.ID, Err: err}
	}

	log.Debug("checking file", zap.Bool("spilled", sp.Spilled()))
	if err := v.checker.Check(r); err != nil {
		log.Info("rejecting push because file is invalid", zap.Error(err))
		return Reject(path, c, err), nil
	}
	return Accept(), nil
}
