package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sosedoff/gitkit"
	"go.uber.org/zap"

	"github.com/jeffrom/yamlgate/commit"
	"github.com/jeffrom/yamlgate/config"
	"github.com/jeffrom/yamlgate/index"
	"github.com/jeffrom/yamlgate/model"
	"github.com/jeffrom/yamlgate/runner"
	"github.com/jeffrom/yamlgate/vcs"
	"github.com/jeffrom/yamlgate/vcs/gitcli"
	"github.com/jeffrom/yamlgate/vcs/gogit"
)

// backend is a repository reader that can also answer ancestry questions,
// which check needs to treat the old side of an update as known.
type backend interface {
	vcs.Interface
	Resolve(ctx context.Context, rev string) (string, error)
	IsAncestor(ctx context.Context, hash, of string) (bool, error)
}

func openBackend(ctx context.Context, cfg config.Config, dir string) (backend, error) {
	switch cfg.Backend {
	case config.BackendGoGit:
		repo, err := gogit.Open(cfg, dir)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		git := gitcli.New(cfg, dir)
		if err := git.CheckVersion(ctx, cfg.MinGitVersion); err != nil {
			return nil, err
		}
		return git, nil
	}
}

// openIndex opens the configured known-commit index. A relative path is
// relative to the repository, so one setting can give every hosted
// repository its own index.
func openIndex(cfg config.Config, dir string) (*index.Store, error) {
	if cfg.IndexPath == "" {
		return nil, nil
	}
	p := cfg.IndexPath
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	return index.New(p)
}

func readUpdates(cfg config.Config, hook string) ([]model.RefUpdate, error) {
	if stdinIsTerminal(cfg.Term) {
		return nil, usageErrorf("%s reads ref updates from stdin and is meant to run as a git hook", hook)
	}
	updates, err := model.ReadRefUpdates(cfg.Term.Stdin)
	if err != nil {
		return nil, err
	}
	cfg.Debugf("read %d ref update(s)", len(updates))
	return updates, nil
}

// preReceive always reads through git, since objects of a push in progress
// are only visible through git's quarantine environment.
func preReceive(ctx context.Context, cfg config.Config, opts options) error {
	updates, err := readUpdates(cfg, "pre-receive")
	if err != nil {
		return err
	}

	git := gitcli.New(cfg, opts.repoDir)
	if err := git.CheckVersion(ctx, cfg.MinGitVersion); err != nil {
		return err
	}
	store, err := openIndex(cfg, opts.repoDir)
	if err != nil {
		return err
	}
	var known commit.KnownIndex
	if store != nil {
		defer store.Close()
		known = store
	}

	rnr, err := runner.New(cfg, git, known)
	if err != nil {
		return usageError{err: err}
	}
	start := time.Now()
	err = rnr.Enforce(ctx, updates)
	cfg.Log().Info("evaluated push",
		zap.Int("updates", len(updates)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("rejected", errors.Is(err, runner.Rejection{})),
	)
	if opts.stats {
		if serr := rnr.Stats().TextSummary(cfg.Term.Stdout); serr != nil {
			return serr
		}
	}
	return err
}

func postReceive(ctx context.Context, cfg config.Config, opts options) error {
	updates, err := readUpdates(cfg, "post-receive")
	if err != nil {
		return err
	}
	store, err := openIndex(cfg, opts.repoDir)
	if err != nil {
		return err
	}
	if store == nil {
		cfg.Debugf("no index configured, nothing to record")
		return nil
	}
	defer store.Close()

	b, err := openBackend(ctx, cfg, opts.repoDir)
	if err != nil {
		return err
	}
	rnr, err := runner.New(cfg, b, store)
	if err != nil {
		return usageError{err: err}
	}
	return rnr.Record(ctx, updates)
}

// ancestorIndex treats every commit reachable from base as known.
type ancestorIndex struct {
	b    backend
	base string
}

func (i ancestorIndex) IsKnown(ctx context.Context, hash string) (bool, error) {
	if model.IsZeroHash(i.base) {
		return false, nil
	}
	return i.b.IsAncestor(ctx, hash, i.base)
}

// check evaluates the update <from> <to> [ref] against a repository as if
// it were being pushed. Commits reachable from <from> are treated as known.
func check(ctx context.Context, cfg config.Config, opts options, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return usageErrorf("check expects <from> <to> [ref], got %d argument(s)", len(args))
	}
	b, err := openBackend(ctx, cfg, opts.repoDir)
	if err != nil {
		return err
	}

	from, err := b.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	to, err := b.Resolve(ctx, args[1])
	if err != nil {
		return err
	}
	upd := model.RefUpdate{From: from, To: to, Ref: args[1]}
	if len(args) == 3 {
		upd.Ref = args[2]
	}
	cfg.Debugf("checking %s", upd)

	rnr, err := runner.New(cfg, b, ancestorIndex{b: b, base: from})
	if err != nil {
		return usageError{err: err}
	}
	err = rnr.Enforce(ctx, []model.RefUpdate{upd})
	if opts.stats {
		if serr := rnr.Stats().TextSummary(cfg.Term.Stdout); serr != nil {
			return serr
		}
	}
	if err != nil {
		return err
	}
	cfg.Printf("OK")
	return nil
}

// hookScript runs this executable as a git hook, passing along the config
// file serve was started with.
func hookScript(exe, hook, cfgFile string) string {
	b := &strings.Builder{}
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(b, "exec %q", exe)
	if cfgFile != "" {
		fmt.Fprintf(b, " --config %q", cfgFile)
	}
	fmt.Fprintf(b, " %s\n", hook)
	return b.String()
}

func serve(ctx context.Context, cfg config.Config, opts options) error {
	if opts.reposDir == "" {
		return usageErrorf("serve requires --repos")
	}
	dir, err := filepath.Abs(opts.reposDir)
	if err != nil {
		return err
	}
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cfgFile := opts.cfgFile
	if cfgFile != "" {
		if cfgFile, err = filepath.Abs(cfgFile); err != nil {
			return err
		}
	}

	svc := gitkit.New(gitkit.Config{
		Dir:        dir,
		AutoCreate: true,
		AutoHooks:  true,
		Hooks: &gitkit.HookScripts{
			PreReceive:  hookScript(exe, "pre-receive", cfgFile),
			PostReceive: hookScript(exe, "post-receive", cfgFile),
		},
	})
	if err := svc.Setup(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: opts.listen, Handler: svc}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	cfg.Printf("serving repositories in %s on %s", dir, opts.listen)
	cfg.Log().Info("serving", zap.String("dir", dir), zap.String("addr", opts.listen))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
