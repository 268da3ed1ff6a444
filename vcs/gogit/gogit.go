// Package gogit implements vcs.Interface by reading repository objects in
// process with go-git. It cannot see objects held in git's receive
// quarantine, so hooks use the gitcli backend instead.
package gogit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/jeffrom/yamlgate/config"
	"github.com/jeffrom/yamlgate/model"
	"github.com/jeffrom/yamlgate/vcs"
)

type Repo struct {
	cfg  config.Config
	repo *git.Repository

	knownMu sync.Mutex
	known   map[plumbing.Hash]bool

	mu      sync.Mutex
	changes map[string][]*model.Change
}

// Open opens the repository at path. Bare repositories and work trees are
// both accepted.
func Open(cfg config.Config, path string) (*Repo, error) {
	r, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("gogit: open %s: %w", path, err)
	}
	return New(cfg, r), nil
}

func New(cfg config.Config, r *git.Repository) *Repo {
	return &Repo{
		cfg:     cfg,
		repo:    r,
		changes: make(map[string][]*model.Change),
	}
}

// IsKnown reports whether hash is reachable from any ref. The reachable set
// is computed on first successful use and kept for the life of the Repo.
func (r *Repo) IsKnown(ctx context.Context, hash string) (bool, error) {
	r.knownMu.Lock()
	defer r.knownMu.Unlock()
	if r.known == nil {
		known, err := r.reachable(ctx)
		if err != nil {
			return false, err
		}
		r.known = known
	}
	return r.known[plumbing.NewHash(hash)], nil
}

func (r *Repo) reachable(ctx context.Context) (map[plumbing.Hash]bool, error) {
	refs, err := r.repo.References()
	if err != nil {
		return nil, fmt.Errorf("gogit: list refs: %w", err)
	}
	defer refs.Close()

	var tips []*object.Commit
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		c, err := r.peel(ref.Hash())
		if err != nil {
			return err
		}
		if c != nil {
			tips = append(tips, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[plumbing.Hash]bool)
	for _, tip := range tips {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iter := object.NewCommitPreorderIter(tip, seen, nil)
		var found []plumbing.Hash
		err := iter.ForEach(func(c *object.Commit) error {
			found = append(found, c.Hash)
			return nil
		})
		iter.Close()
		if err != nil {
			return nil, fmt.Errorf("gogit: walk %s: %w", tip.Hash, err)
		}
		for _, h := range found {
			seen[h] = true
		}
	}
	return seen, nil
}

// peel resolves h to a commit, following annotated tags. Refs to other
// object types return nil.
func (r *Repo) peel(h plumbing.Hash) (*object.Commit, error) {
	obj, err := r.repo.Object(plumbing.AnyObject, h)
	if err != nil {
		return nil, fmt.Errorf("gogit: resolve %s: %w", h, err)
	}
	for {
		switch o := obj.(type) {
		case *object.Commit:
			return o, nil
		case *object.Tag:
			obj, err = o.Object()
			if err != nil {
				return nil, fmt.Errorf("gogit: peel tag %s: %w", o.Hash, err)
			}
		default:
			return nil, nil
		}
	}
}

func (r *Repo) commitObject(hash string) (*object.Commit, error) {
	c, err := r.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, vcs.NotFoundError{Ref: hash}
		}
		return nil, fmt.Errorf("gogit: commit %s: %w", hash, err)
	}
	return c, nil
}

func (r *Repo) GetCommit(ctx context.Context, hash string) (*model.Commit, error) {
	c, err := r.commitObject(hash)
	if err != nil {
		return nil, err
	}
	return toCommit(c), nil
}

func toCommit(c *object.Commit) *model.Commit {
	parents := make([]string, len(c.ParentHashes))
	for i, p := range c.ParentHashes {
		parents[i] = p.String()
	}
	return &model.Commit{
		ID:             c.Hash.String(),
		Parents:        parents,
		Author:         c.Author.Name,
		AuthorEmail:    c.Author.Email,
		AuthorDate:     c.Author.When,
		Committer:      c.Committer.Name,
		CommitterEmail: c.Committer.Email,
		CommitterDate:  c.Committer.When,
		Subject:        subject(c.Message),
	}
}

func subject(msg string) string {
	for i := 0; i < len(msg); i++ {
		if msg[i] == '\n' {
			return msg[:i]
		}
	}
	return msg
}

// GetChanges diffs c against its first parent, or against an empty tree
// for a root commit.
func (r *Repo) GetChanges(ctx context.Context, c *model.Commit, page vcs.PageRequest) (*vcs.ChangePage, error) {
	r.mu.Lock()
	changes, ok := r.changes[c.ID]
	r.mu.Unlock()
	if ok {
		return vcs.Page(changes, page), nil
	}

	changes, err := r.diff(ctx, c)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.changes[c.ID] = changes
	r.mu.Unlock()
	return vcs.Page(changes, page), nil
}

func (r *Repo) diff(ctx context.Context, c *model.Commit) ([]*model.Change, error) {
	obj, err := r.commitObject(c.ID)
	if err != nil {
		return nil, err
	}
	to, err := obj.Tree()
	if err != nil {
		return nil, fmt.Errorf("gogit: tree of %s: %w", c.ID, err)
	}

	var from *object.Tree
	if len(obj.ParentHashes) > 0 {
		parent, err := r.commitObject(obj.ParentHashes[0].String())
		if err != nil {
			return nil, err
		}
		from, err = parent.Tree()
		if err != nil {
			return nil, fmt.Errorf("gogit: tree of %s: %w", parent.Hash, err)
		}
	}

	diff, err := object.DiffTreeWithOptions(ctx, from, to, &object.DiffTreeOptions{})
	if err != nil {
		return nil, fmt.Errorf("gogit: diff %s: %w", c.ID, err)
	}

	changes := make([]*model.Change, 0, len(diff))
	for _, ch := range diff {
		action, err := ch.Action()
		if err != nil {
			return nil, fmt.Errorf("gogit: diff %s: %w", c.ID, err)
		}
		switch action {
		case merkletrie.Insert:
			changes = append(changes, &model.Change{Path: ch.To.Name, Type: model.ChangeAdd})
		case merkletrie.Delete:
			changes = append(changes, &model.Change{Path: ch.From.Name, Type: model.ChangeDelete})
		case merkletrie.Modify:
			typ := model.ChangeModify
			if ch.From.TreeEntry.Mode != ch.To.TreeEntry.Mode {
				typ = model.ChangeTypeChange
			}
			changes = append(changes, &model.Change{Path: ch.To.Name, Type: typ})
		default:
			changes = append(changes, &model.Change{Path: ch.To.Name, Type: model.ChangeUnknown})
		}
	}
	return changes, nil
}

func (r *Repo) StreamContent(ctx context.Context, commitID, path string, w io.Writer) error {
	c, err := r.commitObject(commitID)
	if err != nil {
		return err
	}
	f, err := c.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return vcs.NotFoundError{Ref: commitID + ":" + path}
		}
		return fmt.Errorf("gogit: %s:%s: %w", commitID, path, err)
	}
	rc, err := f.Reader()
	if err != nil {
		return fmt.Errorf("gogit: %s:%s: %w", commitID, path, err)
	}
	defer rc.Close()

	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("gogit: %s:%s: %w", commitID, path, err)
	}
	return nil
}

// Resolve returns the commit hash rev names. The zero hash resolves to
// itself.
func (r *Repo) Resolve(ctx context.Context, rev string) (string, error) {
	if model.IsZeroHash(rev) {
		return rev, nil
	}
	h, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, plumbing.ErrObjectNotFound) {
			return "", vcs.NotFoundError{Ref: rev}
		}
		return "", fmt.Errorf("gogit: resolve %s: %w", rev, err)
	}
	c, err := r.peel(*h)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "", fmt.Errorf("gogit: %s does not name a commit", rev)
	}
	return c.Hash.String(), nil
}

// IsAncestor reports whether hash is reachable from of, including hash
// being of itself.
func (r *Repo) IsAncestor(ctx context.Context, hash, of string) (bool, error) {
	c, err := r.commitObject(hash)
	if err != nil {
		return false, err
	}
	other, err := r.commitObject(of)
	if err != nil {
		return false, err
	}
	return c.IsAncestor(other)
}
