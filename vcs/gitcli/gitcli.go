// Package gitcli implements vcs.Interface using the git commandline tool. It
// is the backend used inside hooks, where new objects may only be visible
// through git's quarantine environment.
package gitcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/jeffrom/yamlgate/config"
	"github.com/jeffrom/yamlgate/model"
	"github.com/jeffrom/yamlgate/vcs"
)

// Git implements vcs.Interface using the git commandline tool.
type Git struct {
	cfg config.Config
	wd  string

	mu      sync.Mutex
	changes map[string][]*model.Change
}

func New(cfg config.Config, wd string) *Git {
	return &Git{
		cfg:     cfg,
		wd:      wd,
		changes: make(map[string][]*model.Change),
	}
}

// IsKnown reports whether any existing ref contains hash. Inside a
// pre-receive hook, refs still point at their values from before the push.
func (g *Git) IsKnown(ctx context.Context, hash string) (bool, error) {
	b, err := g.call(ctx, []string{"for-each-ref", "--count=1", "--format=%(objectname)", "--contains", hash})
	if err != nil {
		// missing objects are unknown, and GetCommit reports them
		if _, verr := g.call(ctx, []string{"cat-file", "-e", hash + "^{commit}"}); verr != nil {
			return false, nil
		}
		return false, err
	}
	return len(bytes.TrimSpace(b)) > 0, nil
}

// GIT_ISO8601 is the date format of %ai and %ci in git log
// 2020-08-17 16:26:10 -0700
const GIT_ISO8601 = "2006-01-02 15:04:05 -0700"

func ParseGitISO8601(s string) (time.Time, error) {
	return time.Parse(GIT_ISO8601, s)
}

const (
	logSep       = "_SEP_"
	logFormat    = "--pretty=tformat:%H_SEP_%P_SEP_%aN_SEP_%ae_SEP_%ai_SEP_%cN_SEP_%ce_SEP_%ci_SEP_%s"
	logPartCount = 9
)

func (g *Git) GetCommit(ctx context.Context, hash string) (*model.Commit, error) {
	if _, err := g.call(ctx, []string{"rev-parse", "--verify", "--quiet", hash + "^{commit}"}); err != nil {
		return nil, vcs.NotFoundError{Ref: hash}
	}
	b, err := g.call(ctx, []string{"log", "-1", logFormat, hash, "--"})
	if err != nil {
		return nil, err
	}
	return parseLogLine(strings.TrimRight(string(b), "\n"))
}

func parseLogLine(s string) (*model.Commit, error) {
	parts := strings.SplitN(s, logSep, logPartCount)
	if len(parts) != logPartCount {
		return nil, fmt.Errorf("gitcli: expected %d parts from git log, got %d", logPartCount, len(parts))
	}

	authorDate, err := ParseGitISO8601(parts[4])
	if err != nil {
		return nil, err
	}
	committerDate, err := ParseGitISO8601(parts[7])
	if err != nil {
		return nil, err
	}

	return &model.Commit{
		ID:             parts[0],
		Parents:        strings.Fields(parts[1]),
		Author:         parts[2],
		AuthorEmail:    parts[3],
		AuthorDate:     authorDate,
		Committer:      parts[5],
		CommitterEmail: parts[6],
		CommitterDate:  committerDate,
		Subject:        parts[8],
	}, nil
}

// GetChanges diffs c against its first parent, or against the empty tree
// for a root commit. Renames are reported as a delete and an add so the new
// path is always validated.
func (g *Git) GetChanges(ctx context.Context, c *model.Commit, page vcs.PageRequest) (*vcs.ChangePage, error) {
	g.mu.Lock()
	changes, ok := g.changes[c.ID]
	g.mu.Unlock()
	if ok {
		return vcs.Page(changes, page), nil
	}

	args := []string{"diff-tree", "-r", "-z", "--no-commit-id", "--no-renames", "--name-status"}
	if len(c.Parents) == 0 {
		args = append(args, "--root", c.ID)
	} else {
		args = append(args, c.Parents[0], c.ID)
	}
	b, err := g.call(ctx, args)
	if err != nil {
		return nil, err
	}
	changes, err = parseNameStatus(b)
	if err != nil {
		return nil, fmt.Errorf("gitcli: changes of %s: %w", c.ID, err)
	}

	g.mu.Lock()
	g.changes[c.ID] = changes
	g.mu.Unlock()
	return vcs.Page(changes, page), nil
}

// parseNameStatus reads "status NUL path NUL" pairs from diff-tree -z.
func parseNameStatus(b []byte) ([]*model.Change, error) {
	fields := strings.Split(strings.TrimSuffix(string(b), "\x00"), "\x00")
	if len(fields) == 1 && fields[0] == "" {
		return nil, nil
	}
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("unexpected diff-tree output with %d fields", len(fields))
	}

	changes := make([]*model.Change, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		changes = append(changes, &model.Change{
			Type: model.ChangeTypeFromStatus(fields[i]),
			Path: fields[i+1],
		})
	}
	return changes, nil
}

func (g *Git) StreamContent(ctx context.Context, commitID, path string, w io.Writer) error {
	return g.callTo(ctx, w, []string{"cat-file", "blob", commitID + ":" + path})
}

// Resolve returns the commit hash rev names. The zero hash resolves to
// itself.
func (g *Git) Resolve(ctx context.Context, rev string) (string, error) {
	if model.IsZeroHash(rev) {
		return rev, nil
	}
	b, err := g.call(ctx, []string{"rev-parse", "--verify", "--quiet", rev + "^{commit}"})
	if err != nil {
		return "", vcs.NotFoundError{Ref: rev}
	}
	return strings.TrimSpace(string(b)), nil
}

// IsAncestor reports whether hash is reachable from of, including hash
// being of itself.
func (g *Git) IsAncestor(ctx context.Context, hash, of string) (bool, error) {
	_, err := g.call(ctx, []string{"merge-base", "--is-ancestor", hash, of})
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, err
}
