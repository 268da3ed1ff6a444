// Package vcs abstracts the version control server the gate runs against.
// Currently just git.
package vcs

import (
	"context"
	"fmt"
	"io"

	"github.com/jeffrom/yamlgate/model"
)

// NotFoundError is returned when a hash or path cannot be resolved.
type NotFoundError struct {
	Ref string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("vcs: ref %q not found", e.Ref)
}

type Interface interface {
	// IsKnown reports whether the server already has hash recorded from a
	// previous push.
	IsKnown(ctx context.Context, hash string) (bool, error)
	// GetCommit returns NotFoundError if hash cannot be resolved.
	GetCommit(ctx context.Context, hash string) (*model.Commit, error)
	GetChanges(ctx context.Context, commit *model.Commit, page PageRequest) (*ChangePage, error)
	StreamContent(ctx context.Context, commitID, path string, w io.Writer) error
}

// DefaultPageLimit is the number of changes requested per page when none is
// configured.
const DefaultPageLimit = 1000

type PageRequest struct {
	Start int
	Limit int
}

type ChangePage struct {
	Values     []*model.Change
	Start      int
	IsLastPage bool
}

// Next returns the request for the page following p.
func (p *ChangePage) Next(limit int) PageRequest {
	return PageRequest{Start: p.Start + len(p.Values), Limit: limit}
}

// Page slices changes according to req. Backends that compute the whole
// change list at once use it to serve paged requests.
func Page(changes []*model.Change, req PageRequest) *ChangePage {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	start := req.Start
	if start < 0 {
		start = 0
	}
	if start > len(changes) {
		start = len(changes)
	}
	end := start + limit
	if end > len(changes) {
		end = len(changes)
	}
	return &ChangePage{
		Values:     changes[start:end],
		Start:      start,
		IsLastPage: end == len(changes),
	}
}
