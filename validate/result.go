// Package validate checks the files selected for a push and produces the
// push verdict.
package validate

import (
	"fmt"

	"github.com/jeffrom/yamlgate/model"
)

// SummaryPrefix starts the summary line of every rejection.
const SummaryPrefix = "ERROR: Invalid file: "

// Result is the verdict for a push. A rejected Result names the first file
// that failed to parse.
type Result struct {
	Accepted bool
	Path     string
	Commit   string
	Summary  string
	Detail   string
}

func Accept() Result {
	return Result{Accepted: true}
}

// Reject builds the verdict for path failing to parse with err.
func Reject(path string, c *model.Commit, err error) Result {
	res := Result{
		Path:    path,
		Summary: SummaryPrefix + path,
		Detail:  err.Error(),
	}
	if c != nil {
		res.Commit = c.ID
	}
	return res
}

func (r Result) String() string {
	if r.Accepted {
		return "accepted"
	}
	return fmt.Sprintf("%s: %s", r.Summary, r.Detail)
}

// FetchError is returned when the content of a selected file can't be
// retrieved. It indicates trouble with the repository, not with the file.
type FetchError struct {
	Path   string
	Commit string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("validate: fetch %s at %s: %v", e.Path, e.Commit, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
