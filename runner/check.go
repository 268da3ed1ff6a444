package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jeffrom/yamlgate/config"
	"github.com/jeffrom/yamlgate/model"
	"github.com/jeffrom/yamlgate/validate"
)

// Rejection is returned when a push is refused because a file failed to
// parse.
type Rejection struct {
	Result  validate.Result
	Message string
}

func (r Rejection) Error() string {
	return r.Result.Summary
}

func (r Rejection) Is(other error) bool {
	_, ok := other.(Rejection)
	return ok
}

// WriteRejection writes the message shown to the pushing client.
func (r Rejection) WriteRejection(w io.Writer) error {
	msg := r.Message
	if msg == "" {
		msg = r.Result.Summary + "\n" + r.Result.Detail + "\n"
	}
	_, err := io.WriteString(w, msg)
	return err
}

// Enforce evaluates the push and returns a Rejection if it must be refused.
// In dry run mode the rejection is printed and nil is returned.
func (r *Runner) Enforce(ctx context.Context, updates []model.RefUpdate) error {
	res, err := r.EvaluatePush(ctx, updates)
	if err != nil {
		return err
	}
	if res.Accepted {
		r.cfg.Debugf("push accepted")
		return nil
	}

	msg, err := r.RenderRejection(res)
	if err != nil {
		return err
	}
	rej := Rejection{Result: res, Message: msg}
	if r.cfg.Dryrun {
		r.cfg.Printf("dryrun: push would be rejected")
		if err := rej.WriteRejection(r.cfg.Term.Stdout); err != nil {
			return err
		}
		return nil
	}
	return rej
}

// CheckFailure collects every local file that failed to parse.
type CheckFailure struct {
	Failures []FailureEntry
}

type FailureEntry struct {
	Path string
	Err  error
}

func (cf CheckFailure) Error() string {
	return fmt.Sprintf("%d file(s) failed to parse", len(cf.Failures))
}

func (cf CheckFailure) Is(other error) bool {
	_, ok := other.(CheckFailure)
	return ok
}

func (cf CheckFailure) WriteFailure(w io.Writer) error {
	if len(cf.Failures) == 0 {
		return nil
	}
	bw := bufio.NewWriter(w)
	for _, failure := range cf.Failures {
		bw.WriteString(validate.SummaryPrefix)
		bw.WriteString(failure.Path)
		bw.WriteString("\n  ")
		bw.WriteString(failure.Err.Error())
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// CheckFiles parses local files with the push checker. Directories are
// walked, and the files in them with a matching extension are checked.
// Named files are checked regardless of extension. Unlike a push, every
// failure is reported.
func CheckFiles(ctx context.Context, cfg config.Config, paths []string) error {
	re, err := cfg.ExtensionRE()
	if err != nil {
		return err
	}
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == ".git" {
					return filepath.SkipDir
				}
				return nil
			}
			if ext := model.Extension(path); ext != "" && re.MatchString(ext) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	checker := validate.YAML{}
	var failures []FailureEntry
	for _, p := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := checkFile(checker, p); err != nil {
			var pathErr *fs.PathError
			if errors.As(err, &pathErr) {
				return err
			}
			failures = append(failures, FailureEntry{Path: p, Err: err})
			continue
		}
		cfg.Debugf("%s: ok", p)
	}
	cfg.Printf("checked %d file(s), %d invalid", len(files), len(failures))
	if len(failures) > 0 {
		return CheckFailure{Failures: failures}
	}
	return nil
}

func checkFile(checker validate.Checker, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	return checker.Check(f)
}
