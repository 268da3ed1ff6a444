// Package config holds yamlgate configuration and the helpers that load it
// from files, repository git config and defaults.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/imdario/mergo"
	"go.uber.org/zap"
)

const (
	BackendGit   = "git"
	BackendGoGit = "gogit"
)

type Config struct {
	// Extension is a regular expression matched against the whole extension
	// of each changed path, ie "yaml|yml".
	Extension string `json:"extension,omitempty"`
	// Backend selects how the repository is read: "git" shells out to the
	// git binary, "gogit" reads objects in process.
	Backend string `json:"backend,omitempty"`
	// IndexPath is a sqlite database of commits already accepted. When
	// empty, a commit is known if any existing ref contains it.
	IndexPath string `json:"index,omitempty"`
	// Workers bounds the ref updates and commits processed concurrently.
	Workers int `json:"workers,omitempty"`
	// ValidateWorkers bounds the files checked concurrently. With one
	// worker, files are checked in path order.
	ValidateWorkers int    `json:"validate_workers,omitempty"`
	PageSize        int    `json:"page_size,omitempty"`
	SpoolLimit      int64  `json:"spool_limit,omitempty"`
	TempDir         string `json:"temp_dir,omitempty"`
	MinGitVersion   string `json:"min_git_version,omitempty"`
	RejectTemplate  string `json:"reject_template,omitempty"`
	LogFile         string `json:"log_file,omitempty"`
	Verbose         bool   `json:"verbose,omitempty"`
	Debug           bool   `json:"debug,omitempty"`
	Quiet           bool   `json:"quiet,omitempty"`
	// Dryrun reports invalid files without rejecting the push.
	Dryrun bool `json:"dryrun,omitempty"`

	Term   TerminalIO  `json:"-"`
	Logger *zap.Logger `json:"-"`
}

func New(overrides *Config) Config {
	return NewWithTerminalIO(overrides, nil)
}

func NewWithTerminalIO(overrides *Config, termio *TerminalIO) Config {
	cfg := GetDefault()
	if termio == nil {
		termio = &DefaultTermIO
	}
	cfg.Term = *termio

	if overrides != nil {
		if err := mergo.Merge(&cfg, overrides, mergo.WithOverride); err != nil {
			panic(err)
		}
	}
	return cfg
}

// Merge layers overrides onto c. Zero values in overrides are ignored.
func (c *Config) Merge(overrides *Config) error {
	if overrides == nil {
		return nil
	}
	return mergo.Merge(c, overrides, mergo.WithOverride)
}

// Validate reports configuration faults. It runs before any commit is
// walked.
func (c Config) Validate() error {
	if c.Extension == "" {
		return errors.New("config: extension is required")
	}
	if _, err := c.ExtensionRE(); err != nil {
		return err
	}
	switch c.Backend {
	case BackendGit, BackendGoGit:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be at least 1, got %d", c.Workers)
	}
	if c.ValidateWorkers < 1 {
		return fmt.Errorf("config: validate_workers must be at least 1, got %d", c.ValidateWorkers)
	}
	if c.PageSize < 1 {
		return fmt.Errorf("config: page_size must be at least 1, got %d", c.PageSize)
	}
	if c.Quiet && (c.Verbose || c.Debug) {
		return errors.New("config: quiet can't be combined with verbose or debug")
	}
	return nil
}

// ExtensionRE compiles Extension so that it must match an entire extension,
// not a substring of one.
func (c Config) ExtensionRE() (*regexp.Regexp, error) {
	re, err := regexp.Compile(`^(?:` + c.Extension + `)$`)
	if err != nil {
		return nil, fmt.Errorf("config: invalid extension pattern %q: %w", c.Extension, err)
	}
	return re, nil
}

// Log returns the configured logger, or a no-op logger.
func (c Config) Log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c Config) Printf(msg string, args ...interface{}) {
	if c.Quiet {
		return
	}
	fmt.Fprintf(c.Term.Stdout, msg+"\n", args...)
}

func (c Config) Errorf(msg string, args ...interface{}) {
	fmt.Fprintf(c.Term.Stderr, msg+"\n", args...)
}

func (c Config) Debugf(msg string, args ...interface{}) {
	if !c.Verbose && !c.Debug {
		return
	}
	c.Printf(msg, args...)
}

func (c Config) TextSummary(w io.Writer) error {
	bw := bufio.NewWriter(w)

	bw.WriteString(fmt.Sprintf("Extension regexp: %s\n", c.Extension))
	bw.WriteString(fmt.Sprintf("Backend: %s\n", c.Backend))
	if c.IndexPath != "" {
		bw.WriteString(fmt.Sprintf("Commit index: %s\n", c.IndexPath))
	} else {
		bw.WriteString("Commit index: existing refs\n")
	}
	bw.WriteString(fmt.Sprintf("Workers: %d (validation: %d)\n", c.Workers, c.ValidateWorkers))
	if c.Dryrun {
		bw.WriteString("Dry run: invalid files are reported but not rejected\n")
	}

	return bw.Flush()
}
