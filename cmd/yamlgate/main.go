package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/jeffrom/yamlgate/config"
	"github.com/jeffrom/yamlgate/runner"
)

var (
	// these are overridden by go build -X
	Version string
)

func main() {
	os.Exit(realMain(os.Args, config.DefaultTermIO))
}

// usageError is a mistake in how yamlgate was invoked or configured, as
// opposed to a failure while evaluating a push.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usageErrorf(msg string, args ...interface{}) error {
	return usageError{err: fmt.Errorf(msg, args...)}
}

// realMain runs yamlgate and returns its exit status. Rejections print the
// message meant for the pushing client, anything else is reported as an
// error.
func realMain(args []string, term config.TerminalIO) int {
	err := run(args, term)
	if err == nil {
		return 0
	}

	rej := runner.Rejection{}
	cf := runner.CheckFailure{}
	uerr := usageError{}
	switch {
	case errors.As(err, &rej):
		if err := rej.WriteRejection(term.Stderr); err != nil {
			fmt.Fprintln(term.Stderr, "yamlgate: failed to write rejection:", err)
		}
	case errors.As(err, &cf):
		if err := cf.WriteFailure(term.Stderr); err != nil {
			fmt.Fprintln(term.Stderr, "yamlgate: failed to write invalid file information:", err)
		}
	case errors.As(err, &uerr):
		fmt.Fprintf(term.Stderr, "Error: %v\n", err)
	default:
		fmt.Fprintf(term.Stderr, "yamlgate: internal error: %v\n", err)
	}
	return 1
}

type options struct {
	help        bool
	version     bool
	cfgFile     string
	repoDir     string
	printConfig bool
	debugConfig string
	stats       bool
	listen      string
	reposDir    string
}

func run(rawArgs []string, term config.TerminalIO) error {
	flagCfg := config.Config{}
	opts := options{}

	flags := pflag.NewFlagSet("yamlgate", pflag.ContinueOnError)
	flags.SetOutput(term.Stderr)
	flags.BoolVarP(&opts.help, "help", "h", false, "show help")
	flags.BoolVarP(&opts.version, "version", "V", false, "print version and exit")
	flags.StringVarP(&opts.cfgFile, "config", "c", "", "specify config `file`")
	flags.StringVarP(&opts.repoDir, "repo", "C", "", "repository `dir` (default: $GIT_DIR or the working directory)")
	flags.StringVarP(&flagCfg.Extension, "extension", "e", "", "`regexp` matched against whole file extensions (default \"yaml|yml\")")
	flags.StringVar(&flagCfg.Backend, "backend", "", "repository backend: git or gogit (default \"git\")")
	flags.StringVar(&flagCfg.IndexPath, "index", "", "known commit index database `file`")
	flags.IntVarP(&flagCfg.Workers, "workers", "w", 0, "number of refs and commits processed at once (default 4)")
	flags.IntVar(&flagCfg.ValidateWorkers, "validate-workers", 0, "number of files checked at once (default 1)")
	flags.IntVar(&flagCfg.PageSize, "page-size", 0, "number of changes requested at once (default 1000)")
	flags.Int64Var(&flagCfg.SpoolLimit, "spool-limit", 0, "`bytes` of file content held in memory before spilling to disk")
	flags.StringVar(&flagCfg.TempDir, "temp-dir", "", "`dir` for spilled file content")
	flags.StringVar(&flagCfg.MinGitVersion, "min-git-version", "", "oldest supported git `version`")
	flags.StringVar(&flagCfg.RejectTemplate, "reject-template", "", "go text/template for the rejection `message`")
	flags.StringVar(&flagCfg.LogFile, "log-file", "", "write operator logs to `file`")
	flags.BoolVarP(&flagCfg.Dryrun, "dry-run", "n", false, "report invalid files without rejecting the push")
	flags.BoolVarP(&flagCfg.Verbose, "verbose", "v", false, "print additional info")
	flags.BoolVar(&flagCfg.Debug, "debug", false, "print debugging info")
	flags.BoolVarP(&flagCfg.Quiet, "quiet", "q", false, "print as little as necessary")
	flags.BoolVarP(&opts.stats, "stats", "S", false, "print push statistics")
	flags.BoolVar(&opts.printConfig, "print-config", false, "print configuration and exit")
	flags.StringVar(&opts.debugConfig, "debug-config", "", "write configuration as json to `file` (- for stdout) and exit")
	flags.StringVar(&opts.listen, "listen", ":8080", "`address` serve listens on")
	flags.StringVar(&opts.reposDir, "repos", "", "`dir` of repositories hosted by serve")

	if err := flags.Parse(rawArgs); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return usageError{err: err}
	}
	args := flags.Args()
	if len(args) > 0 {
		args = args[1:]
	}

	if opts.help {
		usage(term, flags)
		return nil
	}
	if opts.version {
		term.Printf("%s\n", Version)
		return nil
	}
	if len(args) == 0 && !opts.printConfig && opts.debugConfig == "" {
		usage(term, flags)
		return usageErrorf("a command is required")
	}

	if opts.repoDir == "" {
		opts.repoDir = os.Getenv("GIT_DIR")
	}
	if opts.repoDir == "" {
		opts.repoDir = "."
	}

	cfg, err := loadConfig(term, opts, &flagCfg)
	if err != nil {
		return usageError{err: err}
	}

	if opts.printConfig {
		b, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		cfg.Term.Printf("%s", b)
		return nil
	}
	if opts.debugConfig != "" {
		b, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		if opts.debugConfig == "-" {
			cfg.Term.Printf("%s\n", b)
			return nil
		}
		return os.WriteFile(opts.debugConfig, b, 0644)
	}
	if err := cfg.Validate(); err != nil {
		return usageError{err: err}
	}
	// done setting up config

	logger, err := config.NewLogger(cfg)
	if err != nil {
		return usageError{err: err}
	}
	defer logger.Sync()
	cfg.Logger = logger

	ctx := context.Background()
	cmd, cmdArgs := args[0], args[1:]
	switch cmd {
	case "pre-receive":
		return preReceive(ctx, cfg, opts)
	case "post-receive":
		return postReceive(ctx, cfg, opts)
	case "check":
		return check(ctx, cfg, opts, cmdArgs)
	case "files":
		if len(cmdArgs) == 0 {
			cmdArgs = []string{"."}
		}
		return runner.CheckFiles(ctx, cfg, cmdArgs)
	case "serve":
		return serve(ctx, cfg, opts)
	default:
		return usageErrorf("unknown command %q", cmd)
	}
}

// loadConfig layers defaults, yamlgate.yaml, the repository's git config
// and flags, lowest precedence first.
func loadConfig(term config.TerminalIO, opts options, flagCfg *config.Config) (config.Config, error) {
	cfg := config.NewWithTerminalIO(nil, &term)

	var fileCfg *config.Config
	var err error
	if opts.cfgFile != "" {
		fileCfg, err = config.ReadFile(opts.cfgFile)
	} else {
		var dir string
		dir, err = filepath.Abs(opts.repoDir)
		if err == nil {
			fileCfg, err = config.Find(dir)
		}
	}
	if err != nil {
		return cfg, err
	}
	if err := cfg.Merge(fileCfg); err != nil {
		return cfg, err
	}

	gitCfg, err := config.ReadGitConfig(config.GitConfigPath(opts.repoDir))
	if err != nil {
		return cfg, err
	}
	if err := cfg.Merge(gitCfg); err != nil {
		return cfg, err
	}

	if err := cfg.Merge(flagCfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func usage(term config.TerminalIO, flags *pflag.FlagSet) {
	term.Printf(`%s [flags] <command> [args]

Rejects git pushes that introduce malformed yaml files.

COMMANDS
  pre-receive              evaluate the ref updates on stdin (run as a git hook)
  post-receive             record accepted commits in the index (run as a git hook)
  check <from> <to> [ref]  evaluate a ref update against a repository
  files [path...]          check local files and directories
  serve                    host repositories over http with the hooks installed

FLAGS
%s
EXAMPLES

# install as a pre-receive hook
$ printf '#!/bin/sh\nexec yamlgate pre-receive\n' > hooks/pre-receive

# check the commits on a branch that aren't on main yet
$ yamlgate -C ~/src/app check main my-branch

# validate .conf files as yaml for this repository
$ git config yamlgate.extension 'conf|yaml|yml'
`, filepath.Base(os.Args[0]), flags.FlagUsages())
}

func stdinIsTerminal(term config.TerminalIO) bool {
	f, ok := term.Stdin.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
