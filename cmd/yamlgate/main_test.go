package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeffrom/yamlgate/config"
	"github.com/jeffrom/yamlgate/vcs/gitcli"
)

const (
	goodYAML = "name: app\nreplicas: 3\n"
	badYAML  = "key: value: bad\n"
)

// hookEnv makes the test binary act as yamlgate itself, so end to end tests
// can install it as a git hook.
const hookEnv = "YAMLGATE_AS_HOOK"

func TestMain(m *testing.M) {
	if os.Getenv(hookEnv) == "1" {
		os.Exit(realMain(os.Args, config.DefaultTermIO))
	}
	os.Exit(m.Run())
}

type testOperation struct {
	Write      map[string]string
	Remove     []string
	Commit     string
	GitArgs    []string
	Args       []string
	ShouldFail bool
	// Expect is a substring of the output of Args.
	Expect string
}

func strs(args ...string) []string { return args }

type testRepo struct {
	t   *testing.T
	dir string
	n   int
}

func requireGit(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("-short")
	}
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found")
	}
}

func newTestRepo(t *testing.T, dir string) *testRepo {
	t.Helper()
	requireGit(t)
	r := &testRepo{t: t, dir: dir}
	r.git(context.Background(), "init", "-q")
	return r
}

func gitEnv(home string, n int) []string {
	date := time.Date(2021, 1, 1, 0, n, 0, 0, time.UTC).Format(time.RFC3339)
	return append(os.Environ(),
		"GIT_AUTHOR_NAME=yamlgate-test",
		"GIT_AUTHOR_EMAIL=yamlgate-test@example.com",
		"GIT_COMMITTER_NAME=yamlgate-test",
		"GIT_COMMITTER_EMAIL=yamlgate-test@example.com",
		"GIT_AUTHOR_DATE="+date,
		"GIT_COMMITTER_DATE="+date,
		"GIT_CONFIG_NOSYSTEM=1",
		"GIT_TERMINAL_PROMPT=0",
		"HOME="+home,
	)
}

func (r *testRepo) git(ctx context.Context, args ...string) string {
	r.t.Helper()
	out, err := r.tryGit(ctx, args...)
	if err != nil {
		r.t.Fatalf("git %s: %v\n%s", gitcli.ArgsString(args), err, out)
	}
	return strings.TrimSpace(out)
}

func (r *testRepo) tryGit(ctx context.Context, args ...string) (string, error) {
	r.t.Helper()
	r.t.Logf("+ git %s", gitcli.ArgsString(args))
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	cmd.Env = gitEnv(r.dir, r.n)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func (r *testRepo) runOp(ctx context.Context, op testOperation) {
	r.t.Helper()
	for p, content := range op.Write {
		full := filepath.Join(r.dir, p)
		die(os.MkdirAll(filepath.Dir(full), 0755))
		die(os.WriteFile(full, []byte(content), 0644))
	}
	for _, p := range op.Remove {
		r.git(ctx, "rm", "-q", p)
	}
	if op.Commit != "" {
		r.n++
		r.git(ctx, "add", "-A")
		r.git(ctx, "commit", "-q", "--allow-empty", "-m", op.Commit)
	}
	if op.GitArgs != nil {
		out, err := r.tryGit(ctx, op.GitArgs...)
		r.checkResult(op, out, err)
	}
	if op.Args != nil {
		out, err := callYamlgate(r.t, nil, append(strs("-C", r.dir), op.Args...)...)
		r.checkResult(op, out, err)
	}
}

func (r *testRepo) checkResult(op testOperation, out string, err error) {
	r.t.Helper()
	if op.ShouldFail && err == nil {
		r.t.Fatalf("expected failure, got output:\n%s", out)
	}
	if !op.ShouldFail && err != nil {
		r.t.Fatalf("unexpected failure: %v\n%s", err, out)
	}
	if op.Expect != "" && !strings.Contains(out, op.Expect) {
		r.t.Fatalf("expected output to contain %q, got:\n%s", op.Expect, out)
	}
}

// callYamlgate runs yamlgate in process and returns its combined output. A
// non-zero exit status is returned as an error.
func callYamlgate(t *testing.T, stdin []byte, args ...string) (string, error) {
	t.Helper()
	t.Logf("yamlgate(%s)", gitcli.ArgsString(args))
	term, stdout, stderr := config.BufferedTermIO(bytes.NewReader(stdin))
	code := realMain(append([]string{"yamlgate"}, args...), term)
	out := stdout.String() + stderr.String()
	t.Logf("output:\n%s", out)
	if code != 0 {
		return out, fmt.Errorf("exit status %d", code)
	}
	return out, nil
}

func die(err error) {
	if err != nil {
		panic(err)
	}
}

func TestCheckCommand(t *testing.T) {
	tcs := []struct {
		name string
		ops  []testOperation
	}{
		{
			name: "valid",
			ops: []testOperation{
				{Write: map[string]string{"README": "hi\n"}, Commit: "initial commit"},
				{GitArgs: strs("branch", "base")},
				{Write: map[string]string{"config/app.yaml": goodYAML}, Commit: "add config"},
				{Args: strs("check", "base", "HEAD"), Expect: "OK"},
			},
		},
		{
			name: "invalid",
			ops: []testOperation{
				{Write: map[string]string{"README": "hi\n"}, Commit: "initial commit"},
				{GitArgs: strs("branch", "base")},
				{Write: map[string]string{"config/app.yaml": badYAML}, Commit: "add config"},
				{Args: strs("check", "base", "HEAD"), ShouldFail: true, Expect: "ERROR: Invalid file: config/app.yaml"},
				{Args: strs("--dry-run", "check", "base", "HEAD"), Expect: "ERROR: Invalid file: config/app.yaml"},
			},
		},
		{
			name: "fixed-later",
			ops: []testOperation{
				{Write: map[string]string{"README": "hi\n"}, Commit: "initial commit"},
				{GitArgs: strs("branch", "base")},
				{Write: map[string]string{"config/app.yaml": badYAML}, Commit: "add broken config"},
				{Write: map[string]string{"config/app.yaml": goodYAML}, Commit: "fix config"},
				{Args: strs("check", "base", "HEAD")},
				{Args: strs("--backend", "gogit", "check", "base", "HEAD")},
			},
		},
		{
			name: "deleted",
			ops: []testOperation{
				{Write: map[string]string{"config/app.yaml": badYAML}, Commit: "initial commit"},
				{GitArgs: strs("branch", "base")},
				{Remove: strs("config/app.yaml"), Commit: "remove config"},
				{Args: strs("check", "base", "HEAD")},
			},
		},
		{
			name: "known-history",
			ops: []testOperation{
				{Write: map[string]string{"config/app.yaml": badYAML}, Commit: "initial commit"},
				{GitArgs: strs("branch", "base")},
				{Write: map[string]string{"other.yml": goodYAML}, Commit: "add other"},
				{Args: strs("check", "base", "HEAD")},
				{Args: strs("check", "0000000000000000000000000000000000000000", "HEAD"), ShouldFail: true, Expect: "config/app.yaml"},
			},
		},
		{
			name: "extension",
			ops: []testOperation{
				// a config directory in the work tree must not be taken for
				// the repository's git config
				{Write: map[string]string{"README": "hi\n", "config/base.yaml": goodYAML}, Commit: "initial commit"},
				{GitArgs: strs("branch", "base")},
				{Write: map[string]string{"notes.txt": badYAML, "app.conf": badYAML}, Commit: "add files"},
				{Args: strs("check", "base", "HEAD")},
				{GitArgs: strs("config", "yamlgate.extension", "conf")},
				{Args: strs("check", "base", "HEAD"), ShouldFail: true, Expect: "app.conf"},
				{Args: strs("--backend", "gogit", "check", "base", "HEAD"), ShouldFail: true, Expect: "app.conf"},
			},
		},
		{
			name: "bad-args",
			ops: []testOperation{
				{Write: map[string]string{"README": "hi\n"}, Commit: "initial commit"},
				{Args: strs("check", "HEAD"), ShouldFail: true, Expect: "Error: check expects"},
				{Args: strs("check", "HEAD", "no-such-branch"), ShouldFail: true, Expect: "internal error"},
			},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			r := newTestRepo(t, t.TempDir())
			for _, op := range tc.ops {
				r.runOp(ctx, op)
			}
		})
	}
}

func TestFilesCommand(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"ok.yaml":       goodYAML,
		"sub/multi.yml": goodYAML + "---\n" + goodYAML,
		"sub/bad.yaml":  badYAML,
		"notes.txt":     badYAML,
	}
	for p, content := range files {
		full := filepath.Join(dir, p)
		die(os.MkdirAll(filepath.Dir(full), 0755))
		die(os.WriteFile(full, []byte(content), 0644))
	}

	out, err := callYamlgate(t, nil, "files", filepath.Join(dir, "ok.yaml"), filepath.Join(dir, "sub", "multi.yml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "checked 2 file(s), 0 invalid") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out, err = callYamlgate(t, nil, "files", dir)
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(out, "ERROR: Invalid file: "+filepath.Join(dir, "sub", "bad.yaml")) {
		t.Errorf("expected bad.yaml to be reported:\n%s", out)
	}
	if strings.Contains(out, "notes.txt") {
		t.Errorf("expected notes.txt to be skipped:\n%s", out)
	}
}

func TestUsage(t *testing.T) {
	out, err := callYamlgate(t, nil, "--help")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "pre-receive") {
		t.Errorf("expected usage to list commands:\n%s", out)
	}

	if _, err := callYamlgate(t, nil); err == nil {
		t.Error("expected an error without a command")
	}
	out, err = callYamlgate(t, nil, "nope")
	if err == nil {
		t.Fatal("expected an error for an unknown command")
	}
	if !strings.Contains(out, `unknown command "nope"`) {
		t.Errorf("unexpected output:\n%s", out)
	}
}
