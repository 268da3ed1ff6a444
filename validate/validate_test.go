package validate

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/jeffrom/yamlgate/commit"
	"github.com/jeffrom/yamlgate/config"
	"github.com/jeffrom/yamlgate/model"
	"github.com/jeffrom/yamlgate/vcs"
)

const (
	goodYAML = "name: app\nreplicas: 3\nports:\n  - 80\n  - 443\n"
	badYAML  = "key: value: bad\n"
)

func newTestConfig(t *testing.T, overrides *config.Config) config.Config {
	t.Helper()
	tio, _, _ := config.BufferedTermIO(nil)
	cfg := config.NewWithTerminalIO(overrides, &tio)
	cfg.TempDir = t.TempDir()
	return cfg
}

type fileAt struct {
	path    string
	commit  string
	content string
}

func setup(files ...fileAt) (*vcs.Mock, *commit.PathVerdicts) {
	m := vcs.NewMock()
	verdicts := commit.NewPathVerdicts()
	for _, f := range files {
		c := &model.Commit{ID: f.commit}
		m.SetCommits(c).SetContent(f.commit, f.path, f.content)
		verdicts.Offer(f.path, c)
	}
	return m, verdicts
}

func TestValidate(t *testing.T) {
	tcs := []struct {
		name       string
		files      []fileAt
		expectPath string
	}{
		{
			name: "none",
		},
		{
			name:  "valid",
			files: []fileAt{{"config/app.yaml", "a", goodYAML}},
		},
		{
			name:       "invalid",
			files:      []fileAt{{"config/app.yaml", "a", badYAML}},
			expectPath: "config/app.yaml",
		},
		{
			name: "one-of-many",
			files: []fileAt{
				{"a.yaml", "a", goodYAML},
				{"b.yml", "a", badYAML},
				{"c.yaml", "b", goodYAML},
			},
			expectPath: "b.yml",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			m, verdicts := setup(tc.files...)
			v := NewValidator(newTestConfig(t, nil), m, nil)

			res, err := v.Validate(context.Background(), verdicts)
			if err != nil {
				t.Fatal(err)
			}
			if tc.expectPath == "" {
				if !res.Accepted {
					t.Fatalf("expected accepted, got %s", res)
				}
				return
			}
			if res.Accepted {
				t.Fatal("expected rejection")
			}
			if res.Path != tc.expectPath {
				t.Errorf("expected path %q, got %q", tc.expectPath, res.Path)
			}
			if !strings.Contains(res.Summary, tc.expectPath) {
				t.Errorf("expected summary to contain %q, got %q", tc.expectPath, res.Summary)
			}
			if !strings.HasPrefix(res.Summary, SummaryPrefix) {
				t.Errorf("expected summary prefix %q, got %q", SummaryPrefix, res.Summary)
			}
			if res.Detail == "" {
				t.Error("expected detail")
			}
		})
	}
}

func TestValidateFailFast(t *testing.T) {
	m, verdicts := setup(
		fileAt{"a.yaml", "c1", badYAML},
		fileAt{"b.yaml", "c1", "also: [broken\n"},
	)
	v := NewValidator(newTestConfig(t, &config.Config{ValidateWorkers: 1}), m, nil)

	res, err := v.Validate(context.Background(), verdicts)
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted || res.Path != "a.yaml" {
		t.Fatalf("expected a.yaml to be rejected, got %s", res)
	}
	if n := m.ContentFetches("c1", "b.yaml"); n != 0 {
		t.Fatalf("expected b.yaml never to be fetched, got %d fetches", n)
	}
}

func TestValidateConcurrentSingleRejection(t *testing.T) {
	var files []fileAt
	for _, p := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		files = append(files, fileAt{p + ".yaml", "c1", badYAML})
	}
	m, verdicts := setup(files...)
	v := NewValidator(newTestConfig(t, &config.Config{ValidateWorkers: 4}), m, nil)

	res, err := v.Validate(context.Background(), verdicts)
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted {
		t.Fatal("expected rejection")
	}
	if _, ok := verdicts.Get(res.Path); !ok {
		t.Fatalf("rejection names unknown path %q", res.Path)
	}
}

func TestValidateFetchError(t *testing.T) {
	m, verdicts := setup(fileAt{"a.yaml", "c1", goodYAML})
	m.SetFailure("c1:a.yaml", io.ErrUnexpectedEOF)
	v := NewValidator(newTestConfig(t, nil), m, nil)

	_, err := v.Validate(context.Background(), verdicts)
	if err == nil {
		t.Fatal("expected fetch failure to abort")
	}
	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected FetchError, got %T: %v", err, err)
	}
	if ferr.Path != "a.yaml" || ferr.Commit != "c1" {
		t.Errorf("unexpected fetch error fields: %+v", ferr)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected fetch error to unwrap to the cause")
	}
}

func TestValidateSpillsAndCleansUp(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 2000; i++ {
		b.WriteString("- item\n")
	}
	big := b.String()

	m, verdicts := setup(
		fileAt{"big.yaml", "c1", big},
		fileAt{"bad.yaml", "c1", badYAML + big},
	)
	cfg := newTestConfig(t, &config.Config{SpoolLimit: 64})
	v := NewValidator(cfg, m, nil)

	res, err := v.Validate(context.Background(), verdicts)
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted || res.Path != "bad.yaml" {
		t.Fatalf("expected bad.yaml rejection, got %s", res)
	}

	entries, err := os.ReadDir(cfg.TempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected temp dir to be empty, found %d entries", len(entries))
	}
}

type rejectAll struct{}

func (rejectAll) Check(r io.Reader) error { return errors.New("nope") }

func TestValidateCustomChecker(t *testing.T) {
	m, verdicts := setup(fileAt{"a.yaml", "c1", goodYAML})
	v := NewValidator(newTestConfig(t, nil), m, rejectAll{})

	res, err := v.Validate(context.Background(), verdicts)
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted || res.Detail != "nope" {
		t.Fatalf("expected custom checker rejection, got %s", res)
	}
}
