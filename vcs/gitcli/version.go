package gitcli

import (
	"context"
	"fmt"
	"strings"

	"github.com/blang/semver/v4"
)

// Version returns the version of the git binary.
func (g *Git) Version(ctx context.Context) (semver.Version, error) {
	b, err := g.call(ctx, []string{"version"})
	if err != nil {
		return semver.Version{}, err
	}
	return parseGitVersion(string(b))
}

// CheckVersion returns an error if git is older than min. An empty min
// disables the check.
func (g *Git) CheckVersion(ctx context.Context, min string) error {
	if min == "" {
		return nil
	}
	want, err := semver.ParseTolerant(min)
	if err != nil {
		return fmt.Errorf("gitcli: invalid minimum git version %q: %w", min, err)
	}
	have, err := g.Version(ctx)
	if err != nil {
		return err
	}
	if have.LT(want) {
		return fmt.Errorf("gitcli: git %s is older than the required %s", have, want)
	}
	return nil
}

// parseGitVersion reads "git version 2.39.2 (Apple Git-143)" or
// "git version 2.45.1.windows.1".
func parseGitVersion(s string) (semver.Version, error) {
	fields := strings.Fields(s)
	if len(fields) < 3 || fields[0] != "git" || fields[1] != "version" {
		return semver.Version{}, fmt.Errorf("gitcli: unexpected git version output: %q", s)
	}
	parts := strings.Split(fields[2], ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	v, err := semver.ParseTolerant(strings.Join(parts, "."))
	if err != nil {
		return semver.Version{}, fmt.Errorf("gitcli: parse git version %q: %w", fields[2], err)
	}
	return v, nil
}
