package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"
)

// GitConfigSection is the section of a repository's git config holding
// per-repository settings:
//
//	[yamlgate]
//		extension = yaml|yml
//		index = /var/lib/yamlgate/repo.db
//		workers = 8
const GitConfigSection = "yamlgate"

// GitConfigPath returns the config file of the repository at gitDir, which
// is either a bare repository or a work tree containing .git. A work tree
// may hold its own config file or directory, so gitDir/config is only used
// when gitDir also looks like a git directory.
func GitConfigPath(gitDir string) string {
	dotGit := filepath.Join(gitDir, ".git", "config")
	if isRegularFile(dotGit) {
		return dotGit
	}
	p := filepath.Join(gitDir, "config")
	if isRegularFile(p) && isRegularFile(filepath.Join(gitDir, "HEAD")) {
		return p
	}
	return dotGit
}

func isRegularFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// ReadGitConfig reads the yamlgate section of a git config file. It returns
// nil if the file or the section doesn't exist.
func ReadGitConfig(p string) (*Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:        true,
		SkipUnrecognizableLines: true,
	}, p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read git config %s: %w", p, err)
	}

	sec, err := f.GetSection(GitConfigSection)
	if err != nil {
		return nil, nil
	}

	cfg := &Config{
		Extension: sec.Key("extension").String(),
		IndexPath: sec.Key("index").String(),
		Backend:   sec.Key("backend").String(),
	}
	if sec.HasKey("workers") {
		n, err := sec.Key("workers").Int()
		if err != nil {
			return nil, fmt.Errorf("config: %s.workers: %w", GitConfigSection, err)
		}
		cfg.Workers = n
	}
	if sec.HasKey("dryrun") {
		b, err := sec.Key("dryrun").Bool()
		if err != nil {
			return nil, fmt.Errorf("config: %s.dryrun: %w", GitConfigSection, err)
		}
		cfg.Dryrun = b
	}
	return cfg, nil
}
