// Package yamlgate rejects git pushes that introduce malformed configuration
// files.
//
// For every pushed ref update, the commits new to the server are discovered,
// the newest version of each touched file matching the configured extension
// is selected, and every selected file is parsed. The first file that fails
// to parse rejects the whole push.
//
// Related packages: config, commit, validate, runner, model, index, vcs,
// vcs/gitcli, vcs/gogit
package yamlgate

import "github.com/jeffrom/yamlgate/config"

// Config holds the configuration for yamlgate. This struct is intended for
// command-line use, so not all of its attributes are applicable to every
// operation.
//
// See "go doc github.com/jeffrom/yamlgate/config Config" for more information.
type Config = config.Config
