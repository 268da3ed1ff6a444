package config

import "go.uber.org/zap"

// NewLogger builds the operator log for cfg. Hook output on stderr reaches
// the pushing client, so nothing is logged unless a log file is set or
// verbose/debug output is requested.
func NewLogger(cfg Config) (*zap.Logger, error) {
	if cfg.Quiet || (cfg.LogFile == "" && !cfg.Verbose && !cfg.Debug) {
		return zap.NewNop(), nil
	}

	var zc zap.Config
	if cfg.Debug {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	out := "stderr"
	if cfg.LogFile != "" {
		out = cfg.LogFile
	}
	zc.OutputPaths = []string{out}
	zc.ErrorOutputPaths = []string{out}
	return zc.Build()
}
