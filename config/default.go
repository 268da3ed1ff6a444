package config

// FileName is the name of the configuration file searched for in the
// working directory and its parents.
const FileName = "yamlgate.yaml"

func GetDefault() Config {
	return Config{
		Extension:       "yaml|yml",
		Backend:         BackendGit,
		Workers:         4,
		ValidateWorkers: 1,
		PageSize:        1000,
		SpoolLimit:      1 << 20,
		MinGitVersion:   "2.7.0",
	}
}
