package config

import (
	"os"
	"strings"
)

// Environment is the deployment stage named by APP_ENV.
type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentProduction  Environment = "production"
	EnvironmentStaging     Environment = "staging"
)

// Short and misspelled APP_ENV values seen in deploy manifests.
var environmentAliases = map[string]Environment{
	"dev":      EnvironmentDevelopment,
	"prod":     EnvironmentProduction,
	"stag":     EnvironmentStaging,
	"stage":    EnvironmentStaging,
	"stagging": EnvironmentStaging,
}

// AppEnvironment reads APP_ENV, resolving aliases. Unset means development.
func AppEnvironment() Environment {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	if env == "" {
		return EnvironmentDevelopment
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return Environment(env)
}

// ProductionLike reports whether logs must be machine readable.
func (e Environment) ProductionLike() bool {
	return e == EnvironmentProduction || e == EnvironmentStaging
}

// resolveEnvSpecificPath swaps the default path for the file registered for
// the current environment. An explicit path is returned unchanged.
func resolveEnvSpecificPath(path, defaultPath string, envPaths map[Environment]string) string {
	if path == "" {
		path = defaultPath
	}
	envPath, ok := envPaths[AppEnvironment()]
	if ok && (path == defaultPath || path == envPath) {
		return envPath
	}
	return path
}
