// FILE: loglayer/src/internal/config/loader.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lconfig "github.com/lixenwraith/config"
)

const envPrefix = "LOGLAYER_"

// precedence lists sources from strongest to weakest. A filter given with
// --set or LOGLAYER_LOGGING_FILTER outlives edits to the file, which is
// what lets operators pin a directive on a host with a shared config.
var precedence = []lconfig.Source{
	lconfig.SourceCLI,
	lconfig.SourceEnv,
	lconfig.SourceFile,
	lconfig.SourceDefault,
}

// LoadWithCLI loads from the path GetConfigPath resolves
func LoadWithCLI(cliArgs []string) (*Config, error) {
	return Load(GetConfigPath(), cliArgs)
}

// Load resolves defaults, the TOML file at path, LOGLAYER_ environment
// variables and CLI arguments, then normalizes and validates the result.
// A missing file is not an error.
func Load(path string, cliArgs []string) (*Config, error) {
	lcfg, err := lconfig.NewBuilder().
		WithDefaults(defaults()).
		WithEnvPrefix(envPrefix).
		WithFile(path).
		WithArgs(cliArgs).
		WithEnvTransform(customEnvTransform).
		WithSources(precedence...).
		Build()
	if err != nil && !isMissingFile(err) {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := &Config{}
	if err := lcfg.Scan("", cfg); err != nil {
		return nil, fmt.Errorf("failed to scan config: %w", err)
	}

	normalize(cfg)
	return cfg, validateConfig(cfg)
}

// normalize trims directives and lowercases enumerated settings so that
// `Filter = " Debug "` and `format = "JSON"` mean what the operator intended
func normalize(cfg *Config) {
	lc := &cfg.Logging
	lc.Filter = strings.TrimSpace(lc.Filter)
	lc.File.Filter = strings.TrimSpace(lc.File.Filter)
	lc.Journal.Filter = strings.TrimSpace(lc.Journal.Filter)
	lc.Recent.Filter = strings.TrimSpace(lc.Recent.Filter)

	for _, field := range []*string{
		&lc.Console.Target, &lc.Console.Format, &lc.Console.ANSI,
		&lc.File.Format, &lc.File.Rotation,
		&cfg.Diagnostics.Output, &cfg.Diagnostics.Level,
	} {
		*field = strings.ToLower(strings.TrimSpace(*field))
	}
}

func isMissingFile(err error) bool {
	return errors.Is(err, lconfig.ErrConfigNotFound)
}

// customEnvTransform maps logging.file.max_files to LOGLAYER_LOGGING_FILE_MAX_FILES
func customEnvTransform(path string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(path, ".", "_"))
}

// GetConfigPath resolves the config file from LOGLAYER_CONFIG_FILE and
// LOGLAYER_CONFIG_DIR, falling back to ~/.config/loglayer.toml
func GetConfigPath() string {
	file := os.Getenv(envPrefix + "CONFIG_FILE")
	dir := os.Getenv(envPrefix + "CONFIG_DIR")

	switch {
	case file != "" && (filepath.IsAbs(file) || dir == ""):
		return file
	case file != "":
		return filepath.Join(dir, file)
	case dir != "":
		return filepath.Join(dir, "loglayer.toml")
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "loglayer.toml")
	}
	return "loglayer.toml"
}
