package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
)

// Load builds the configuration from defaults, the INI file and args,
// then applies network defaults and validates the result.
func Load(args []string) (*Config, error) {
	cfg, err := LoadBase(args)
	if err != nil {
		return nil, err
	}
	if _, err := flags.NewParser(cfg, flags.Default).ParseArgs(args); err != nil {
		return nil, err
	}
	cfg.ApplyNetworkDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBase returns defaults overlaid with the INI file. A lenient pass
// over args picks up --configfile and --datadir so the right file is
// read. Callers that add subcommands run their own parser over the result
// so flags take precedence over the file.
func LoadBase(args []string) (*Config, error) {
	pre := Default()
	preParser := flags.NewParser(pre, flags.IgnoreUnknown|flags.PassDoubleDash)
	if _, err := preParser.ParseArgs(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := LoadFile(cfg, pre.ConfigFilePath()); err != nil {
		return nil, err
	}
	// The file must not move the data directory out from under the
	// command line.
	if pre.DataDir != Default().DataDir {
		cfg.DataDir = pre.DataDir
	}
	cfg.ConfigFile = pre.ConfigFile
	return cfg, nil
}

// LoadFile overlays the INI file at path onto cfg. A missing file is not
// an error.
func LoadFile(cfg *Config, path string) error {
	err := flags.NewIniParser(flags.NewParser(cfg, flags.None)).ParseFile(path)
	if err == nil {
		return nil
	}
	var iniErr *flags.IniError
	if errors.As(err, &iniErr) {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("reading %s: %w", path, err)
}

// WriteFile writes cfg as an INI file, creating the parent directory.
// Default values are written commented out so the file documents every
// option.
func WriteFile(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	ini := flags.NewIniParser(flags.NewParser(cfg, flags.None))
	if err := ini.WriteFile(path, flags.IniIncludeComments|flags.IniIncludeDefaults|flags.IniCommentDefaults); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
