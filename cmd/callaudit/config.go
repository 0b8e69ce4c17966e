package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// defaultConfigName is looked up in the project root when --config is not set.
const defaultConfigName = "callaudit.yaml"

// FileConfig is the layout of callaudit.yaml. Command-line flags override
// the file.
type FileConfig struct {
	// Builtin rule sets to load. Empty loads "go".
	Builtin []string `yaml:"builtin" validate:"dive,required"`
	// Rules are additional descriptor files, relative to the config file.
	Rules      []string `yaml:"rules" validate:"dive,required"`
	HotPaths   []string `yaml:"hot_paths" validate:"dive,contains=::"`
	MaxDepth   int      `yaml:"max_depth" validate:"gte=0"`
	Assemblies []string `yaml:"assemblies"`
	Categories []string `yaml:"categories"`
	FailOn     string   `yaml:"fail_on" validate:"omitempty,oneof=info minor moderate major critical"`
	// Linter is the name nolint and lint:ignore comments must mention.
	Linter string       `yaml:"linter"`
	Assets AssetsConfig `yaml:"assets"`
}

// AssetsConfig configures the assets module.
type AssetsConfig struct {
	LargeFileThreshold int64    `yaml:"large_file_threshold" validate:"gte=0"`
	SkipDirs           []string `yaml:"skip_dirs"`
}

// loadFileConfig reads the configuration file. With an empty path it reads
// <root>/callaudit.yaml if that exists and returns a zero config otherwise.
func loadFileConfig(path, root string) (*FileConfig, string, error) {
	explicit := path != ""
	if !explicit {
		path = filepath.Join(root, defaultConfigName)
	}
	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return &FileConfig{}, "", nil
		}
		return nil, "", fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	fc, err := parseFileConfig(f)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	return fc, filepath.Dir(path), nil
}

func parseFileConfig(r io.Reader) (*FileConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var fc FileConfig
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := validator.New().Struct(&fc); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &fc, nil
}

// merge applies the file values to cfg for every flag the user did not set.
// Rule file paths are made relative to dir.
func (fc *FileConfig) merge(cfg *Config, flags *pflag.FlagSet, dir string) {
	changed := func(name string) bool {
		return flags != nil && flags.Changed(name)
	}
	if !changed("max-depth") && fc.MaxDepth > 0 {
		cfg.MaxDepth = fc.MaxDepth
	}
	if !changed("fail-on") && fc.FailOn != "" {
		cfg.FailOn = fc.FailOn
	}
	if !changed("assembly") && len(fc.Assemblies) > 0 {
		cfg.Assemblies = fc.Assemblies
	}
	if !changed("categories") && len(fc.Categories) > 0 {
		cfg.Categories = fc.Categories
	}
	// Hot paths from both sources apply.
	cfg.HotPaths = append(append([]string(nil), fc.HotPaths...), cfg.HotPaths...)

	for i, rule := range fc.Rules {
		if dir != "" && !filepath.IsAbs(rule) {
			fc.Rules[i] = filepath.Join(dir, rule)
		}
	}
}
