package config

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	yaml "gopkg.in/yaml.v2"
)

const DefaultDepot = "import"
const DefaultBranch = "main"

// DefaultCommitWindow is the maximum time gap tolerated within a single
// grouped revision changeset.
const DefaultCommitWindow = 5 * time.Minute

// DefaultSortRunSize bounds the external merge sort's in-memory run size
// (package extsort) before it spills to a temp file.
const DefaultSortRunSize = 64 * datasize.MB

// Config for the changeset engine and its journal output back-end.
type Config struct {
	ImportDepot   string `yaml:"import_depot"`
	DefaultBranch string `yaml:"default_branch"`

	// CommitWindowString is read from YAML as a duration string ("5m");
	// CommitWindow is the parsed form the engine actually uses.
	CommitWindowString string        `yaml:"commit_window"`
	CommitWindow       time.Duration `yaml:"-"`

	// TieTagging is parsed and validated but not yet consumed: which
	// revisions a tag/branch may span across projects is a symbol-policy
	// decision made upstream of this engine, not by the changeset
	// grouping this package configures.
	TieTagging bool `yaml:"tie_tagging"`

	// TrunkOnly skips all symbol changesets entirely.
	TrunkOnly bool `yaml:"trunk_only"`

	// SortRunSize bounds the external merge sort's per-run memory budget
	// (package extsort).
	SortRunSize datasize.ByteSize `yaml:"sort_run_size"`

	// WorkingDir is the shared directory holding on-disk pass artifacts.
	WorkingDir string `yaml:"working_dir"`
}

// Unmarshal the config
func Unmarshal(config []byte) (*Config, error) {
	// Default values specified here
	cfg := &Config{
		ImportDepot:        "import",
		DefaultBranch:      "main",
		CommitWindowString: DefaultCommitWindow.String(),
		SortRunSize:        DefaultSortRunSize,
		WorkingDir:         ".",
	}
	err := yaml.Unmarshal(config, cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %v. make sure to use 'single quotes' around strings with special characters (like match patterns)", err.Error())
	}
	err = cfg.validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile - loads config file
func LoadConfigFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	cfg, err := LoadConfigString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	return cfg, nil
}

// LoadConfigString - loads a string
func LoadConfigString(content []byte) (*Config, error) {
	cfg, err := Unmarshal([]byte(content))
	return cfg, err
}

func (c *Config) validate() error {
	window, err := time.ParseDuration(c.CommitWindowString)
	if err != nil {
		return fmt.Errorf("failed to parse '%s' as a duration: %w", c.CommitWindowString, err)
	}
	c.CommitWindow = window
	return nil
}
