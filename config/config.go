// Package config loads genwire project files.
//
// A project file names the schema and operation documents of a project and
// where the generated code goes:
//
//	schema: schema/*.graphqls
//	documents:
//	  - queries/**/*.graphql
//	package: api
//	output: internal/api
//	persisted_queries: build/pq
//	scalars:
//	  Time: time.Time
//	worker:
//	  command: genwire
//	  args: [worker]
//	  timeout: 30s
//	cache_control:
//	  default_max_age: 0
//	  default_scope: PUBLIC
//
// Relative paths are resolved against the directory of the file. Patterns
// may use ** to match any number of directories.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar"
	"gopkg.in/yaml.v3"

	"github.com/syssam/genwire/generator"
	"github.com/syssam/genwire/protocol"
)

// DefaultFile is the project file looked up when none is given.
const DefaultFile = "genwire.yml"

// DefaultTimeout bounds one generation when the file sets none.
const DefaultTimeout = 30 * time.Second

// ErrInvalid is matched by every validation error of Load.
var ErrInvalid = errors.New("genwire: invalid config")

// Config is a genwire project file.
type Config struct {
	// Schema lists the schema files or glob patterns.
	Schema StringList `yaml:"schema"`

	// Documents lists the operation documents or glob patterns.
	Documents StringList `yaml:"documents"`

	// Package is the name of the generated package.
	Package string `yaml:"package,omitempty"`

	// Output is the directory generated files are written to.
	Output string `yaml:"output,omitempty"`

	// PersistedQueries is the directory of the persisted query manifest.
	// Empty disables the manifest.
	PersistedQueries string `yaml:"persisted_queries,omitempty"`

	// Scalars maps custom GraphQL scalars to qualified Go types.
	Scalars map[string]string `yaml:"scalars,omitempty"`

	// Options are passed to the generator as they are.
	Options map[string]string `yaml:"options,omitempty"`

	// Worker configures the worker process.
	Worker WorkerConfig `yaml:"worker,omitempty"`

	// CacheControl holds the cache hint defaults.
	CacheControl CacheControlConfig `yaml:"cache_control,omitempty"`

	path string
}

// WorkerConfig configures the worker process.
type WorkerConfig struct {
	// Command is the worker executable. Empty runs the genwire executable
	// itself.
	Command string `yaml:"command,omitempty"`

	// Args are the worker arguments.
	Args []string `yaml:"args,omitempty"`

	// Timeout bounds one generation.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// CacheControlConfig holds the cache hint defaults.
type CacheControlConfig struct {
	DefaultMaxAge *int   `yaml:"default_max_age,omitempty"`
	DefaultScope  string `yaml:"default_scope,omitempty"`
}

// StringList is a YAML type that can be either a string or a list of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler for StringList.
func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("expected string or list, got %v", node.Kind)
	}
}

// MarshalYAML implements yaml.Marshaler for StringList.
func (s StringList) MarshalYAML() (any, error) {
	if len(s) == 1 {
		return s[0], nil
	}
	return []string(s), nil
}

// Load reads and validates the project file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genwire config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse genwire config: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve genwire config: %w", err)
	}
	cfg.path = abs

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save validates cfg and writes it to path, creating missing directories.
// Defaults filled in by validation are written too; cfg is left unchanged.
func Save(path string, cfg *Config) error {
	c := *cfg
	if err := c.validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(&c)
	if err != nil {
		return fmt.Errorf("marshal genwire config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) validate() error {
	if len(c.Schema) == 0 {
		return fmt.Errorf("%w: schema is required", ErrInvalid)
	}
	if len(c.Documents) == 0 {
		return fmt.Errorf("%w: documents is required", ErrInvalid)
	}
	if c.Output == "" {
		c.Output = "."
	}
	if c.Worker.Timeout < 0 {
		return fmt.Errorf("%w: worker.timeout cannot be negative", ErrInvalid)
	}
	if c.Worker.Timeout == 0 {
		c.Worker.Timeout = DefaultTimeout
	}
	switch c.CacheControl.DefaultScope {
	case "", "PUBLIC", "PRIVATE":
	default:
		return fmt.Errorf("%w: cache_control.default_scope must be PUBLIC or PRIVATE, got %q", ErrInvalid, c.CacheControl.DefaultScope)
	}
	if age := c.CacheControl.DefaultMaxAge; age != nil && *age < 0 {
		return fmt.Errorf("%w: cache_control.default_max_age cannot be negative", ErrInvalid)
	}
	return nil
}

// Path returns the absolute path of the project file.
func (c *Config) Path() string {
	return c.path
}

// Dir returns the directory relative paths are resolved against.
func (c *Config) Dir() string {
	if c.path == "" {
		return "."
	}
	return filepath.Dir(c.path)
}

// OutputDir returns the directory generated files are written to.
func (c *Config) OutputDir() string {
	return c.resolve(c.Output)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir(), p)
}

// Files expands the schema and document patterns. Names are relative to
// Dir, sorted and unique. A pattern that matches nothing is an error.
func (c *Config) Files() ([]string, error) {
	var files []string
	for _, pattern := range slices.Concat(c.Schema, c.Documents) {
		matches, err := doublestar.Glob(c.resolve(pattern))
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %q: %v", ErrInvalid, pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: pattern %q matches no files", ErrInvalid, pattern)
		}
		for _, m := range matches {
			rel, err := filepath.Rel(c.Dir(), m)
			if err != nil {
				rel = m
			}
			files = append(files, filepath.ToSlash(rel))
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

// WatchDirs returns the directories holding the project file, the matched
// files and the fixed part of every pattern. A pattern using ** also adds
// every directory below its fixed part. Missing directories are left out.
func (c *Config) WatchDirs() []string {
	dirs := []string{c.Dir()}
	for _, pattern := range slices.Concat(c.Schema, c.Documents) {
		dir := filepath.Dir(c.resolve(pattern))
		for hasMeta(dir) {
			dir = filepath.Dir(dir)
		}
		dirs = append(dirs, dir)
		if strings.Contains(pattern, "**") {
			_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
				if err == nil && d.IsDir() {
					dirs = append(dirs, path)
				}
				return nil
			})
		}
		matches, _ := doublestar.Glob(c.resolve(pattern))
		for _, m := range matches {
			dirs = append(dirs, filepath.Dir(m))
		}
	}
	out := dirs[:0]
	for _, dir := range dirs {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			out = append(out, dir)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, `*?[\`)
}

// Request builds the generator request for the project.
func (c *Config) Request() (*protocol.GeneratorRequest, error) {
	files, err := c.Files()
	if err != nil {
		return nil, err
	}
	req := &protocol.GeneratorRequest{
		ConfigFileName:    c.path,
		RootDirectory:     c.Dir(),
		Package:           c.Package,
		DocumentFileNames: files,
		Options:           make(map[string]string),
	}
	if c.PersistedQueries != "" {
		req.PersistedQueryDirectory = c.resolve(c.PersistedQueries)
	}
	for k, v := range c.Options {
		req.Options[k] = v
	}
	for name, typ := range c.Scalars {
		req.Options[generator.OptionScalarPrefix+name] = typ
	}
	if age := c.CacheControl.DefaultMaxAge; age != nil {
		req.Options[generator.OptionDefaultMaxAge] = strconv.Itoa(*age)
	}
	if scope := c.CacheControl.DefaultScope; scope != "" {
		req.Options[generator.OptionDefaultScope] = scope
	}
	return req, nil
}
