package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"asmcorpus/internal/cache"
	"asmcorpus/internal/corpus"
	"asmcorpus/internal/pipeline"
	"asmcorpus/internal/toolchain"
)

const (
	appName         = "asmcorpus"
	defaultDataset  = "geeks_for_geeks_successful_test_scripts"
	defaultSamples  = 1000
	defaultJobs     = 4
	defaultTimeout  = "2m"
	defaultSyntax   = "att"
	defaultArch     = "x86-64"
	defaultRawRoot  = "datasets/raw"
	defaultFmtRoot  = "datasets/formatted"
	defaultInputDir = defaultFmtRoot + "/input"
	defaultAsmDir   = defaultFmtRoot + "/output"
)

var configNames = []string{appName + ".toml", appName + ".yaml", appName + ".yml"}

type projectConfig struct {
	Dataset   datasetConfig   `toml:"dataset" yaml:"dataset"`
	Toolchain toolchainConfig `toml:"toolchain" yaml:"toolchain"`
	Cache     cacheConfig     `toml:"cache" yaml:"cache"`

	// path is the file the config was read from; empty for defaults.
	path string
	// root anchors relative paths.
	root string
}

type datasetConfig struct {
	Name      string   `toml:"name" yaml:"name"`
	Corpus    string   `toml:"corpus" yaml:"corpus"`
	Input     string   `toml:"input" yaml:"input"`
	SourceDir string   `toml:"source_dir" yaml:"source_dir"`
	AsmDir    string   `toml:"asm_dir" yaml:"asm_dir"`
	Output    string   `toml:"output" yaml:"output"`
	Samples   int      `toml:"samples" yaml:"samples"`
	Exclude   []string `toml:"exclude" yaml:"exclude"`
}

type toolchainConfig struct {
	CC      string   `toml:"cc" yaml:"cc"`
	CXX     string   `toml:"cxx" yaml:"cxx"`
	Flags   []string `toml:"flags" yaml:"flags"`
	Objdump string   `toml:"objdump" yaml:"objdump"`
	Syntax  string   `toml:"syntax" yaml:"syntax"`
	Arch    string   `toml:"arch" yaml:"arch"`
	Symbol  string   `toml:"symbol" yaml:"symbol"`
	Timeout string   `toml:"timeout" yaml:"timeout"`
	Jobs    int      `toml:"jobs" yaml:"jobs"`
}

type cacheConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Dir     string `toml:"dir" yaml:"dir"`
}

func defaultConfig() projectConfig {
	compilers := toolchain.DefaultCompilers()
	return projectConfig{
		Dataset: datasetConfig{
			Name:      defaultDataset,
			Corpus:    corpus.Default,
			SourceDir: defaultInputDir,
			AsmDir:    defaultAsmDir,
			Samples:   defaultSamples,
		},
		Toolchain: toolchainConfig{
			CC:      compilers[".c"],
			CXX:     compilers[".cpp"],
			Objdump: "objdump",
			Syntax:  defaultSyntax,
			Arch:    defaultArch,
			Timeout: defaultTimeout,
			Jobs:    defaultJobs,
		},
	}
}

// findConfig walks up from startDir looking for a config file.
func findConfig(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		for _, name := range configNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, true, nil
			} else if !errors.Is(err, os.ErrNotExist) {
				return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// loadConfig reads explicit, or the discovered config when explicit is
// empty, over the defaults. Without any file the defaults are anchored at
// the working directory.
func loadConfig(explicit string) (projectConfig, error) {
	path := explicit
	if path == "" {
		found, ok, err := findConfig(".")
		if err != nil {
			return projectConfig{}, err
		}
		if !ok {
			cfg := defaultConfig()
			wd, err := os.Getwd()
			if err != nil {
				return projectConfig{}, err
			}
			cfg.root = wd
			return cfg, cfg.validate()
		}
		path = found
	}
	return loadConfigFile(path)
}

func loadConfigFile(path string) (projectConfig, error) {
	cfg := defaultConfig()
	// #nosec G304 -- path is the user's config file
	data, err := os.ReadFile(path)
	if err != nil {
		return projectConfig{}, fmt.Errorf("failed to read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return projectConfig{}, fmt.Errorf("%s: failed to parse YAML: %w", path, err)
		}
	default:
		meta, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return projectConfig{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return projectConfig{}, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	cfg.path = abs
	cfg.root = filepath.Dir(abs)
	if err := cfg.validate(); err != nil {
		return projectConfig{}, err
	}
	return cfg, nil
}

func (c projectConfig) source() string {
	if c.path == "" {
		return "defaults"
	}
	return c.path
}

func (c projectConfig) validate() error {
	if strings.TrimSpace(c.Dataset.Name) == "" {
		return fmt.Errorf("%s: [dataset].name must not be empty", c.source())
	}
	if strings.ContainsAny(c.Dataset.Name, `/\`) {
		return fmt.Errorf("%s: [dataset].name %q must not contain path separators", c.source(), c.Dataset.Name)
	}
	if _, err := corpus.Lookup(c.Dataset.Corpus); err != nil {
		return fmt.Errorf("%s: [dataset].corpus: %w", c.source(), err)
	}
	switch strings.ToLower(c.Toolchain.Syntax) {
	case "att", "intel":
	default:
		return fmt.Errorf("%s: [toolchain].syntax %q (expected att|intel)", c.source(), c.Toolchain.Syntax)
	}
	if c.Toolchain.Jobs < 0 {
		return fmt.Errorf("%s: [toolchain].jobs must be >= 0", c.source())
	}
	if _, err := c.timeout(); err != nil {
		return err
	}
	return nil
}

func (c projectConfig) timeout() (time.Duration, error) {
	raw := strings.TrimSpace(c.Toolchain.Timeout)
	if raw == "" || raw == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s: [toolchain].timeout %q is not a valid duration", c.source(), c.Toolchain.Timeout)
	}
	return d, nil
}

func (c projectConfig) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.root, filepath.FromSlash(p))
}

func (c projectConfig) inputDir() string {
	if c.Dataset.Input != "" {
		return c.resolve(c.Dataset.Input)
	}
	return c.resolve(defaultRawRoot + "/" + c.Dataset.Name)
}

func (c projectConfig) outputPath() string {
	if c.Dataset.Output != "" {
		return c.resolve(c.Dataset.Output)
	}
	return c.resolve(defaultFmtRoot + "/" + c.Dataset.Name + ".jsonl")
}

func (c projectConfig) cacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.resolve(c.Cache.Dir), nil
	}
	return cache.DefaultDir(appName)
}

func (c projectConfig) compilers() map[string]string {
	out := toolchain.DefaultCompilers()
	if c.Toolchain.CC != "" {
		out[".c"] = c.Toolchain.CC
	}
	if c.Toolchain.CXX != "" {
		out[".cpp"] = c.Toolchain.CXX
	}
	return out
}

// request builds a pipeline request; the caller fills progress and output
// sinks.
func (c projectConfig) request() (*pipeline.Request, error) {
	strategy, err := corpus.Lookup(c.Dataset.Corpus)
	if err != nil {
		return nil, err
	}
	timeout, err := c.timeout()
	if err != nil {
		return nil, err
	}
	req := &pipeline.Request{
		Strategy:  strategy,
		Input:     c.inputDir(),
		SourceDir: c.resolve(c.Dataset.SourceDir),
		AsmDir:    c.resolve(c.Dataset.AsmDir),
		Output:    c.outputPath(),
		Samples:   c.Dataset.Samples,
		Exclude:   c.Dataset.Exclude,
		Compilers: c.compilers(),
		Flags:     c.Toolchain.Flags,
		Disassembler: toolchain.Disassembler{
			Binary: c.Toolchain.Objdump,
			Syntax: strings.ToLower(c.Toolchain.Syntax),
			Arch:   c.Toolchain.Arch,
		},
		Symbol:  c.Toolchain.Symbol,
		Jobs:    c.Toolchain.Jobs,
		Timeout: timeout,
	}
	if c.Cache.Enabled {
		dir, err := c.cacheDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve cache dir: %w", err)
		}
		store, err := cache.Open(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache: %w", err)
		}
		req.Cache = store
	}
	return req, nil
}

func defaultConfigTOML() string {
	return fmt.Sprintf(`# asmcorpus configuration
[dataset]
name = %q
corpus = %q
# input = "%s/<name>"
source_dir = %q
asm_dir = %q
# output = "%s/<name>.jsonl"
samples = %d
exclude = []

[toolchain]
cc = "gcc"
cxx = "g++"
flags = []
objdump = "objdump"
syntax = %q
arch = %q
timeout = %q
jobs = %d

[cache]
enabled = false
# dir = ".cache/asmcorpus"
`, defaultDataset, corpus.Default, defaultRawRoot, defaultInputDir, defaultAsmDir, defaultFmtRoot,
		defaultSamples, defaultSyntax, defaultArch, defaultTimeout, defaultJobs)
}

func defaultConfigYAML() (string, error) {
	cfg := defaultConfig()
	cfg.Toolchain.Flags = []string{}
	cfg.Dataset.Exclude = []string{}
	var buf bytes.Buffer
	buf.WriteString("# asmcorpus configuration\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
