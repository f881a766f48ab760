// Package config loads the optional YAML config file and .env file that
// supply defaults for the command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/julianstephens/habitmaster/internal/logger"
)

// File mirrors config.yaml. Keys use the same names as the long flags.
type File struct {
	DB          string `yaml:"db"`
	Timezone    string `yaml:"timezone"`
	Debug       *bool  `yaml:"debug"`
	BlobDir     string `yaml:"blob-dir"`
	Profile     string `yaml:"profile"`
	MetricsAddr string `yaml:"metrics-addr"`
	LogLevel    string `yaml:"log-level"`
	LogFormat   string `yaml:"log-format"`
}

// Load reads the config file at path. A missing file is not an error and
// yields an empty File.
func Load(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return f, nil
		}
		return f, fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return f, nil
}

// values returns the flag values the file sets, keyed by flag name.
func (f File) values() map[string]any {
	out := map[string]any{}
	set := func(name, v string) {
		if strings.TrimSpace(v) != "" {
			out[name] = v
		}
	}
	set("db", f.DB)
	set("timezone", f.Timezone)
	set("blob-dir", f.BlobDir)
	set("profile", f.Profile)
	set("metrics-addr", f.MetricsAddr)
	set("log-level", f.LogLevel)
	set("log-format", f.LogFormat)
	if f.Debug != nil {
		out["debug"] = *f.Debug
	}
	return out
}

// Resolver feeds the file's values to kong. Command-line flags win over the
// file, and so do environment variables bound to the flag.
func (f File) Resolver() kong.Resolver {
	values := f.values()
	return kong.ResolverFunc(func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		for _, env := range flag.Envs {
			if _, ok := os.LookupEnv(env); ok {
				return nil, nil
			}
		}
		v, ok := values[flag.Name]
		if !ok {
			return nil, nil
		}
		return v, nil
	})
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
		logger.Debug("Loaded environment file", "path", p)
	}
	return nil
}

// Location resolves a timezone name. Empty and "Local" mean the system zone.
func Location(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}
