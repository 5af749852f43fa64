package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nao1215/siteaudit/internal/urlnorm"
)

// DefaultConfigFile is the name looked up in the working and home directories.
const DefaultConfigFile = ".siteaudit"

// xdgConfigFile is the name looked up in the XDG config directory.
const xdgConfigFile = "config.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// ErrInvalidPattern is returned for an ignore or follow pattern that is not
// valid glob syntax.
var ErrInvalidPattern = errors.New("invalid URL pattern")

// LoadConfigFile reads a YAML configuration file. Unknown keys are errors
// so that a misspelt "maxpages" does not silently fall back to the default.
// Site keys may be written as bare hosts or as URLs; both are reduced to the
// lowercase host used for lookups.
func LoadConfigFile(filename string) (*File, error) {
	data, err := os.ReadFile(filename) //nolint:gosec // user-provided config path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cf File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if err := checkPatterns("defaults", cf.Defaults); err != nil {
		return nil, err
	}

	sites := make(map[string]SiteConfig, len(cf.Sites))
	for key, sc := range cf.Sites {
		host := siteKey(key)
		if err := checkPatterns(key, sc); err != nil {
			return nil, err
		}
		if _, dup := sites[host]; dup {
			return nil, fmt.Errorf("config file %s: site %q is listed more than once", filename, host)
		}
		sites[host] = sc
	}
	cf.Sites = sites

	return &cf, nil
}

// siteKey turns "https://Example.com/blog" or "Example.com" into "example.com".
func siteKey(key string) string {
	key = strings.TrimSpace(key)
	if strings.Contains(key, "://") {
		if host, err := urlnorm.Host(key); err == nil {
			return host
		}
	}
	return strings.ToLower(strings.TrimSuffix(key, "/"))
}

func checkPatterns(owner string, sc SiteConfig) error {
	for _, patterns := range [][]string{sc.IgnorePatterns, sc.FollowPatterns} {
		for _, p := range patterns {
			if _, err := path.Match(p, "/"); err != nil {
				return fmt.Errorf("%w %q in %s: %w", ErrInvalidPattern, p, owner, err)
			}
		}
	}
	return nil
}

// FindConfigFile returns the configuration file to load, or "" when there
// is none. An explicit configPath is used only if it exists. Otherwise the
// lookup order is:
//  1. .siteaudit in the current directory
//  2. .siteaudit in the home directory
//  3. config.yaml in the XDG config directory
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if exists(configPath) {
			return configPath
		}
		return ""
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), xdgConfigFile))

	for _, c := range candidates {
		if exists(c) {
			return c
		}
	}
	return ""
}

func exists(name string) bool {
	info, err := os.Stat(name)
	return err == nil && !info.IsDir()
}
