package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is a named tuning profile for a replica. Profiles trade fetch
// latency against store load: an "edge" profile might cap hydration tightly
// while a "hub" profile fetches wide.
type Profile struct {
	Name             string `yaml:"name" json:"name"`
	JoinConcurrency  int    `yaml:"join_concurrency" json:"join_concurrency"`
	FetchConcurrency int    `yaml:"fetch_concurrency" json:"fetch_concurrency"`
	FetchTimeoutMs   int    `yaml:"fetch_timeout_ms" json:"fetch_timeout_ms"`
	LogLevel         string `yaml:"log_level,omitempty" json:"log_level,omitempty"`
}

// LoadProfile loads a profile YAML by name. It searches the profiles
// directory for profile_<name>.yaml.
func LoadProfile(profilesDir, name string) (*Profile, error) {
	name = strings.ToLower(name)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", name))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", name, err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", name, err)
	}
	return &profile, nil
}

// Apply overlays the profile's non-zero values onto cfg.
func (p *Profile) Apply(cfg *Config) {
	if p.JoinConcurrency > 0 {
		cfg.JoinConcurrency = p.JoinConcurrency
	}
	if p.FetchConcurrency > 0 {
		cfg.FetchConcurrency = p.FetchConcurrency
	}
	if p.FetchTimeoutMs > 0 {
		cfg.FetchTimeout = time.Duration(p.FetchTimeoutMs) * time.Millisecond
	}
	if p.LogLevel != "" {
		cfg.LogLevel = p.LogLevel
	}
}
