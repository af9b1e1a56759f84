package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ProfilesConfig holds all named profiles and tracks which one is active.
type ProfilesConfig struct {
	Active   string             `toml:"active"`
	Profiles map[string]Profile `toml:"profiles"`
}

// Profile is a named set of connection settings.
type Profile struct {
	DatabaseURL string `toml:"database_url"`
	Table       string `toml:"table,omitempty"`
	NATSURL     string `toml:"nats_url,omitempty"`
}

func profilesPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".config", "nfindb")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "profiles.toml"), nil
}

func loadProfiles() (ProfilesConfig, error) {
	path, err := profilesPath()
	if err != nil {
		return ProfilesConfig{}, err
	}
	var cfg ProfilesConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return ProfilesConfig{Profiles: map[string]Profile{}}, nil
		}
		return ProfilesConfig{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{}
	}
	return cfg, nil
}

func saveProfiles(cfg ProfilesConfig) error {
	path, err := profilesPath()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// selectedProfile returns the profile named by name, or the active profile
// when name is empty. It reports false when no profile applies.
func selectedProfile(name string) (Profile, bool, error) {
	cfg, err := loadProfiles()
	if err != nil {
		return Profile{}, false, err
	}
	explicit := name != ""
	if !explicit {
		name = cfg.Active
	}
	if name == "" {
		return Profile{}, false, nil
	}
	p, ok := cfg.Profiles[name]
	if !ok {
		if explicit {
			return Profile{}, false, fmt.Errorf("profile %q not found", name)
		}
		// A stale active entry is ignored rather than blocking every command.
		return Profile{}, false, nil
	}
	return p, true, nil
}

// redactURL hides the password in a connection URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
