// Package config loads and saves the beamcast gateway configuration.
// Config lives as JSON at ~/.beamcast/config.json; individual fields can be
// overridden through BEAMCAST_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Gateway GatewayConfig `json:"gateway"`
	Share   ShareConfig   `json:"share"`
	Policy  PolicyConfig  `json:"policy,omitzero"`
	Prune   PruneConfig   `json:"prune,omitzero"`
}

type GatewayConfig struct {
	// ListenAddr is the address the gateway's HTTP server binds.
	ListenAddr string `json:"listen_addr" env:"BEAMCAST_LISTEN_ADDR"`
	// OwnerID is the peer identity of the privileged operator. Only this
	// identity may dispatch shares or mutate history.
	OwnerID string `json:"owner_id" env:"BEAMCAST_OWNER_ID"`
	// AuthToken, when set, is required from every connecting peer.
	AuthToken string `json:"auth_token,omitempty" env:"BEAMCAST_AUTH_TOKEN"`
	// DataDir holds the persisted history map and placement data.
	DataDir string `json:"data_dir" env:"BEAMCAST_DATA_DIR"`
}

type ShareConfig struct {
	// DefaultBatchSize bounds how many history records a backfill pulls.
	DefaultBatchSize int `json:"default_batch_size" env:"BEAMCAST_BATCH_SIZE"`
}

type PolicyConfig struct {
	// Blacklist lists peer ids excluded from peer-limited shares.
	Blacklist []string `json:"blacklist,omitempty" env:"BEAMCAST_BLACKLIST" envSeparator:","`
	// RemoteURL, when set, serves additional blacklist entries as JSON;
	// fetched entries are merged with the static list.
	RemoteURL string `json:"remote_url,omitempty" env:"BEAMCAST_BLACKLIST_URL"`
	// RemoteKey is sent as X-Beamcast-Key on every fetch.
	RemoteKey string `json:"remote_key,omitempty" env:"BEAMCAST_BLACKLIST_KEY"`
	// RefreshMinutes between fetches. 0 fetches once at startup.
	RefreshMinutes int `json:"refresh_minutes,omitempty"`
}

type PruneConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule is a cron expression; history pruning runs when it is due.
	Schedule string `json:"schedule,omitempty" env:"BEAMCAST_PRUNE_SCHEDULE"`
	// MaxAgeHours drops records untouched for longer than this. 0 disables
	// the age bound.
	MaxAgeHours int `json:"max_age_hours,omitempty"`
	// MaxRecords caps the history map size, dropping oldest first. 0
	// disables the size bound.
	MaxRecords int `json:"max_records,omitempty"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Gateway: GatewayConfig{
			ListenAddr: "127.0.0.1:8793",
			OwnerID:    "owner",
			DataDir:    filepath.Join(home, ".beamcast", "data"),
		},
		Share: ShareConfig{
			DefaultBatchSize: 20,
		},
		Prune: PruneConfig{
			Enabled:     false,
			Schedule:    "0 4 * * *",
			MaxAgeHours: 0,
			MaxRecords:  500,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate rejects configurations the gateway cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Gateway.OwnerID) == "" {
		return fmt.Errorf("gateway.owner_id must not be empty")
	}
	if c.Share.DefaultBatchSize <= 0 {
		return fmt.Errorf("share.default_batch_size must be positive, got %d", c.Share.DefaultBatchSize)
	}
	return nil
}

// DataDirPath returns the data directory with a leading ~ expanded.
func (c *Config) DataDirPath() string {
	return expandHome(c.Gateway.DataDir)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
