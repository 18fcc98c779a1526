// Package config loads the node configuration, including the protocol
// profile that producer and verifier must agree on out-of-band.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/veritaschain/vcp/internal/hash"
	"github.com/veritaschain/vcp/internal/verify"
)

type Config struct {
	Chain    ChainConfig    `mapstructure:"chain"`
	Protocol ProtocolConfig `mapstructure:"protocol"`
	Keys     KeysConfig     `mapstructure:"keys"`
	Store    StoreConfig    `mapstructure:"store"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
}

type ChainConfig struct {
	Name     string `mapstructure:"name"`
	Producer string `mapstructure:"producer"`
	Tier     string `mapstructure:"tier"`
	LogPath  string `mapstructure:"log_path"`
}

// ProtocolConfig pins the knobs the protocol deliberately leaves open
// so both sides resolve them the same way.
type ProtocolConfig struct {
	OddNodePolicy          string `mapstructure:"odd_node_policy"`
	PrevHashRequired       bool   `mapstructure:"prev_hash_required"`
	MerkleOverStoredHashes bool   `mapstructure:"merkle_over_stored_hashes"`
	RequireSignatures      bool   `mapstructure:"require_signatures"`
	RequireAnchorReference bool   `mapstructure:"require_anchor_reference"`
	RequirePolicyID        bool   `mapstructure:"require_policy_id"`
	SequenceOrigin         uint64 `mapstructure:"sequence_origin"`
	MaxFindings            int    `mapstructure:"max_findings"`
}

type KeysConfig struct {
	KeyID          string `mapstructure:"key_id"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	PublicKeyPath  string `mapstructure:"public_key_path"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type WatchConfig struct {
	Interval string `mapstructure:"interval"`
}

type AlertsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	SlackWebhook string `mapstructure:"slack_webhook"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if expanded := os.ExpandEnv(val); expanded != val {
			v.Set(key, expanded)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Default returns the configuration used when no file is supplied:
// strict profile, current-directory paths.
func Default() *Config {
	cfg := &Config{
		Chain: ChainConfig{
			Name:    "default",
			Tier:    "SILVER",
			LogPath: "events.jsonl",
		},
		Protocol: ProtocolConfig{
			OddNodePolicy:    string(hash.PromoteOdd),
			PrevHashRequired: true,
			SequenceOrigin:   1,
			MaxFindings:      20,
		},
		Store: StoreConfig{Path: "vcp.db"},
		Watch: WatchConfig{Interval: "1m"},
	}
	return cfg
}

func (c *Config) Validate() error {
	if c.Chain.Name == "" {
		c.Chain.Name = "default"
	}
	if c.Chain.Tier == "" {
		c.Chain.Tier = "SILVER"
	}
	if c.Chain.LogPath == "" {
		return fmt.Errorf("chain.log_path is required")
	}

	if c.Protocol.OddNodePolicy == "" {
		c.Protocol.OddNodePolicy = string(hash.PromoteOdd)
	}
	if !hash.OddNodePolicy(c.Protocol.OddNodePolicy).Valid() {
		return fmt.Errorf("invalid protocol.odd_node_policy: %s (valid options: %s, %s)",
			c.Protocol.OddNodePolicy, hash.PromoteOdd, hash.DuplicateOdd)
	}
	if c.Protocol.SequenceOrigin == 0 {
		c.Protocol.SequenceOrigin = 1
	}
	if c.Protocol.MaxFindings <= 0 {
		c.Protocol.MaxFindings = 20
	}

	if c.Watch.Interval != "" {
		if _, err := time.ParseDuration(c.Watch.Interval); err != nil {
			return fmt.Errorf("invalid watch.interval: %w", err)
		}
	}

	if c.Alerts.Enabled && c.Alerts.SlackWebhook == "" {
		return fmt.Errorf("alerts.slack_webhook is required when alerts are enabled")
	}

	return nil
}

// VerifyPolicy maps the protocol profile onto the verifier's policy.
func (c *Config) VerifyPolicy() verify.Policy {
	return verify.Policy{
		PrevHashRequired:       c.Protocol.PrevHashRequired,
		OddNodePolicy:          hash.OddNodePolicy(c.Protocol.OddNodePolicy),
		MerkleOverStoredHashes: c.Protocol.MerkleOverStoredHashes,
		RequireSignatures:      c.Protocol.RequireSignatures,
		RequireAnchorReference: c.Protocol.RequireAnchorReference,
		RequirePolicyID:        c.Protocol.RequirePolicyID,
		SequenceOrigin:         c.Protocol.SequenceOrigin,
		MaxFindings:            c.Protocol.MaxFindings,
	}
}

// WatchInterval parses the watch interval, defaulting to one minute.
func (c *Config) WatchInterval() time.Duration {
	if c.Watch.Interval == "" {
		return time.Minute
	}
	d, err := time.ParseDuration(c.Watch.Interval)
	if err != nil {
		return time.Minute
	}
	return d
}
