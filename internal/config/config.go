// Package config loads sessiond settings from the environment.
package config

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Config holds everything sessiond needs to run one peer of a session.
type Config struct {
	SessionID string
	Role      string // "host" or "participant"

	SelfName string
	PeerName string

	HostID        string
	ParticipantID string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DataDir string // badger duration cache + sqlite approval store

	TaxRate decimal.Decimal

	// DefaultRate seeds the host's per-minute rate when no profile
	// service is wired.
	DefaultRate decimal.Decimal

	ListenAddr string // ops server (health + metrics)
	LogLevel   string
}

// FromEnv builds a Config from LIVESESSION_* environment variables.
func FromEnv() (Config, error) {
	cfg := Config{
		SessionID:     ParseString("LIVESESSION_SESSION_ID", ""),
		Role:          ParseString("LIVESESSION_ROLE", "host"),
		SelfName:      ParseString("LIVESESSION_SELF_NAME", ""),
		PeerName:      ParseString("LIVESESSION_PEER_NAME", ""),
		HostID:        ParseString("LIVESESSION_HOST_ID", ""),
		ParticipantID: ParseString("LIVESESSION_PARTICIPANT_ID", ""),
		RedisAddr:     ParseString("LIVESESSION_REDIS_ADDR", "localhost:6379"),
		RedisPassword: ParseString("LIVESESSION_REDIS_PASSWORD", ""),
		RedisDB:       ParseInt("LIVESESSION_REDIS_DB", 0),
		DataDir:       ParseString("LIVESESSION_DATA_DIR", "./data"),
		ListenAddr:    ParseString("LIVESESSION_LISTEN_ADDR", ":8099"),
		LogLevel:      ParseString("LOG_LEVEL", "info"),
	}

	tax := ParseFloat("LIVESESSION_TAX_RATE", 0.18)
	cfg.TaxRate = decimal.NewFromFloat(tax)
	cfg.DefaultRate = decimal.NewFromFloat(ParseFloat("LIVESESSION_DEFAULT_RATE", 5.0))

	if cfg.SessionID == "" {
		return Config{}, fmt.Errorf("config: LIVESESSION_SESSION_ID is required")
	}
	if cfg.Role != "host" && cfg.Role != "participant" {
		return Config{}, fmt.Errorf("config: LIVESESSION_ROLE must be host or participant, got %q", cfg.Role)
	}
	if cfg.SelfName == "" {
		return Config{}, fmt.Errorf("config: LIVESESSION_SELF_NAME is required")
	}
	if cfg.TaxRate.IsNegative() {
		return Config{}, fmt.Errorf("config: LIVESESSION_TAX_RATE must not be negative")
	}
	if !cfg.DefaultRate.IsPositive() {
		return Config{}, fmt.Errorf("config: LIVESESSION_DEFAULT_RATE must be positive")
	}
	return cfg, nil
}
