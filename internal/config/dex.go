package config

import (
	"strings"
	"time"
)

// RPC lists the interchangeable Solana RPC endpoints, tried in order and rotated on failure.
type RPC struct {
	Endpoints  []string `yaml:"endpoints"`
	Commitment string   `yaml:"commitment"` // processed|confirmed|finalized
}

// Jupiter points at the swap aggregator API.
type Jupiter struct {
	BaseURL   string `yaml:"base_url"` // https://quote-api.jup.ag
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Timeout returns the HTTP timeout for aggregator calls.
func (j Jupiter) Timeout() time.Duration { return ms(j.TimeoutMs) }

// Wallet names the environment variable holding the signing key (base58 or JSON byte array).
type Wallet struct {
	PrivateKeyEnv string `yaml:"private_key_env"`
}

// ParseEndpoints splits a comma separated endpoint override such as SOLANA_RPC_URLS.
func ParseEndpoints(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
