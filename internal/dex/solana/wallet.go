package solana

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	solana "github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
)

// DefaultKeyEnv is read when no other variable is configured.
const DefaultKeyEnv = "SOLANA_PRIVATE_KEY_BASE58"

// LoadPrivateKeyFromEnv reads the signer from env var key, accepting base58 or a JSON byte array.
func LoadPrivateKeyFromEnv(key string) (solana.PrivateKey, error) {
	_ = godotenv.Load() // best-effort
	if key == "" {
		key = DefaultKeyEnv
	}
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil, fmt.Errorf("%s not set", key)
	}
	if strings.HasPrefix(raw, "[") {
		return parseKeyBytes(raw)
	}
	return solana.PrivateKeyFromBase58(raw)
}

func parseKeyBytes(raw string) (solana.PrivateKey, error) {
	var ints []int
	if err := json.Unmarshal([]byte(raw), &ints); err != nil {
		return nil, fmt.Errorf("decode key bytes: %w", err)
	}
	if len(ints) != 64 {
		return nil, fmt.Errorf("key must be 64 bytes, got %d", len(ints))
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("key byte %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	return solana.PrivateKey(out), nil
}
