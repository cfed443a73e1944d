package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bosar/console/internal/auth"
	"github.com/bosar/console/internal/config"
	"github.com/bosar/console/pkg/logger"
)

// tokenExpiryWindow is how close to expiry a saved token is still accepted.
const tokenExpiryWindow = 10 * time.Minute

// EnsureAccessToken returns the bearer token to use for API calls. An
// explicit token from the environment or flags wins; otherwise the saved
// access key file is used. There is no silent refresh path: a token at or
// near expiry is rejected with a re-login hint, since refreshing requires
// the agent's credentials.
func EnsureAccessToken(cfg *config.Config) (string, error) {
	if cfg.Token != "" {
		return cfg.Token, nil
	}

	data, err := os.ReadFile(cfg.AccessKey)
	if err != nil {
		return "", fmt.Errorf("no token; run `bosar login` or set BOSAR_TOKEN")
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("empty %s; run `bosar login` again", cfg.AccessKey)
	}

	if exp, ok := auth.ExpiresAt(token); ok {
		switch remaining := time.Until(exp); {
		case remaining <= 0:
			return "", fmt.Errorf("saved token is expired; run `bosar login` again")
		case remaining <= tokenExpiryWindow:
			logger.Warnf("cli: saved token expires in %s", remaining.Round(time.Second))
		}
	}
	return token, nil
}

// SaveAccessToken persists a token so later invocations can reuse it.
func SaveAccessToken(cfg *config.Config, token string) error {
	if err := os.MkdirAll(filepath.Dir(cfg.AccessKey), 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(cfg.AccessKey), err)
	}
	if err := os.WriteFile(cfg.AccessKey, []byte(token), 0o600); err != nil {
		return fmt.Errorf("failed to write access token: %w", err)
	}
	return nil
}
