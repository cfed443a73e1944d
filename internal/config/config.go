package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/bosar/console/pkg/logger"
)

// Default endpoints per environment. The hostname of the dashboard that the
// console is paired with decides which backend it talks to when no explicit
// override is configured.
const (
	productionAPIURL = "https://api.acgq.click"
	stagingAPIURL    = "https://staging-api.acgq.click"
	localAPIURL      = "http://localhost:3001"

	productionChatURL = "wss://api.acgq.click/chat"
	stagingChatURL    = "wss://staging-api.acgq.click/chat"
	localChatURL      = "ws://localhost:3001/chat"
)

type Config struct {
	// APIBaseURL is the base URL of the bosar REST API, without a trailing
	// slash.
	APIBaseURL string
	// ChatURL is the socket.io chat namespace URL.
	ChatURL string
	// Hostname is the dashboard hostname used for endpoint derivation when
	// no explicit URL override is set.
	Hostname string

	// Token is a pre-acquired bearer token. Optional; the console can also
	// log in with credentials.
	Token string
	// Home is the console's state directory (saved access token).
	Home string
	// AccessKey is the path of the saved access token file.
	AccessKey string

	// Debug enables verbose logging.
	Debug bool
	// LogLevel is the logger threshold.
	LogLevel logger.Level
}

// Load loads configuration from the environment and defaults. A .env file in
// the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	hostname := os.Getenv("BOSAR_HOSTNAME")

	apiURL := os.Getenv("BOSAR_API_URL")
	if apiURL == "" {
		apiURL = APIBaseURLFor(hostname)
	}
	apiURL = strings.TrimRight(apiURL, "/")

	chatURL := os.Getenv("BOSAR_CHAT_URL")
	if chatURL == "" {
		chatURL = ChatURLFor(hostname)
	}

	debug := os.Getenv("DEBUG") == "true" || os.Getenv("DEBUG") == "1" ||
		os.Getenv("BOSAR_DEBUG") == "true" || os.Getenv("BOSAR_DEBUG") == "1"

	level := logger.LevelInfo
	if debug {
		level = logger.LevelDebug
	}
	if raw := os.Getenv("BOSAR_LOG_LEVEL"); raw != "" {
		parsed, err := logger.ParseLevel(raw)
		if err != nil {
			return nil, err
		}
		level = parsed
	}

	home := os.Getenv("BOSAR_HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		home = filepath.Join(userHome, ".bosar")
	}

	return &Config{
		APIBaseURL: apiURL,
		ChatURL:    chatURL,
		Hostname:   hostname,
		Token:      os.Getenv("BOSAR_TOKEN"),
		Home:       home,
		AccessKey:  filepath.Join(home, "access.key"),
		Debug:      debug,
		LogLevel:   level,
	}, nil
}

// APIBaseURLFor maps a dashboard hostname to the REST API base URL it should
// use. Unknown hostnames fall back to local development.
func APIBaseURLFor(hostname string) string {
	switch environmentFor(hostname) {
	case "production":
		return productionAPIURL
	case "staging":
		return stagingAPIURL
	default:
		return localAPIURL
	}
}

// ChatURLFor maps a dashboard hostname to the chat namespace URL it should
// use. Unknown hostnames fall back to local development.
func ChatURLFor(hostname string) string {
	switch environmentFor(hostname) {
	case "production":
		return productionChatURL
	case "staging":
		return stagingChatURL
	default:
		return localChatURL
	}
}

// environmentFor classifies a hostname by substring, mirroring how the
// dashboard selects its backend.
func environmentFor(hostname string) string {
	h := strings.ToLower(hostname)
	if strings.Contains(h, "acgq.click") || strings.Contains(h, "amplifyapp.com") {
		return "production"
	}
	if strings.Contains(h, "staging") || strings.Contains(h, "dev") {
		return "staging"
	}
	return "local"
}
