package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration
type Config struct {
	LogLevel   string `koanf:"log_level"`
	ListenAddr string `koanf:"listen_addr"`

	SendEmail   bool   `koanf:"send_email"`
	Sender      string `koanf:"sender"`
	MsgidDomain string `koanf:"msgid_domain"`

	PubsubURL  string `koanf:"pubsub_url"`
	PubsubUser string `koanf:"pubsub_user"`
	PubsubPass string `koanf:"pubsub_pass"`

	RepositoryPaths  []string `koanf:"repository_paths"`
	SchemeFile       string   `koanf:"scheme_file"`
	DefaultRecipient string   `koanf:"default_recipient"`

	Only   []string `koanf:"only"`
	Ignore []string `koanf:"ignore"`

	BotMarker     string `koanf:"bot_marker"`
	KnownBotsFile string `koanf:"known_bots_file"`

	QuietPeriodSeconds int `koanf:"quiet_period_seconds"`

	Templates map[string]string `koanf:"templates"`

	Jira struct {
		URL               string `koanf:"url"`
		CredentialsFile   string `koanf:"credentials_file"`
		DefaultOptions    string `koanf:"default_options"`
		RequestsPerMinute int    `koanf:"requests_per_minute"`
	} `koanf:"jira"`

	SMTP struct {
		Addr string `koanf:"addr"`
	} `koanf:"smtp"`
}

// QuietPeriod returns the collation quiet period as a duration.
func (c *Config) QuietPeriod() time.Duration {
	return time.Duration(c.QuietPeriodSeconds) * time.Second
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"log_level":                "info",
		"sender":                   "GitBox <git@apache.org>",
		"msgid_domain":             "gitbox.apache.org",
		"scheme_file":              "notifications.yaml",
		"bot_marker":               "[bot]",
		"quiet_period_seconds":     10,
		"jira.requests_per_minute": 30,
		"smtp.addr":                "localhost:25",
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		// Try to load from default locations
		defaultPaths := []string{"./gitnotify.toml", "$HOME/.config/gitnotify/gitnotify.toml", "/etc/gitnotify/gitnotify.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix GITNOTIFY_.
	// A double underscore separates sections: GITNOTIFY_JIRA__URL -> jira.url.
	k.Load(env.Provider("GITNOTIFY_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "GITNOTIFY_")), "__", ".", -1)
	}), nil)

	// Unmarshal into Config struct
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	// Create sample configuration
	sampleConfig := `# GitNotify Configuration

log_level = "info"

# Event intake. The pubsub stream is the usual source; listen_addr
# additionally opens a push endpoint for POSTed envelopes.
pubsub_url = "https://pubsub.example.org:2070/git"
# pubsub_user = "notifier"
# pubsub_pass = "secret"
# listen_addr = ":8024"

# Delivery. Messages are logged instead of sent until send_email is on.
send_email = false
sender = "GitBox <git@apache.org>"
msgid_domain = "gitbox.apache.org"

# Where bare repositories live on disk.
repository_paths = ["/x1/repos/asf/*.git", "/x1/repos/private/*.git"]
scheme_file = "notifications.yaml"
default_recipient = "dev@community.example.org"

# Process only these repositories, or skip some. Empty = everything.
# only = ["ponymail", "tomcat"]
# ignore = ["sandbox"]

# Actor filtering.
bot_marker = "[bot]"
# known_bots_file = "/etc/gitnotify/known_bots.txt"

# How long diff comments accumulate before a collated event is emitted.
quiet_period_seconds = 10

[templates]
open_pr = "templates/open_pr.txt"
close_pr = "templates/close_pr.txt"
merge_pr = "templates/merge_pr.txt"
comment_pr = "templates/comment_pr.txt"
comment_issue = "templates/comment_issue.txt"
diffcomment_collated_pr = "templates/diffcomment_collated_pr.txt"

[jira]
url = "https://issues.example.org/jira/rest/api/latest"
credentials_file = "/etc/gitnotify/jira.txt"
default_options = "comment link label"
requests_per_minute = 30

[smtp]
addr = "localhost:25"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.PubsubURL == "" && config.ListenAddr == "" {
		return fmt.Errorf("either pubsub_url or listen_addr is required")
	}

	if len(config.RepositoryPaths) == 0 {
		return fmt.Errorf("at least one repository path is required")
	}

	if config.SchemeFile == "" {
		return fmt.Errorf("scheme_file is required")
	}

	if config.DefaultRecipient == "" {
		return fmt.Errorf("default_recipient is required")
	}

	if config.QuietPeriodSeconds <= 0 {
		return fmt.Errorf("quiet_period_seconds must be positive")
	}

	if config.SendEmail && config.SMTP.Addr == "" {
		return fmt.Errorf("smtp addr is required when send_email is enabled")
	}

	return nil
}
