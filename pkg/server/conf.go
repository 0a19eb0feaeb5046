package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds server configuration. Durations are stored as seconds so
// the YAML stays plain integers, matching the conventions of older MUD
// config files.
type Config struct {
	MudName  string `yaml:"mud_name"`
	Port     int    `yaml:"port"`
	HTTPPort int    `yaml:"http_port"` // WebSocket + metrics listener; 0 disables

	WorldFile string `yaml:"world_file"`
	DataFile  string `yaml:"data_file"`
	StartRoom string `yaml:"start_room"`

	IdleTimeout int `yaml:"idle_timeout"` // seconds; 0 disables
	AuthTimeout int `yaml:"auth_timeout"` // seconds for a login/signup flow

	LoginMaxAttempts int `yaml:"login_max_attempts"`
	LoginCooldown    int `yaml:"login_cooldown"` // seconds

	WelcomeText string `yaml:"welcome_text"`
	MOTD        string `yaml:"motd"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MudName:          "Emberfall",
		Port:             4201,
		HTTPPort:         0,
		DataFile:         "emberfall.db",
		StartRoom:        "square",
		IdleTimeout:      1800,
		AuthTimeout:      120,
		LoginMaxAttempts: 3,
		LoginCooldown:    30,
		WelcomeText:      WelcomeText,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// IdleTimeoutDur returns the idle timeout as a duration (0 = disabled).
func (c Config) IdleTimeoutDur() time.Duration {
	return time.Duration(c.IdleTimeout) * time.Second
}

// AuthTimeoutDur returns the authentication-flow timeout as a duration.
func (c Config) AuthTimeoutDur() time.Duration {
	return time.Duration(c.AuthTimeout) * time.Second
}

// LoginCooldownDur returns the failed-login cooldown as a duration.
func (c Config) LoginCooldownDur() time.Duration {
	return time.Duration(c.LoginCooldown) * time.Second
}

// WelcomeText is the default welcome screen shown to new connections.
const WelcomeText = `
  ______       _               __      _ _
 |  ____|     | |             / _|    | | |
 | |__   _ __ | |__   ___ _ _| |_ __ _| | |
 |  __| | '_ \| '_ \ / _ \ '__|  _/ _` + "`" + ` | | |
 | |____| | | | |_) |  __/ |  | || (_| | | |
 |______|_| |_|_.__/ \___|_|  |_| \__,_|_|_|

"signup" to create a new character.
"login" to connect to an existing character.
"who" to see who is online.
"quit" to disconnect.

`
