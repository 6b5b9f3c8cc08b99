// Package config loads localdj's YAML configuration via viper,
// mirroring kefw2's initConfig pattern: config-file-or-flag, then
// environment variable overrides with an app-specific prefix.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Search holds library-indexing and query tunables.
type Search struct {
	MaxResults         int     `mapstructure:"max_results"`
	RefreshIntervalSec float64 `mapstructure:"refresh_interval_sec"`
	IndexFile          string  `mapstructure:"index_file"`
	WatchFilesystem    bool    `mapstructure:"watch_filesystem"`
}

// Commands holds the keyword sets and reply-interrupt timings.
type Commands struct {
	PlayKeywords               []string `mapstructure:"play_keywords"`
	StopKeywords               []string `mapstructure:"stop_keywords"`
	RefreshKeywords            []string `mapstructure:"refresh_keywords"`
	RandomPlayKeywords         []string `mapstructure:"random_play_keywords"`
	InterruptWhitelistKeywords []string `mapstructure:"interrupt_whitelist_keywords"`
	ReplyInterruptTimeoutSec   float64  `mapstructure:"reply_interrupt_timeout_sec"`
	ReplyInterruptCooldownSec  float64  `mapstructure:"reply_interrupt_cooldown_sec"`
	AutoResumeDelaySec         float64  `mapstructure:"auto_resume_delay_sec"`
}

// HTTP holds the file gateway's listen/advertise settings.
type HTTP struct {
	Port     int    `mapstructure:"port"`
	BaseURL  string `mapstructure:"base_url"`
	DeviceIP string `mapstructure:"device_ip"`
}

// Logging holds the logrus level name.
type Logging struct {
	Level string `mapstructure:"level"`
}

// Config is the fully-unmarshaled root of localdj's YAML config file,
// covering every key in spec.md §6 plus SPEC_FULL.md's
// search.watch_filesystem addition.
type Config struct {
	MusicDirs                []string `mapstructure:"music_dirs"`
	SupportedAudioExtensions []string `mapstructure:"supported_audio_extensions"`
	TimerBufferSec           float64  `mapstructure:"timer_buffer_sec"`

	Search   Search   `mapstructure:"search"`
	Commands Commands `mapstructure:"commands"`
	HTTP     HTTP     `mapstructure:"http"`
	Logging  Logging  `mapstructure:"logging"`
}

func setDefaults() {
	viper.SetDefault("timer_buffer_sec", 1.5)
	viper.SetDefault("search.max_results", 20)
	viper.SetDefault("search.refresh_interval_sec", 300)
	viper.SetDefault("search.index_file", ".cache/localdj_index.json")
	viper.SetDefault("search.watch_filesystem", true)
	viper.SetDefault("commands.reply_interrupt_timeout_sec", 20)
	viper.SetDefault("commands.reply_interrupt_cooldown_sec", 1.2)
	viper.SetDefault("commands.auto_resume_delay_sec", 1.8)
	viper.SetDefault("http.port", 18080)
	viper.SetDefault("logging.level", "info")
}

// Load reads configFile (or, if empty, the default
// ~/.config/localdj/localdj.yaml), applies LOCALDJ_*-prefixed
// environment overrides, and unmarshals the result. A missing config
// file is not fatal — defaults apply and a warning is logged, matching
// kefw2's initConfig.
func Load(configFile string) (*Config, error) {
	setDefaults()

	viper.SetConfigType("yaml")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		cfgDir := filepath.Join(home, ".config", "localdj")
		viper.SetConfigName("localdj")
		viper.AddConfigPath(cfgDir)
		viper.SetConfigFile(filepath.Join(cfgDir, "localdj.yaml"))
	}

	viper.SetEnvPrefix("localdj")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.WithError(err).Warn("no config file loaded; using defaults and environment overrides")
	} else {
		log.WithField("file", viper.ConfigFileUsed()).Info("loaded configuration")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// TimerBuffer returns TimerBufferSec as a time.Duration.
func (c *Config) TimerBuffer() time.Duration {
	return time.Duration(c.TimerBufferSec * float64(time.Second))
}

// RefreshInterval returns Search.RefreshIntervalSec as a
// time.Duration; zero disables periodic refresh (spec.md §6).
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Search.RefreshIntervalSec * float64(time.Second))
}

// ReplyInterruptTimeout returns Commands.ReplyInterruptTimeoutSec as a time.Duration.
func (c *Config) ReplyInterruptTimeout() time.Duration {
	return time.Duration(c.Commands.ReplyInterruptTimeoutSec * float64(time.Second))
}

// ReplyInterruptCooldown returns Commands.ReplyInterruptCooldownSec as a time.Duration.
func (c *Config) ReplyInterruptCooldown() time.Duration {
	return time.Duration(c.Commands.ReplyInterruptCooldownSec * float64(time.Second))
}

// AutoResumeDelay returns Commands.AutoResumeDelaySec as a time.Duration.
func (c *Config) AutoResumeDelay() time.Duration {
	return time.Duration(c.Commands.AutoResumeDelaySec * float64(time.Second))
}

// ResolveBaseURL implements spec.md §6's http.base_url resolution
// order: an explicit base_url wins; otherwise device_ip + port;
// otherwise a UDP-connect-derived local IP + port, grounded on
// music_service.guess_local_ip.
func (c *Config) ResolveBaseURL() string {
	if c.HTTP.BaseURL != "" {
		return strings.TrimRight(c.HTTP.BaseURL, "/")
	}
	port := c.HTTP.Port
	if port == 0 {
		port = 18080
	}
	if c.HTTP.DeviceIP != "" {
		return fmt.Sprintf("http://%s:%d", c.HTTP.DeviceIP, port)
	}
	return fmt.Sprintf("http://%s:%d", guessLocalIP(), port)
}

// guessLocalIP opens a UDP "connection" (no packets are sent) to a
// public address purely to let the kernel pick an outbound-facing
// local address, then discards the socket.
func guessLocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}
