package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/adrg/xdg"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	envPrefix = "TRACKER"
	appDir    = "guildtracker"
)

// Default challenge and block indicators. Both lists can be replaced
// through scraper.challenge_markers and scraper.block_markers.
var (
	DefaultChallengeMarkers = []string{
		"cf-browser-verification",
		"cf_chl_opt",
		"challenge-running",
		"Just a moment...",
		"Verify you are human",
		"Checking your browser",
		"cf-turnstile",
	}
	DefaultBlockMarkers = []string{
		"Sorry, you have been blocked",
		"You have been blocked",
		"cf-error-details",
		"Error 1020",
		"Access denied",
	}
)

// ParseConfig builds a Config from an embedded JSON document, then applies
// environment overrides and defaults.
func ParseConfig(byteConfig []byte) (*Config, error) {
	v := newViper()
	v.SetConfigType("json")
	if len(byteConfig) > 0 {
		if err := v.ReadConfig(bytes.NewReader(byteConfig)); err != nil {
			return nil, eris.Wrap(err, "config: read embedded")
		}
	}
	return decode(v)
}

// Load reads configuration from path (json or yaml), falling back to
// ./config.* when path is empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("browser.driver", "rod")
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.leakless", false)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("browser.accept_language", "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7")
	v.SetDefault("browser.locale", "pt-BR")
	v.SetDefault("browser.timezone", "America/Sao_Paulo")
	v.SetDefault("browser.latitude", -23.5505)
	v.SetDefault("browser.longitude", -46.6333)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)

	v.SetDefault("pool.max_pages", 3)
	v.SetDefault("pool.max_lifetime", 24*time.Hour)
	v.SetDefault("pool.cookie_file", "")

	v.SetDefault("scraper.proxy", "")
	v.SetDefault("scraper.max_retries", 5)
	v.SetDefault("scraper.retry_delay", 10*time.Second)
	v.SetDefault("scraper.backoff", "exponential")
	v.SetDefault("scraper.challenge_timeout", 45*time.Second)
	v.SetDefault("scraper.challenge_poll", 2*time.Second)
	v.SetDefault("scraper.navigation_timeout", 60*time.Second)
	v.SetDefault("scraper.selector_timeout", 30*time.Second)
	v.SetDefault("scraper.human_delay_min", 300*time.Millisecond)
	v.SetDefault("scraper.human_delay_max", 800*time.Millisecond)
	v.SetDefault("scraper.challenge_markers", DefaultChallengeMarkers)
	v.SetDefault("scraper.block_markers", DefaultBlockMarkers)
	v.SetDefault("scraper.bootstrap", false)
	v.SetDefault("scraper.bootstrap_wait", 2*time.Minute)
	v.SetDefault("scraper.site_timezone", "America/Sao_Paulo")
	v.SetDefault("scraper.http_timeout", 30*time.Second)

	v.SetDefault("jobs.death_interval", 5*time.Minute)
	v.SetDefault("jobs.level_up_interval", 9*time.Minute)
	v.SetDefault("jobs.notify_interval", time.Minute)
	v.SetDefault("jobs.level_up_start_delay", 30*time.Second)
	v.SetDefault("jobs.jitter_max", 30*time.Second)
	v.SetDefault("jobs.block_cooldown", 30*time.Minute)
	v.SetDefault("jobs.duplicate_threshold", 2)
	v.SetDefault("jobs.notify_limit", 6)
	v.SetDefault("jobs.notify_batch_size", 10)
	v.SetDefault("jobs.notify_batch_delay", time.Second)
	v.SetDefault("jobs.level_up_timezone", "America/Sao_Paulo")
	v.SetDefault("jobs.bot_level_threshold", 4)
	v.SetDefault("jobs.update_chunk_size", 10)
	v.SetDefault("jobs.update_parallelism", 3)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_conns", 5)

	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.address", "")
	v.SetDefault("elasticsearch.index", "guild_deaths")

	v.SetDefault("discord.token", "")
	v.SetDefault("server.addr", "")

	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolvePaths() error {
	if c.Browser.UserDataDir != "" {
		absPath, err := filepath.Abs(c.Browser.UserDataDir)
		if err != nil {
			return eris.Wrap(err, "config: resolve user data dir")
		}
		c.Browser.UserDataDir = absPath
	}
	if c.Pool.CookieFile == "" {
		path, err := xdg.StateFile(filepath.Join(appDir, "rubinot-state.json"))
		if err != nil {
			return eris.Wrap(err, "config: resolve cookie file")
		}
		c.Pool.CookieFile = path
	}
	if c.Store.Driver == "sqlite" && c.Store.DSN == "" {
		path, err := xdg.DataFile(filepath.Join(appDir, "tracker.db"))
		if err != nil {
			return eris.Wrap(err, "config: resolve sqlite path")
		}
		c.Store.DSN = path
	}
	return nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch c.Browser.Driver {
	case "rod", "chromedp":
	default:
		return eris.Errorf("config: unknown browser driver %q", c.Browser.Driver)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	switch c.Scraper.Backoff {
	case "exponential", "linear":
	default:
		return eris.Errorf("config: unknown backoff policy %q", c.Scraper.Backoff)
	}
	if c.Scraper.HumanDelayMax < c.Scraper.HumanDelayMin {
		return eris.New("config: scraper.human_delay_max is below human_delay_min")
	}
	if c.Pool.MaxPages <= 0 {
		return eris.New("config: pool.max_pages must be positive")
	}
	if c.Jobs.DuplicateThreshold <= 0 {
		return eris.New("config: jobs.duplicate_threshold must be positive")
	}
	if _, err := time.LoadLocation(c.Jobs.LevelUpTimezone); err != nil {
		return eris.Wrap(err, "config: jobs.level_up_timezone")
	}
	if _, err := time.LoadLocation(c.Scraper.SiteTimezone); err != nil {
		return eris.Wrap(err, "config: scraper.site_timezone")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
