package config

import "time"

// Config is the full runtime configuration of the tracker.
type Config struct {
	Log LogConfig `json:"log" mapstructure:"log"`

	Browser struct {
		// Driver selects the CDP client: "rod" or "chromedp".
		Driver         string  `json:"driver" mapstructure:"driver"`
		Bin            string  `json:"bin" mapstructure:"bin"`
		UserDataDir    string  `json:"user_data_dir" mapstructure:"user_data_dir"`
		Headless       bool    `json:"headless" mapstructure:"headless"`
		NoSandbox      bool    `json:"no_sandbox" mapstructure:"no_sandbox"`
		Leakless       bool    `json:"leakless" mapstructure:"leakless"`
		UserAgent      string  `json:"user_agent" mapstructure:"user_agent"`
		AcceptLanguage string  `json:"accept_language" mapstructure:"accept_language"`
		Locale         string  `json:"locale" mapstructure:"locale"`
		Timezone       string  `json:"timezone" mapstructure:"timezone"`
		Latitude       float64 `json:"latitude" mapstructure:"latitude"`
		Longitude      float64 `json:"longitude" mapstructure:"longitude"`
		ViewportWidth  int     `json:"viewport_width" mapstructure:"viewport_width"`
		ViewportHeight int     `json:"viewport_height" mapstructure:"viewport_height"`
	} `json:"browser" mapstructure:"browser"`

	Pool struct {
		MaxPages    int           `json:"max_pages" mapstructure:"max_pages"`
		MaxLifetime time.Duration `json:"max_lifetime" mapstructure:"max_lifetime"`
		CookieFile  string        `json:"cookie_file" mapstructure:"cookie_file"`
	} `json:"pool" mapstructure:"pool"`

	Scraper struct {
		Proxy             string        `json:"proxy" mapstructure:"proxy"`
		MaxRetries        int           `json:"max_retries" mapstructure:"max_retries"`
		RetryDelay        time.Duration `json:"retry_delay" mapstructure:"retry_delay"`
		Backoff           string        `json:"backoff" mapstructure:"backoff"`
		ChallengeTimeout  time.Duration `json:"challenge_timeout" mapstructure:"challenge_timeout"`
		ChallengePoll     time.Duration `json:"challenge_poll" mapstructure:"challenge_poll"`
		NavigationTimeout time.Duration `json:"navigation_timeout" mapstructure:"navigation_timeout"`
		SelectorTimeout   time.Duration `json:"selector_timeout" mapstructure:"selector_timeout"`
		HumanDelayMin     time.Duration `json:"human_delay_min" mapstructure:"human_delay_min"`
		HumanDelayMax     time.Duration `json:"human_delay_max" mapstructure:"human_delay_max"`
		ChallengeMarkers  []string      `json:"challenge_markers" mapstructure:"challenge_markers"`
		BlockMarkers      []string      `json:"block_markers" mapstructure:"block_markers"`
		Bootstrap         bool          `json:"bootstrap" mapstructure:"bootstrap"`
		BootstrapWait     time.Duration `json:"bootstrap_wait" mapstructure:"bootstrap_wait"`
		// SiteTimezone is the zone the scraped site prints its timestamps in.
		SiteTimezone string `json:"site_timezone" mapstructure:"site_timezone"`
		HTTPTimeout  time.Duration `json:"http_timeout" mapstructure:"http_timeout"`
	} `json:"scraper" mapstructure:"scraper"`

	Jobs JobsConfig `json:"jobs" mapstructure:"jobs"`

	Store struct {
		// Driver is "sqlite" or "postgres".
		Driver   string `json:"driver" mapstructure:"driver"`
		DSN      string `json:"dsn" mapstructure:"dsn"`
		MaxConns int32  `json:"max_conns" mapstructure:"max_conns"`
	} `json:"store" mapstructure:"store"`

	Elasticsearch struct {
		Username string `json:"username" mapstructure:"username"`
		Password string `json:"password" mapstructure:"password"`
		Address  string `json:"address" mapstructure:"address"`
		Index    string `json:"index" mapstructure:"index"`
	} `json:"elasticsearch" mapstructure:"elasticsearch"`

	Discord struct {
		Token string `json:"token" mapstructure:"token"`
	} `json:"discord" mapstructure:"discord"`

	Server struct {
		Addr string `json:"addr" mapstructure:"addr"`
	} `json:"server" mapstructure:"server"`

	// Targets seeds the servers, worlds and guilds to watch.
	Targets []Target `json:"targets" mapstructure:"targets"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// JobsConfig holds scheduling and change-detection knobs.
type JobsConfig struct {
	DeathInterval      time.Duration `json:"death_interval" mapstructure:"death_interval"`
	LevelUpInterval    time.Duration `json:"level_up_interval" mapstructure:"level_up_interval"`
	NotifyInterval     time.Duration `json:"notify_interval" mapstructure:"notify_interval"`
	LevelUpStartDelay  time.Duration `json:"level_up_start_delay" mapstructure:"level_up_start_delay"`
	JitterMax          time.Duration `json:"jitter_max" mapstructure:"jitter_max"`
	BlockCooldown      time.Duration `json:"block_cooldown" mapstructure:"block_cooldown"`
	DuplicateThreshold int           `json:"duplicate_threshold" mapstructure:"duplicate_threshold"`
	NotifyLimit        int           `json:"notify_limit" mapstructure:"notify_limit"`
	NotifyBatchSize    int           `json:"notify_batch_size" mapstructure:"notify_batch_size"`
	NotifyBatchDelay   time.Duration `json:"notify_batch_delay" mapstructure:"notify_batch_delay"`
	LevelUpTimezone    string        `json:"level_up_timezone" mapstructure:"level_up_timezone"`
	BotLevelThreshold  int           `json:"bot_level_threshold" mapstructure:"bot_level_threshold"`
	UpdateChunkSize    int           `json:"update_chunk_size" mapstructure:"update_chunk_size"`
	UpdateParallelism  int           `json:"update_parallelism" mapstructure:"update_parallelism"`
}

// Target is one watched guild together with the server and world it lives on.
type Target struct {
	Server          string `json:"server" mapstructure:"server"`
	ServerType      string `json:"server_type" mapstructure:"server_type"`
	BaseURL         string `json:"base_url" mapstructure:"base_url"`
	World           string `json:"world" mapstructure:"world"`
	WorldIdentifier string `json:"world_identifier" mapstructure:"world_identifier"`
	Guild           string `json:"guild" mapstructure:"guild"`
	TenantID        string `json:"tenant_id" mapstructure:"tenant_id"`
	ChatID          string `json:"chat_id" mapstructure:"chat_id"`
	NotifyDeaths    bool   `json:"notify_deaths" mapstructure:"notify_deaths"`
	NotifyLevelUps  bool   `json:"notify_level_ups" mapstructure:"notify_level_ups"`
	MinLevelNotify  int    `json:"min_level_notify" mapstructure:"min_level_notify"`
}
