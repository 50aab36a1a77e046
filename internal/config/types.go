package config

// Config is the root configuration structure for buildforge.
// Serialised to ~/.buildforge/config.json.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	Bus      BusConfig      `mapstructure:"bus"      json:"bus"`
	Agent    AgentConfig    `mapstructure:"agent"    json:"agent"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"  json:"crawler"`
	Watchdog WatchdogConfig `mapstructure:"watchdog" json:"watchdog"`
	Server   ServerConfig   `mapstructure:"server"   json:"server"`
	Peers    PeersConfig    `mapstructure:"peers"    json:"peers"`
}

// PeersConfig addresses the nudge RPC of the other worker processes when
// this one is run standalone (`buildforge crawler`, `buildforge agent`,
// ...) rather than via the combined `buildforge run`. Any address left
// empty means that nudge is skipped. The scheduler and agents do not poll,
// so a skipped nudge leaves their work waiting for the next nudge that
// does reach them.
type PeersConfig struct {
	// SchedulerAddr is where the crawler and agent POST /process_commits
	// after recording new commits or packages, e.g. "127.0.0.1:8091".
	SchedulerAddr string `mapstructure:"scheduler_addr" json:"scheduler_addr"`
	// AgentLinuxAddr / AgentWindowsAddr are where the scheduler and
	// watchdog POST /process_builds after creating or restarting builds.
	AgentLinuxAddr   string `mapstructure:"agent_linux_addr"   json:"agent_linux_addr"`
	AgentWindowsAddr string `mapstructure:"agent_windows_addr" json:"agent_windows_addr"`
}

// DatabaseConfig controls the storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "mysql".
	Driver string `mapstructure:"driver" json:"driver"`
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path"   json:"path"`
	// DSN is the MySQL data source name (used when Driver == "mysql").
	DSN string `mapstructure:"dsn"    json:"dsn"`
}

// BusConfig controls the Redis pub/sub connection used to publish build,
// run, and log-line change notifications.
type BusConfig struct {
	Addr     string `mapstructure:"addr"     json:"addr"`
	Password string `mapstructure:"password" json:"password"` // #nosec G101 -- config field, not a hardcoded credential
	DB       int    `mapstructure:"db"       json:"db"`
}

// AgentConfig controls this process's Agent worker. Platform and MTU may
// also be supplied via the AGENT_PLATFORM and MTU environment variables,
// which take precedence over the config file (see config.Load).
type AgentConfig struct {
	// Platform is "linux" or "windows"; selects which Profiles this Agent
	// leases builds for.
	Platform string `mapstructure:"platform" json:"platform"`
	// MTU is copied into builder.Params.MTU; the Builder does not apply it
	// to the build container's network, so it does not change the
	// container's MTU.
	MTU int `mapstructure:"mtu" json:"mtu"`
	// PollIntervalSeconds is loaded (default 60) but no worker reads it:
	// an Agent checks for leasable builds only when nudged.
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" json:"poll_interval_seconds"`
	// DockerHost overrides the Docker Engine API endpoint (defaults to the
	// environment, e.g. DOCKER_HOST, when empty).
	DockerHost string `mapstructure:"docker_host" json:"docker_host"`
}

// CrawlerConfig controls the repo-crawling worker.
type CrawlerConfig struct {
	// PeriodSeconds is the full-sweep interval (default 300, matching the
	// teacher's periodic-sweep cadence).
	PeriodSeconds int `mapstructure:"period_seconds" json:"period_seconds"`
	// DataDir holds the crawler's persistent repo clones.
	DataDir string `mapstructure:"data_dir" json:"data_dir"`
	// WebhookSecret is loaded but no command reads it, and no command
	// mounts crawler.WebhookHandler; targeted crawls arrive only through
	// the nudge RPC's POST /process_repo/{id}.
	WebhookSecret string `mapstructure:"webhook_secret" json:"webhook_secret"` // #nosec G101 -- config field, not a hardcoded credential
}

// WatchdogConfig controls the stall-detection worker.
type WatchdogConfig struct {
	// PeriodSeconds is the sweep interval (default 60).
	PeriodSeconds int `mapstructure:"period_seconds" json:"period_seconds"`
	// StallSeconds is how long a Run may go without an update before it is
	// considered stalled (default 60).
	StallSeconds int `mapstructure:"stall_seconds" json:"stall_seconds"`
}

// ServerConfig controls the nudge RPC HTTP listener shared by all workers
// running in this process.
type ServerConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:8090".
	Addr string `mapstructure:"addr" json:"addr"`
}
