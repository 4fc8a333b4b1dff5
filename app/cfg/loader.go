package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./creatorank.db" description:"Path to the sqlite database file"`

	// Pipeline configuration
	SourcesFile    string `long:"sources-file" env:"SOURCES_FILE" default:"" description:"YAML file listing discovery feeds and browse pages (built-in defaults when empty)"`
	PlatformHost   string `long:"platform-host" env:"PLATFORM_HOST" default:"itch.io" description:"Platform apex host; creator handles are subdomains of it"`
	RequestDelay   string `long:"request-delay" env:"REQUEST_DELAY" default:"2s" description:"Minimum delay between requests to the same host"`
	MaxRetries     int    `long:"max-retries" env:"MAX_RETRIES" default:"3" description:"Retry attempts for transient HTTP failures"`
	PageCap        int    `long:"page-cap" env:"PAGE_CAP" default:"50" description:"Hard ceiling on pages fetched per creator crawl"`
	HiddenCooldown string `long:"hidden-cooldown" env:"HIDDEN_COOLDOWN" default:"168h" description:"Re-check cooldown for items whose ratings are hidden"`
	StaleAfter     string `long:"stale-after" env:"STALE_AFTER" default:"168h" description:"Age after which an enriched item becomes stale"`
	MinVotes       int    `long:"min-votes" env:"MIN_VOTES" default:"10" description:"Minimum-votes prior for Bayesian scoring"`
	EnrichBudget   int    `long:"enrich-budget" env:"ENRICH_BUDGET" default:"200" description:"Maximum items enriched per run"`

	// Serve mode configuration
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"300" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for management endpoints (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"creatorank/1.0 (polite ranking crawler)" description:"User agent string for HTTP requests"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load parses flags and environment variables, returning the remaining
// positional arguments (the command and its operands).
func Load() (*Cfg, []string, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)
	parser.Usage = "[OPTIONS] COMMAND\n\nCommands: migrate, discover, backfill, enrich, rescore, run, serve"

	args, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil, nil
			}
		}
		return nil, nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	requestDelay, err := time.ParseDuration(raw.RequestDelay)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid request delay %q: %w", raw.RequestDelay, err)
	}
	hiddenCooldown, err := time.ParseDuration(raw.HiddenCooldown)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid hidden cooldown %q: %w", raw.HiddenCooldown, err)
	}
	staleAfter, err := time.ParseDuration(raw.StaleAfter)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid stale-after %q: %w", raw.StaleAfter, err)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		SourcesFile:       raw.SourcesFile,
		PlatformHost:      raw.PlatformHost,
		RequestDelay:      requestDelay,
		MaxRetries:        raw.MaxRetries,
		PageCap:           raw.PageCap,
		HiddenCooldown:    hiddenCooldown,
		StaleAfter:        staleAfter,
		MinVotes:          raw.MinVotes,
		EnrichBudget:      raw.EnrichBudget,
		Port:              raw.Port,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		APIAccessKey:      raw.APIAccessKey,
		UserAgent:         raw.UserAgent,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	globalCfg = cfg

	return cfg, args, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// Set replaces the global configuration. Intended for tests.
func Set(c *Cfg) {
	globalCfg = c
}
