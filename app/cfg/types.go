package cfg

import "time"

type Cfg struct {
	// Database configuration
	DBPath string

	// Pipeline configuration
	SourcesFile    string
	PlatformHost   string
	RequestDelay   time.Duration
	MaxRetries     int
	PageCap        int
	HiddenCooldown time.Duration
	StaleAfter     time.Duration
	MinVotes       int
	EnrichBudget   int

	// Serve mode configuration
	Port              string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Application metadata
	UserAgent string
	Debug     bool
	Version   string
}
