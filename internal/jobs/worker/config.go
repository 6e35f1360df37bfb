package worker

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-content/internal/platform/envutil"
)

type Config struct {
	WorkerID        string
	PollInterval    time.Duration
	MaxConcurrent   int
	MaxRetries      int
	Backoff         []time.Duration
	IngestPermits   int
	AnalysisPermits int
	ErrorDetailMax  int
	ReleaseTimeout  time.Duration
}

var defaultBackoff = []time.Duration{2 * time.Second, 5 * time.Second, 15 * time.Second}

func ConfigFromEnv() Config {
	return Config{
		WorkerID:        envutil.String("WORKER_ID", ""),
		PollInterval:    envutil.Millis("WORKER_POLL_INTERVAL_MS", time.Second),
		MaxConcurrent:   envutil.Int("WORKER_MAX_CONCURRENT_JOBS", 4),
		MaxRetries:      envutil.Int("WORKER_MAX_RETRIES", 3),
		Backoff:         envutil.SecondsList("WORKER_BACKOFF_SECONDS", defaultBackoff),
		IngestPermits:   envutil.Int("WORKER_INGEST_PERMITS", 2),
		AnalysisPermits: envutil.Int("WORKER_ANALYSIS_PERMITS", 2),
		ErrorDetailMax:  envutil.Int("WORKER_ERROR_DETAIL_MAX", 4000),
		ReleaseTimeout:  envutil.Seconds("WORKER_RELEASE_TIMEOUT_SECONDS", 10*time.Second),
	}
}

func (c *Config) defaults() {
	if c.WorkerID == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "worker"
		}
		c.WorkerID = fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 1
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if len(c.Backoff) == 0 {
		c.Backoff = defaultBackoff
	}
	if c.IngestPermits <= 0 {
		c.IngestPermits = 1
	}
	if c.AnalysisPermits <= 0 {
		c.AnalysisPermits = 1
	}
	if c.ErrorDetailMax <= 0 {
		c.ErrorDetailMax = 4000
	}
	if c.ReleaseTimeout <= 0 {
		c.ReleaseTimeout = 10 * time.Second
	}
}

// backoff returns the wait after the given 1-based attempt; the last entry repeats.
func (c Config) backoff(attempt int) time.Duration {
	i := attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(c.Backoff) {
		i = len(c.Backoff) - 1
	}
	return c.Backoff[i]
}
