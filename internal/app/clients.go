package app

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/neurobridge-content/internal/platform/envutil"
	"github.com/yungbote/neurobridge-content/internal/platform/fallbackllm"
	"github.com/yungbote/neurobridge-content/internal/platform/fetch"
	"github.com/yungbote/neurobridge-content/internal/platform/gcp"
	"github.com/yungbote/neurobridge-content/internal/platform/localmedia"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
	"github.com/yungbote/neurobridge-content/internal/platform/neo4jdb"
	"github.com/yungbote/neurobridge-content/internal/platform/netguard"
	"github.com/yungbote/neurobridge-content/internal/platform/openai"
	"github.com/yungbote/neurobridge-content/internal/platform/qdrant"
	"github.com/yungbote/neurobridge-content/internal/realtime/bus"
)

// Clients holds every external dependency. Optional ones are nil when unconfigured; the
// services built on top degrade instead of failing.
type Clients struct {
	Gate     *netguard.Gate
	Fetcher  *fetch.Fetcher
	Media    localmedia.Tools
	OpenAI   openai.Client
	Fallback *fallbackllm.Model
	Vectors  qdrant.VectorStore
	Speech   gcp.Speech
	Stager   gcp.AudioStager
	Neo4j    *neo4jdb.Client
	Bus      bus.Bus
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (*Clients, error) {
	log.Info("Wiring clients...")
	c := &Clients{}

	c.Gate = netguard.New(nil)
	fetcher, err := fetch.New(log, c.Gate, cfg.Fetch)
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}
	c.Fetcher = fetcher
	c.Media = localmedia.New(log)

	// Primary LLM
	if oa, err := openai.NewClient(log); err != nil {
		log.Warn("OpenAI client unavailable", "error", err)
	} else {
		c.OpenAI = oa
	}

	// Fallback LLM
	if cfg.LLMFallbackEnabled {
		fb, err := fallbackllm.New(fallbackllm.ConfigFromEnv())
		if err != nil {
			log.Warn("Fallback LLM unavailable", "error", err)
		} else {
			c.Fallback = fb
		}
	}

	// Vector store
	vs, err := resolveVectorStore(log)
	if err != nil {
		return nil, err
	}
	c.Vectors = vs

	// Transcription
	if envutil.Bool("TRANSCRIBE_ENABLED", true) {
		sp, err := gcp.NewSpeech(ctx, log)
		if err != nil {
			log.Warn("Speech client unavailable; podcasts and captionless videos keep their descriptions", "error", err)
		} else {
			c.Speech = sp
			stager, err := resolveAudioStager(ctx, log, cfg)
			if err != nil {
				c.Close()
				return nil, err
			}
			c.Stager = stager
		}
	}

	// Concept graph mirror
	n4j, err := neo4jdb.NewFromEnv(ctx, log)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init neo4j: %w", err)
	}
	c.Neo4j = n4j

	// Job events
	b, err := bus.NewFromEnv(log)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init job bus: %w", err)
	}
	c.Bus = b

	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Neo4j != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = c.Neo4j.Close(ctx)
		cancel()
	}
	if c.Stager != nil {
		_ = c.Stager.Close()
	}
	if c.Speech != nil {
		_ = c.Speech.Close()
	}
}
