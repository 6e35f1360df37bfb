package app

import (
	"github.com/yungbote/neurobridge-content/internal/data/graph"
	"github.com/yungbote/neurobridge-content/internal/data/repos"
	"github.com/yungbote/neurobridge-content/internal/ingestion/adapters"
	"github.com/yungbote/neurobridge-content/internal/ingestion/transcribe"
	"github.com/yungbote/neurobridge-content/internal/jobs/pipeline/content_ingest"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
	"github.com/yungbote/neurobridge-content/internal/services"
)

type Services struct {
	Adapters    *adapters.Set
	Transcriber transcribe.Service
	LLM         services.LLMGateway
	Index       services.VectorIndex
	Analysis    services.AnalysisService
	Quiz        services.QuizService
	QA          services.QAService
	Notifier    services.JobNotifier
	Content     services.ContentLearningService
	Pipeline    *content_ingest.Pipeline
}

func wireServices(log *logger.Logger, clients *Clients, reposet repos.Set) Services {
	log.Info("Wiring services...")

	adapterCfg := adapters.ConfigFromEnv()
	var probe adapters.VideoProbe
	if clients.Media != nil {
		probe = clients.Media
	}
	adapterSet := adapters.NewSet(
		adapters.NewBlogAdapter(log, clients.Gate, clients.Fetcher, adapterCfg),
		adapters.NewVideoAdapter(log, clients.Gate, clients.Fetcher, probe, adapterCfg),
		adapters.NewPodcastAdapter(log, clients.Gate, clients.Fetcher, adapterCfg),
	)

	var transcriber transcribe.Service
	if clients.Speech != nil {
		transcriber = transcribe.New(log, clients.Fetcher, clients.Speech, clients.Stager, transcribe.ConfigFromEnv())
	}

	// Untyped nils keep the gateway's provider checks honest.
	var fallback services.FallbackModel
	if clients.Fallback != nil {
		fallback = clients.Fallback
	}
	var embedder services.Embedder
	if clients.OpenAI != nil {
		embedder = clients.OpenAI
	}
	llm := services.NewLLMGateway(log, clients.OpenAI, fallback)

	index := services.NewVectorIndex(log, clients.Vectors, embedder, services.VectorIndexConfigFromEnv())
	mirror := graph.NewConceptMirror(clients.Neo4j, log)
	analysis := services.NewAnalysisService(log, llm, reposet.Learning, mirror, services.AnalysisConfigFromEnv())
	quiz := services.NewQuizService(log, llm, reposet.Learning, services.QuizConfigFromEnv())
	qa := services.NewQAService(log, index, reposet.Learning, llm, services.QAConfigFromEnv())
	notifier := services.NewJobNotifier(clients.Bus, log)

	content := services.NewContentLearningService(
		log,
		services.FacadeConfigFromEnv(),
		reposet.Catalog,
		reposet.Jobs,
		reposet.Learning,
		qa,
		quiz,
		notifier,
	)

	pipeline := content_ingest.New(
		log,
		reposet.Catalog,
		reposet.Learning,
		adapterSet,
		transcriber,
		index,
		analysis,
		quiz,
		content_ingest.ConfigFromEnv(),
	)

	return Services{
		Adapters:    adapterSet,
		Transcriber: transcriber,
		LLM:         llm,
		Index:       index,
		Analysis:    analysis,
		Quiz:        quiz,
		QA:          qa,
		Notifier:    notifier,
		Content:     content,
		Pipeline:    pipeline,
	}
}
