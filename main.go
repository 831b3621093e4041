package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	contractx "github.com/revpilot-ai/revpilot/agent/contract"
	healthx "github.com/revpilot-ai/revpilot/agent/health"
	llmx "github.com/revpilot-ai/revpilot/agent/llm"
	promptx "github.com/revpilot-ai/revpilot/agent/prompt"
	reactx "github.com/revpilot-ai/revpilot/agent/react"
	statex "github.com/revpilot-ai/revpilot/agent/state"
	thinkerx "github.com/revpilot-ai/revpilot/agent/thinker"
	toolx "github.com/revpilot-ai/revpilot/agent/tool"
	"github.com/revpilot-ai/revpilot/crmsync"
	configx "github.com/revpilot-ai/revpilot/pkg/config"
	"github.com/revpilot-ai/revpilot/pkg/hubspot"
	_ "github.com/revpilot-ai/revpilot/pkg/logger/autoload"
	openaix "github.com/revpilot-ai/revpilot/pkg/openaix"
	qstashx "github.com/revpilot-ai/revpilot/pkg/qstash"
	serverx "github.com/revpilot-ai/revpilot/server"
	storex "github.com/revpilot-ai/revpilot/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	llmCfg := configx.MustNew[llmx.Config]("OPENAI")
	if err := llmCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid llm config")
	}

	hubspotClient := hubspot.MustNew(*configx.MustNew[hubspot.Config]("HUBSPOT"))

	db := storex.Connect(*configx.MustNew[storex.Config]("DB"))
	defer db.Close()
	if err := storex.InitSchema(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("schema init failed")
	}
	dealRepo := storex.NewDealRepository(db)
	conversationRepo := storex.NewConversationRepository(db)
	documentRepo := storex.NewDocumentRepository(db)

	runStore, err := statex.NewUpstashRedisStore(*configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS"))
	if err != nil {
		log.Fatal().Err(err).Msg("run store init failed")
	}

	registry := toolx.NewRegistry()
	for _, t := range []toolx.Tool{
		toolx.NewDealsAnalyzeTool(dealRepo),
		toolx.NewCRMLookupTool(hubspotClient),
		toolx.NewDocumentsSearchTool(documentRepo),
	} {
		if err := registry.Register(t); err != nil {
			log.Fatal().Err(err).Msg("tool registration failed")
		}
	}

	prompts := promptx.LoadPromptSet()

	thinkerCfg := llmCfg.OpenAIFor(contractx.AgentRoleThinker)
	thinkerModel, err := thinkerCfg.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("thinker model init failed")
	}
	thinker, err := thinkerx.New(ctx, thinkerModel, prompts.Think, registry.Infos())
	if err != nil {
		log.Fatal().Err(err).Msg("thinker init failed")
	}

	summarizerCfg := llmCfg.OpenAIFor(contractx.AgentRoleSummarizer)
	summarizerModel, err := summarizerCfg.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("summarizer model init failed")
	}
	summarizer, err := thinkerx.NewSummarizer(ctx, summarizerModel, prompts.Summarize)
	if err != nil {
		log.Fatal().Err(err).Msg("summarizer init failed")
	}

	reactor, err := reactx.New(runStore, thinker, registry, summarizer, conversationRepo)
	if err != nil {
		log.Fatal().Err(err).Msg("reactor init failed")
	}

	recommenderCfg := llmCfg.OpenAIFor(contractx.AgentRoleRecommender)
	engine, err := healthx.NewRecommendationEngine(openaix.NewClient(recommenderCfg), recommenderCfg.Model, prompts.Recommend)
	if err != nil {
		log.Fatal().Err(err).Msg("recommendation engine init failed")
	}
	analyzer := healthx.NewAnalyzer(hubspotClient, dealRepo, engine)

	syncCfg := configx.MustNew[crmsync.Config]("SYNC")
	var scheduler crmsync.Scheduler
	if syncCfg.ResyncURL != "" {
		scheduler = qstashx.MustNew(*configx.MustNew[qstashx.Config]("QSTASH"))
	}
	syncService := crmsync.NewService(hubspotClient, dealRepo, scheduler, *syncCfg)

	api := serverx.NewAPI(reactor, syncService, analyzer, hubspotClient)
	srv := serverx.New(*configx.MustNew[serverx.Config]("SERVER"), api)
	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
