package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avdivo/dev-organizer/internal/config"
	dbRedis "github.com/avdivo/dev-organizer/internal/db/redis"
	"github.com/avdivo/dev-organizer/internal/domain"
	"github.com/avdivo/dev-organizer/internal/domain/search/aggregate"
	domvocab "github.com/avdivo/dev-organizer/internal/domain/vocabulary"
	"github.com/avdivo/dev-organizer/internal/metrics"
	"github.com/avdivo/dev-organizer/internal/prompt"
	budgetrepo "github.com/avdivo/dev-organizer/internal/repository/budget"
	"github.com/avdivo/dev-organizer/internal/repository/embcache"
	listsrepo "github.com/avdivo/dev-organizer/internal/repository/lists"
	recordrepo "github.com/avdivo/dev-organizer/internal/repository/record"
	vocabrepo "github.com/avdivo/dev-organizer/internal/repository/vocabulary"
	openaiTransport "github.com/avdivo/dev-organizer/internal/transport/openai"
	assistantuc "github.com/avdivo/dev-organizer/internal/usecase/assistant"
	budgetuc "github.com/avdivo/dev-organizer/internal/usecase/budget"
	healthuc "github.com/avdivo/dev-organizer/internal/usecase/health"
	listuc "github.com/avdivo/dev-organizer/internal/usecase/list"
	noteuc "github.com/avdivo/dev-organizer/internal/usecase/note"
	"github.com/avdivo/dev-organizer/internal/usecase/query"
	reminderuc "github.com/avdivo/dev-organizer/internal/usecase/reminder"
	"github.com/avdivo/dev-organizer/internal/usecase/resolve"
)

// resolutionTTL bounds how long a unit text keeps its resolved field.
const resolutionTTL = time.Hour

// app is the composition root shared by serve and chat.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *dbRedis.Store
	lists     *listsrepo.Store
	listSvc   *listuc.Service
	planner   *query.Planner
	assistant *assistantuc.Service
	scheduler *reminderuc.Scheduler
	health    *healthuc.Service
	budget    *budgetuc.Tracker // nil without limits
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(env)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// buildApp connects the stores and wires every use case. notifier receives fired reminders.
func buildApp(ctx context.Context, cfg config.Config, notifier reminderuc.Notifier, logger *zap.Logger) (*app, error) {
	metrics.Register()
	loc := cfg.Planner.Location()

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("create record store: %w", err)
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("record store not ready: %w", err)
	}
	logger.Info("Connected to record store", zap.Strings("addrs", cfg.Database.Addrs))

	lists, err := listsrepo.Open(ctx, cfg.Lists.Path)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open list store: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: store, lists: lists}
	if err := a.wire(ctx, loc, notifier); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, loc *time.Location, notifier reminderuc.Notifier) error {
	cfg, logger := a.cfg, a.logger

	if cfg.Budget.Enabled() {
		a.budget = budgetuc.NewTracker(budgetuc.Limits{
			Provider:  "openai",
			KeyPrefix: cfg.Storage.KeyPrefix,
			Daily:     cfg.Budget.DailyTokenLimit,
			Monthly:   cfg.Budget.MonthlyTokenLimit,
			Action:    budgetuc.ParseAction(cfg.Budget.Action),
		}, logger).WithStore(ctx, budgetrepo.New(a.store, 48*time.Hour, 62*24*time.Hour))
	}

	baseEmbedder := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	docEmbedder := a.buildEmbedder(baseEmbedder, cfg.Embedding.DocumentInstruction)
	queryEmbedder := a.buildEmbedder(baseEmbedder, cfg.Embedding.QueryInstruction)

	generator := openaiTransport.NewGenerator(&openaiTransport.Config{
		APIKey:  cfg.Generation.APIKey,
		BaseURL: cfg.Generation.BaseURL,
		Model:   cfg.Generation.Model,
		Logger:  logger,
	}, cfg.Generation.Temperature)

	prompts, err := prompt.Default(loc)
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	fields := domvocab.Default()
	records := recordrepo.New(a.store, recordrepo.Options{
		KeyPrefix:     cfg.Storage.KeyPrefix,
		Dimensions:    cfg.Embedding.Dimensions,
		HNSWM:         cfg.Index.HNSWM,
		HNSWEF:        cfg.Index.HNSWEFConstruct,
		Quantities:    domvocab.IDs(fields),
		PageSize:      cfg.Planner.PageSize,
		DocEmbedder:   docEmbedder,
		QueryEmbedder: queryEmbedder,
	}, logger)
	if err := records.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure record index: %w", err)
	}

	vocab := vocabrepo.New(a.store, docEmbedder, queryEmbedder, cfg.Storage.KeyPrefix, logger)
	if err := vocab.Seed(ctx, fields); err != nil {
		return fmt.Errorf("seed vocabulary: %w", err)
	}
	resolver := resolve.NewResolver(vocab, resolutionTTL, logger)
	linker := resolve.NewLinker(resolver, logger)

	a.listSvc = listuc.New(a.lists, cfg.Planner.DefaultList)

	router := query.NewRouter(
		records, generator, prompts,
		aggregate.New(domvocab.IDs(fields), domvocab.Amount),
		resolver,
		query.RouterOptions{
			MaxDistance:      cfg.Planner.MaxDistance,
			TopK:             cfg.Planner.TopK,
			MaxPromptRecords: cfg.Planner.MaxRecords,
			Model:            cfg.Generation.Model,
			Location:         loc,
		},
		logger,
	)
	a.planner = query.NewPlanner(generator, prompts, resolver, router,
		query.PlannerOptions{Model: cfg.Generation.Model}, logger)

	a.scheduler, err = reminderuc.NewScheduler(records, notifier, loc, logger)
	if err != nil {
		return err
	}

	notes := noteuc.New(records, a.listSvc, linker, generator, prompts,
		noteuc.Options{Model: cfg.Generation.Model, Location: loc}, logger)
	reminders := reminderuc.New(records, a.listSvc, a.scheduler, generator, prompts,
		reminderuc.Options{Model: cfg.Generation.StrongModel, Location: loc}, logger)

	a.assistant = assistantuc.New(a.listSvc, notes, reminders, a.planner, generator, prompts,
		assistantuc.Options{Model: cfg.Generation.Model, StrongModel: cfg.Generation.StrongModel}, logger)

	a.health = healthuc.New(healthuc.Deps{
		DB:         a.store,
		Lists:      a.lists,
		Embedding:  baseEmbedder,
		Generation: generator,
	})

	logger.Info("Organizer wired",
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("generation_model", cfg.Generation.Model),
		zap.String("timezone", loc.String()),
		zap.Bool("token_budget", a.budget != nil),
	)
	return nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Budget -> Cached -> Instruction.
// Cache hits never reach the budget; the instruction is part of the cache key.
func (a *app) buildEmbedder(base domain.Embedder, instruction string) domain.Embedder {
	embedder := base
	if a.budget != nil {
		embedder = budgetuc.NewGuardedEmbedder(embedder, a.budget, a.cfg.Embedding.Model, a.logger)
	}
	if ttlH := a.cfg.Storage.EmbeddingTTLH; ttlH > 0 {
		embedder = embcache.New(embedder, a.store, embcache.Options{
			KeyPrefix: a.cfg.Storage.KeyPrefix,
			Model:     a.cfg.Embedding.Model,
			TTL:       time.Duration(ttlH) * time.Hour,
		}, metrics.EmbeddingCacheTotal, a.logger)
	}
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}

// Close releases the stores. The scheduler is stopped by its command.
func (a *app) Close() {
	if err := a.lists.Close(); err != nil {
		a.logger.Warn("Failed to close list store", zap.Error(err))
	}
	a.store.Close()
}
