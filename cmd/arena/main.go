package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"chess-arena/internal/agent"
	appcfg "chess-arena/internal/config"
	"chess-arena/internal/engine"
	"chess-arena/internal/livestate"
	"chess-arena/internal/match"
	"chess-arena/internal/obslog"
	"chess-arena/internal/roster"
	"chess-arena/internal/rules"
	"chess-arena/internal/tournament"
)

func main() {
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	entries, err := roster.Load(cfg.ManifestPath)
	if err != nil {
		logger.Fatal("roster_load_failed", zap.Error(err))
	}
	competitors := roster.Competitors(entries, cfg.AgentsDir)
	logger.Info("roster_loaded",
		zap.Int("competitors", len(competitors)),
		zap.String("manifest", cfg.ManifestPath),
	)

	loadTimeout := time.Duration(cfg.AgentLoadSec) * time.Second
	spawn := func(d engine.PlayerDescriptor) (engine.Channel, error) {
		return agent.Spawn(agent.Config{
			Identity:    d.Name,
			Command:     d.Resource,
			Resource:    d.Resource,
			LoadTimeout: loadTimeout,
			Logger:      logger,
		})
	}

	eng, err := engine.NewEngine(rules.NewOracle(), spawn, engine.Config{
		MoveTimeLimit:  time.Duration(cfg.MoveTimeLimitMs) * time.Millisecond,
		MoveGrace:      time.Duration(cfg.MoveGraceMs) * time.Millisecond,
		InterMoveDelay: time.Duration(cfg.InterMoveDelayMs) * time.Millisecond,
	}, logger)
	if err != nil {
		logger.Fatal("engine_init_failed", zap.Error(err))
	}

	series, err := match.NewController(eng, logger)
	if err != nil {
		logger.Fatal("match_controller_init_failed", zap.Error(err))
	}

	tourney, err := tournament.NewController(series, tournament.Config{
		Discipline:        tournament.Discipline(cfg.Discipline),
		Seed:              cfg.ShuffleSeed,
		ReshufflePerRound: cfg.ReshufflePerRound,
		TimeLimitMs:       cfg.MoveTimeLimitMs,
	}, logger)
	if err != nil {
		logger.Fatal("tournament_controller_init_failed", zap.Error(err))
	}

	var pub *livestate.Publisher
	if cfg.RedisURL != "" {
		ttl := time.Duration(cfg.SnapshotTTLSec) * time.Second
		pub, err = livestate.NewPublisher(cfg.RedisURL, ttl, logger)
		if err != nil {
			logger.Fatal("live_publisher_init_failed", zap.Error(err))
		}
		defer func() { _ = pub.Close() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if pub != nil {
		go publishLoop(ctx, pub, eng, tourney, time.Duration(cfg.PublishEveryMs)*time.Millisecond)
	}

	if err := tourney.Run(ctx, competitors); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("tournament_interrupted")
			return
		}
		logger.Fatal("tournament_failed", zap.Error(err))
	}

	state := tourney.Snapshot()
	logger.Info("tournament_complete",
		zap.String("champion", state.Champion),
		zap.String("runner_up", state.RunnerUp),
		zap.String("third", state.Third),
		zap.String("fourth", state.Fourth),
	)

	if pub != nil {
		pctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pub.PublishTournament(pctx, state); err != nil {
			logger.Warn("final_publish_failed", zap.Error(err))
		}
	}
}

// publishLoop pushes engine and tournament snapshots to Redis until ctx ends.
func publishLoop(ctx context.Context, pub *livestate.Publisher, eng *engine.Engine, tourney *tournament.Controller, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := pub.PublishGame(ctx, eng.Snapshot()); err != nil {
				obslog.L().Warn("live_game_publish_failed", zap.Error(err))
			}
			if err := pub.PublishTournament(ctx, tourney.Snapshot()); err != nil {
				obslog.L().Warn("live_tournament_publish_failed", zap.Error(err))
			}
		}
	}
}
