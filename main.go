package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/wfunc/hatgame/broadcast"
	"github.com/wfunc/hatgame/config"
	"github.com/wfunc/hatgame/logger"
	"github.com/wfunc/hatgame/models"
	"github.com/wfunc/hatgame/monitor"
	"github.com/wfunc/hatgame/persistence"
	"github.com/wfunc/hatgame/room"
	"github.com/wfunc/hatgame/rpc"
	"github.com/wfunc/hatgame/server"
	"github.com/wfunc/hatgame/services"
	"github.com/wfunc/hatgame/session"
	"github.com/wfunc/hatgame/stats"
	"github.com/wfunc/hatgame/words"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.Log.Level)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Database
	db, gormDB, err := openDatabase(cfg.Database)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Log.Infow("database ready", "driver", cfg.Database.Driver)

	var matches persistence.MatchRepository = db
	if cfg.Redis.Enabled {
		client := persistence.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Log.Fatalf("Failed to connect to redis: %v", err)
		}
		redisRepo := persistence.NewRedisMatchRepository(client, cfg.Redis.SnapshotTTL)
		defer redisRepo.Close()
		matches = redisRepo
		logger.Log.Infow("match snapshots stored in redis", "address", cfg.Redis.Address)
	}

	source, err := openWordSource(ctx, cfg, gormDB)
	if err != nil {
		logger.Log.Fatalf("Failed to load words: %v", err)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mon := monitor.NewMonitor(cfg.Metrics.Namespace, reg)
	mon.PublishExpvar()

	rooms := room.NewRoomManager()
	sessions := session.NewManager()
	broadcaster := broadcast.NewRoomBroadcaster(rooms, sessions)
	notifier := room.NewNotifier(broadcaster)
	aggregator := stats.NewAggregator(db, stats.WithPublisher(broadcast.NewStatsPublisher(broadcaster)))

	game := services.NewGameService(rooms, matches, aggregator, source,
		services.WithDefaults(models.MatchOptions{
			RoundDuration:  cfg.Game.RoundDuration,
			WordsCount:     cfg.Game.WordsCount,
			LastRoundIndex: models.Rounds(cfg.Game.LastRoundIndex),
		}),
		services.WithSubscribers(mon, notifier),
		services.OnAbandon(func(string) { mon.MatchAbandoned() }),
	)

	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress, game)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	go rpcServer.Start()

	health, err := rpc.NewHealthServer(cfg.Server.HealthAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to create health server: %v", err)
	}
	go func() {
		if err := health.Start(); err != nil {
			logger.Log.Errorf("health server stopped: %v", err)
		}
	}()

	// Initialize Game Server
	gameServer := server.NewGameServer(cfg.Server, rooms, sessions, game, mon, reg)
	serveErr := make(chan error, 1)
	go func() { serveErr <- gameServer.Start() }()
	health.SetServing(true)

	select {
	case <-ctx.Done():
		logger.Log.Info("Shutdown signal received.")
	case err := <-serveErr:
		if err != nil {
			logger.Log.Errorf("Game server failed: %v", err)
		}
	}

	health.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gameServer.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorf("Game server shutdown: %v", err)
	}
	rpcServer.Stop()
	health.Stop()
	logger.Log.Info("Server stopped.")
}

// openDatabase returns the durable store and, for the GORM driver, the
// shared gorm connection.
func openDatabase(cfg config.DatabaseConfig) (persistence.Database, *gorm.DB, error) {
	pg := cfg.Postgres
	switch cfg.Driver {
	case "gorm", "":
		db, err := persistence.NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
		if err != nil {
			return nil, nil, err
		}
		return db, db.DB(), nil
	case "postgres":
		db, err := persistence.NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
		return db, nil, err
	case "memory":
		return persistence.NewMemoryStore(), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// openWordSource loads the dictionary. The database source is seeded from
// the words file when that file exists.
func openWordSource(ctx context.Context, cfg *config.Config, gormDB *gorm.DB) (words.Source, error) {
	switch cfg.Game.WordSource {
	case "file", "":
		return words.LoadFile(cfg.Game.WordsFile)
	case "database":
		if gormDB == nil {
			pg := cfg.Database.Postgres
			db, err := persistence.NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
			if err != nil {
				return nil, err
			}
			gormDB = db.DB()
		}
		src := words.NewDBSource(gormDB)
		file, err := words.LoadFile(cfg.Game.WordsFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			added, err := src.Import(ctx, file.Entries())
			if err != nil {
				return nil, err
			}
			logger.Log.Infow("dictionary seeded", "file", cfg.Game.WordsFile, "added", added)
		}
		return src, nil
	}
	return nil, fmt.Errorf("unknown word source %q", cfg.Game.WordSource)
}
