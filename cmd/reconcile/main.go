// cmd/reconcile - one-shot repair of team membership across both stores.
//
//	go run ./cmd/reconcile            drain queued cleanup tasks, then sweep
//	go run ./cmd/reconcile -sweep=false
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"teamhub/config"
	"teamhub/database"
	applog "teamhub/logger"
	"teamhub/services"

	"github.com/redis/go-redis/v9"
)

func main() {
	drain := flag.Bool("drain", true, "apply queued cleanup tasks (needs REDIS_ADDR)")
	sweep := flag.Bool("sweep", true, "compare every team against its relation rows and user documents")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		applog.New("reconcile", "").Fatal("invalid configuration", "error", err)
	}
	log := applog.New("reconcile", cfg.AppEnv)

	err = run(context.Background(), cfg, log, *drain, *sweep)
	log.Sync()
	if err != nil {
		log.Error("reconcile failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *applog.Logger, drain, sweep bool) error {
	if cfg.AggregateBackend != config.BackendMongo {
		return fmt.Errorf("reconcile needs the mongo aggregate backend, got %q", cfg.AggregateBackend)
	}

	db, err := database.InitDB(cfg, log.Named("database"))
	if err != nil {
		return fmt.Errorf("database init: %w", err)
	}
	defer func() {
		if cerr := database.CloseDB(); cerr != nil {
			log.Warn("close database failed", "error", cerr)
		}
	}()

	client, mdb, err := database.ConnectMongo(ctx, cfg, log.Named("mongo"))
	if err != nil {
		return fmt.Errorf("mongo init: %w", err)
	}
	defer func() {
		if cerr := client.Disconnect(context.Background()); cerr != nil {
			log.Warn("mongo disconnect failed", "error", cerr)
		}
	}()

	var tasks services.TaskQueue
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		tasks = services.NewRedisTaskQueue(rdb)
	} else if drain {
		log.Warn("REDIS_ADDR not set, skipping task drain")
		drain = false
	}

	r := services.NewReconciler(services.NewMongoStore(mdb), services.NewRelationStore(db), tasks, 0, log.Named("reconciler"))
	r.SetGracePeriod(cfg.ReconcileGrace)

	var result struct {
		Drain *services.DrainReport `json:"drain,omitempty"`
		Sweep *services.SweepReport `json:"sweep,omitempty"`
	}
	if drain {
		report, err := r.DrainTasks(ctx)
		if err != nil {
			return fmt.Errorf("drain: %w", err)
		}
		result.Drain = &report
	}
	if sweep {
		report, err := r.Sweep(ctx)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		result.Sweep = &report
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
