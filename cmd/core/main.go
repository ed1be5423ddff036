// Package main provides the StockCount sync core entry point.
// The same code is compiled as a shared library for the mobile shell;
// this binary runs it standalone for development and debugging.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/thantzin/stockcount/backend/internal/api"
	"github.com/thantzin/stockcount/backend/internal/cache"
	"github.com/thantzin/stockcount/backend/internal/connectivity"
	"github.com/thantzin/stockcount/backend/internal/kvstore"
	"github.com/thantzin/stockcount/backend/internal/logging"
	"github.com/thantzin/stockcount/backend/internal/queue"
	"github.com/thantzin/stockcount/backend/internal/sync"
	"github.com/thantzin/stockcount/backend/internal/sync/scheduler"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logging.Init(os.Stdout, level)
	fmt.Printf("StockCount Core v%s\n", Version)

	dataDir := os.Getenv("STOCKCOUNT_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}

	store, openErr := kvstore.Open(dataDir)
	if openErr != nil {
		logging.Error("failed to open local store", openErr,
			map[string]interface{}{"data_dir": dataDir})
		os.Exit(1)
	}
	defer store.Close()

	entityCache := cache.New(store)
	offlineQueue := queue.New(store)
	monitor := connectivity.NewMonitor(nil)

	client := api.NewClient(api.Config{
		BaseURL: os.Getenv("STOCKCOUNT_API_URL"),
		APIKey:  os.Getenv("STOCKCOUNT_API_KEY"),
	})

	engineCfg := sync.DefaultConfig()
	engine := sync.NewEngine(offlineQueue, entityCache, monitor, client, engineCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(engine, monitor, &scheduler.Config{
		SettleDelay:  engineCfg.SettleDelay,
		SyncInterval: scheduler.DefaultConfig().SyncInterval,
		OnResult: func(r sync.Result) {
			logging.Info("sync completed",
				map[string]interface{}{
					"success": r.Success,
					"failed":  r.Failed,
					"total":   r.Total,
				})
		},
	})
	sched.Start(ctx)
	defer sched.Stop()

	status := engine.GetSyncStatus()
	logging.Info("core ready",
		map[string]interface{}{
			"pending":   status.Pending,
			"last_sync": status.LastSync,
		})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logging.Info("shutting down")
}
