package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"wsb.com/powledger/internals/api"
	"wsb.com/powledger/internals/chain"
	"wsb.com/powledger/internals/config"
	"wsb.com/powledger/internals/miner"
	"wsb.com/powledger/internals/store"
)

// StartMiner mines a block every interval until ctx is done. Failed attempts
// are logged and retried on the next tick with a fresh timestamp.
func StartMiner(ctx context.Context, c *chain.Chain, interval time.Duration, log *logrus.Entry) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := c.MineBlock(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Warn("Mining attempt failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

func showBanner(address string, difficulty uint32) {
	fmt.Println("@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@")
	fmt.Println("@ ===                      PoW Ledger                         === @")
	fmt.Printf("@ === MINER ADDRESS: %s\n", address)
	fmt.Printf("@ === DIFFICULTY: %d\n", difficulty)
	fmt.Println("@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@")
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfiguration(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logger := cfg.Logger()
	log := logrus.NewEntry(logger)

	showBanner(cfg.Miner.Address, cfg.Miner.Difficulty)

	opts := []chain.Option{
		chain.WithLogger(log),
		chain.WithReward(cfg.Miner.Reward),
		chain.WithSealer(miner.New(cfg.Miner.Threads, cfg.Miner.MaxNonce, log.WithField("component", "miner"))),
	}
	if cfg.Pebble.Enabled {
		blocks, err := store.NewBlockStore(cfg.Pebble.Path)
		if err != nil {
			log.WithError(err).Fatal("Failed to open block store")
		}
		defer blocks.Close()
		opts = append(opts, chain.WithSink(blocks))
	}

	c, err := chain.New(cfg.Miner.Address, cfg.Miner.Difficulty, opts...)
	if err != nil {
		log.WithError(err).Fatal("Failed to create chain")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	if cfg.Miner.Interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			StartMiner(ctx, c, cfg.Miner.Interval, log)
		}()
	}

	var srv *http.Server
	if cfg.Server.Enabled {
		gin.SetMode(gin.ReleaseMode)
		srv = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: api.NewRouter(c, log.WithField("component", "api")).Engine(),
		}
		go func() {
			log.WithField("addr", srv.Addr).Info("Listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("API server stopped")
				cancel()
			}
		}()
	}

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-termChan:
	case <-ctx.Done():
	}
	log.Info("Shutting down")
	cancel()

	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("API shutdown")
		}
	}
	// The block store closes only after the last MineBlock returned.
	wg.Wait()
}
