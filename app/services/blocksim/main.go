package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ardanlabs/blocksim/app/services/blocksim/handlers"
	"github.com/ardanlabs/blocksim/foundation/blockchain/genesis"
	"github.com/ardanlabs/blocksim/foundation/blockchain/scheduler"
	"github.com/ardanlabs/blocksim/foundation/blockchain/snapshot"
	"github.com/ardanlabs/blocksim/foundation/blockchain/snapshot/disk"
	"github.com/ardanlabs/blocksim/foundation/blockchain/state"
	"github.com/ardanlabs/blocksim/foundation/blockchain/wallet"
	"github.com/ardanlabs/blocksim/foundation/blockchain/worker"
	"github.com/ardanlabs/blocksim/foundation/events"
	"github.com/ardanlabs/blocksim/foundation/logger"
	"github.com/ardanlabs/conf/v3"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

// catchUpAfter is how long the simulation must have been offline before
// the missed blocks are mined on startup.
const catchUpAfter = time.Minute

func main() {

	// Construct the application logger.
	log, err := logger.New("BLOCKSIM")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			APIHost         string        `conf:"default:0.0.0.0:8080"`
			CORSOrigin      string        `conf:"default:*"`
		}
		Sim struct {
			GenesisPath      string        `conf:"default:zblock/genesis.json"`
			SnapshotPath     string        `conf:"default:zblock/snapshot.json"`
			AutosaveInterval time.Duration `conf:"default:30s"`
			Seed             uint64        `conf:"default:0"`
			Strategy         string        `conf:"default:fee"`
			MaxAttempts      uint64        `conf:"default:0"`
			RatePerMin       int           `conf:"default:10"`
			RateBurst        int           `conf:"default:10"`
			NetworkEvents    bool          `conf:"default:true"`
			FastForward      bool          `conf:"default:true"`
			Autostart        bool          `conf:"default:true"`
		}
		Wallet struct {
			KeyFolder string `conf:"default:zblock/accounts/"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "consensus and mempool simulator",
		},
	}

	const prefix = "BLOCKSIM"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Genesis

	gen, err := genesis.Load(cfg.Sim.GenesisPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Infow("startup", "status", "genesis file not found, using defaults", "path", cfg.Sim.GenesisPath)
		gen = genesis.Default()
	case err != nil:
		return fmt.Errorf("loading genesis: %w", err)
	}

	// =========================================================================
	// Simulation Support

	// The blockchain packages accept a function of this signature to allow the
	// application to log.
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
	}

	seed := cfg.Sim.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	log.Infow("startup", "status", "random source", "seed", seed)

	sched := scheduler.NewReal()
	defer sched.Shutdown()

	evts := events.NewEvents()

	st, err := state.New(state.Config{
		Genesis:     gen,
		Scheduler:   sched,
		Rand:        rand.New(rand.NewPCG(seed, seed>>1)),
		Events:      evts,
		Strategy:    cfg.Sim.Strategy,
		MaxAttempts: cfg.Sim.MaxAttempts,
		RatePerMin:  cfg.Sim.RatePerMin,
		RateBurst:   cfg.Sim.RateBurst,
		EvHandler:   ev,
	})
	if err != nil {
		return err
	}

	if err := importKeys(log, st, cfg.Wallet.KeyFolder); err != nil {
		return err
	}

	// The worker drives mining and background traffic. It registers itself
	// with the state but does not start until asked.
	wrk := worker.Run(st, worker.Config{
		Rand:          rand.New(rand.NewPCG(seed>>1, seed)),
		NetworkEvents: cfg.Sim.NetworkEvents,
		EvHandler:     ev,
	})
	defer st.Shutdown()

	// =========================================================================
	// Snapshot Support

	store, err := disk.New(cfg.Sim.SnapshotPath)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}

	bundle, found, err := snapshot.Load(store)
	if err != nil {
		log.Errorw("startup", "status", "snapshot unreadable, starting fresh", "ERROR", err)
	}

	if found {
		report := st.Restore(bundle)
		wrk.RestoreConfig(bundle.SchedulerConfig)
		log.Infow("startup", "status", "snapshot restored", "chain", report.ChainRestored, "walletsSkipped", report.WalletsSkipped, "txsSkipped", report.TxsSkipped)

		if cfg.Sim.FastForward && bundle.LastActiveTimestamp > 0 {
			elapsed := time.Since(time.UnixMilli(bundle.LastActiveTimestamp))
			if elapsed > catchUpAfter {
				mined, err := wrk.FastForward(context.Background(), elapsed)
				if err != nil {
					log.Errorw("startup", "status", "fast forward", "ERROR", err)
				}
				log.Infow("startup", "status", "fast forward", "elapsed", elapsed.Round(time.Second), "mined", mined)
			}
		}
	}

	if cfg.Sim.Autostart {
		wrk.Start()
	}

	var ready atomic.Bool
	ready.Store(true)

	save := func() error {
		return snapshot.Save(store, st.Snapshot(wrk.SchedulerConfig()))
	}

	autosave := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.Sim.AutosaveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := save(); err != nil {
					log.Errorw("autosave", "path", cfg.Sim.SnapshotPath, "ERROR", err)
				}
			case <-autosave:
				return
			}
		}
	}()

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	readiness := func() error {
		if !ready.Load() {
			return errors.New("simulation not ready")
		}
		return nil
	}

	debugMux := handlers.DebugMux(build, log, readiness)

	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start API Service

	log.Infow("startup", "status", "initializing V1 API support")

	apiMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown:   shutdown,
		Log:        log,
		State:      st,
		Worker:     wrk,
		Evts:       evts,
		CORSOrigin: cfg.Web.CORSOrigin,
	})

	api := http.Server{
		Addr:         cfg.Web.APIHost,
		Handler:      apiMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "api router started", "host", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		close(autosave)
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		ready.Store(false)
		close(autosave)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		log.Infow("shutdown", "status", "shutdown API started")
		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop api service gracefully: %w", err)
		}

		wrk.Stop()

		log.Infow("shutdown", "status", "saving snapshot", "path", cfg.Sim.SnapshotPath)
		if err := save(); err != nil {
			return fmt.Errorf("saving snapshot: %w", err)
		}
	}

	return nil
}

// importKeys adds a wallet for every key file in the folder. A missing
// folder is not an error.
func importKeys(log *zap.SugaredLogger, st *state.State, folder string) error {
	if _, err := os.Stat(folder); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	keys, err := wallet.LoadFolder(folder)
	if err != nil {
		return fmt.Errorf("loading key folder: %w", err)
	}

	for _, key := range keys {
		w, err := st.ImportWallet(key.Name, key.PrivateKey, 0)
		if err != nil {
			if errors.Is(err, wallet.ErrWalletExists) {
				continue
			}
			return fmt.Errorf("importing key %s: %w", key.Name, err)
		}
		log.Infow("startup", "status", "wallet imported", "name", w.Name, "address", w.Address)
	}

	return nil
}
