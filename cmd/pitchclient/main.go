package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"pitchgate.app/internal/ads"
	"pitchgate.app/internal/balance"
	"pitchgate.app/internal/config"
	"pitchgate.app/internal/deeplink"
	"pitchgate.app/internal/gate"
	"pitchgate.app/internal/httpapi"
	"pitchgate.app/internal/identity"
	"pitchgate.app/internal/migrate"
	"pitchgate.app/internal/nav"
	"pitchgate.app/internal/obs"
	"pitchgate.app/internal/reward"
)

var version = "0.1.0"

const demoUser = "demo-user"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		obs.Logger().Error("pitchclient.exit", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig) error {
	obs.Init()
	obs.SetLevel(cfg.LogLevel)
	obs.InitBuildInfo(version)
	log := obs.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	authority, err := identity.NewAuthority(cfg.Auth.Secret, identity.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return err
	}
	sessions, err := identity.OpenSQLite(cfg.Storage.SessionDB)
	if err != nil {
		return err
	}
	defer sessions.Close()
	local := identity.NewLocal(authority, identity.WithStore(sessions))

	balances, probe, closeBalances, err := openBalances(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBalances()

	router := nav.NewRouter("/")
	feed := deeplink.NewFeed(cfg.Link)
	bridge := deeplink.New(local, feed)
	sessionGate := gate.New(local, router, router, gate.WithSettle(cfg.GateSettle))
	creditor := reward.New(ads.NewMock(ads.DefaultScript()), balances, local,
		reward.WithCooldown(cfg.Reward.Cooldown))

	grpcSrv := httpapi.NewGRPCServer()
	unsubHealth := local.OnChange(func(c identity.Change) { grpcSrv.SetServing(!c.Loading) })
	defer unsubHealth()

	api := httpapi.New(httpapi.Deps{
		Sessions:  local,
		Routes:    router,
		Links:     feed,
		Rewards:   creditor,
		Authority: authority,
		Probe:     probe,
	},
		httpapi.WithVersion(version),
		httpapi.WithScheme(cfg.Scheme),
		httpapi.WithRewardDefaults(cfg.Reward.Amount, cfg.Reward.AdUnit),
		httpapi.WithControlToken(cfg.Server.ControlToken),
	)
	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if err := sessionGate.Start(); err != nil {
		return err
	}
	defer sessionGate.Stop()
	dispose := bridge.Start()
	defer func() {
		dispose()
		bridge.Wait()
	}()

	// Loading phase: the gate holds every redirect until this returns.
	if err := local.Restore(ctx); err != nil {
		log.Warn("identity.restore.failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http.listen", "addr", httpSrv.Addr, "version", version)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		g.Go(func() error {
			log.Info("grpc.listen", "addr", cfg.Server.GRPCAddr)
			return grpcSrv.Serve(lis)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("pitchclient.shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcSrv.Stop()
		return httpSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("pitchclient.stopped")
	return err
}

// openBalances picks Postgres when a DSN is configured and an in-memory
// store seeded with the demo user otherwise.
func openBalances(ctx context.Context, cfg *config.AppConfig) (balance.Store, httpapi.ReadyProbe, func(), error) {
	if cfg.Storage.BalanceDSN == "" {
		mem := balance.NewMemory()
		mem.Seed(demoUser, 100000)
		return mem, nil, func() {}, nil
	}
	pg, err := balance.OpenPG(cfg.Storage.BalanceDSN)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.Migrate {
		mgr := migrate.NewManager(pg.DB(), balance.Schema, "migrations", "seeds")
		if err := mgr.Up(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
		if err := mgr.Seed(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, nil, fmt.Errorf("seed: %w", err)
		}
	}
	return pg, pg.Ping, func() { _ = pg.Close() }, nil
}
