package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/milkmamado/biscal-sub002/config"
	promclient "github.com/milkmamado/biscal-sub002/infrastructure/prometheus"
	"github.com/milkmamado/biscal-sub002/provider"
	"github.com/milkmamado/biscal-sub002/server"
	"github.com/milkmamado/biscal-sub002/store/postgres"
	"github.com/milkmamado/biscal-sub002/usecase"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connManager := provider.NewConnManager(cfg)
	if err := connManager.Init(); err != nil {
		log.Fatalf("failed to connect to exchange stream: %s", err)
	}
	defer connManager.Close()

	bookStream := usecase.NewOrderBookStreamUseCase(connManager, cfg.RenderInterval)

	var tradeLogs *usecase.TradeLogUseCase
	if cfg.PostgresDSN != "" {
		pg, err := postgres.NewClient(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("failed to connect to supabase: %s", err)
		}
		defer pg.Close()

		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalf("failed to prepare trade log schema: %s", err)
		}
		tradeLogs = usecase.NewTradeLogUseCase(postgres.NewTradeLogStore(pg.Pool()))
	} else {
		log.Println("SUPABASE_DSN not set, trade log persistence disabled")
	}

	gateway := server.NewServer(
		bookStream,
		tradeLogs,
		connManager.StreamAPI(),
		server.NewValidationService(&server.ValidationServiceConfig{
			AllowedSymbols: cfg.AllowedSymbols,
		}),
	)

	gatewaySrv := &http.Server{Addr: cfg.GatewayAddr, Handler: gateway.Handler()}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promclient.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("gateway listening at %s", cfg.GatewayAddr)
		if err := gatewaySrv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Printf("metrics listening at %s", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = gatewaySrv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %s", err)
	}
}
