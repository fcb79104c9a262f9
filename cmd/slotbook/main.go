// Package main запускает HTTP-сервер сервиса бронирования.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/slotbook-system/internal/booking"
	"github.com/mmeshcher/slotbook-system/internal/config"
	"github.com/mmeshcher/slotbook-system/internal/handler"
	"github.com/mmeshcher/slotbook-system/internal/idgen"
	"github.com/mmeshcher/slotbook-system/internal/ledger"
	"github.com/mmeshcher/slotbook-system/internal/middleware"
	"github.com/mmeshcher/slotbook-system/internal/payment"
	"github.com/mmeshcher/slotbook-system/internal/repository"
	"github.com/mmeshcher/slotbook-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var repo service.Repository
	if cfg.DatabaseURI != "" {
		pg, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		repo = pg
	} else {
		mem := repository.NewMemoryRepository()
		mem.SeedDemoCatalog()
		sugar.Info("no database URI provided, using in-memory repository with demo catalog")
		repo = mem
	}
	defer repo.Close()

	var paymentClient *payment.Client
	if cfg.PaymentSystemAddress != "" {
		paymentClient = payment.NewClient(cfg.PaymentSystemAddress)
	}

	ledgers := ledger.NewRegistry(idgen.UUID(), time.Now)
	engine := booking.NewEngine(ledgers, cfg.CommissionRate, cfg.CancelCutoff, idgen.UUID(), time.Now)

	svc := service.NewService(repo, engine, ledgers, paymentClient)
	defer svc.Close()

	if err := svc.Restore(context.Background()); err != nil {
		sugar.Fatalw("state restore error", "error", err.Error())
	}

	authMiddleware := middleware.NewAuthMiddleware("slotbook-secret")
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting slotbook server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
