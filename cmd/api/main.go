package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/stock-ledger/internal/application/allocation"
	"github.com/jhoicas/stock-ledger/internal/application/reconciliation"
	"github.com/jhoicas/stock-ledger/internal/application/stock"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/locks"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/stock-ledger/internal/interfaces/http"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

const swaggerFile = "./docs/swagger.json"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	// Candado de reparaciones: Redis si hay dirección, en proceso si no.
	var locker reconciliation.JobLocker
	rdb, err := locks.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a Redis")
	}
	if rdb != nil {
		defer rdb.Close()
		locker = locks.NewRedisLocker(rdb, time.Duration(cfg.Ledger.RepairLockTTLSeconds)*time.Second, log.Component("locks"))
		log.Info().Str("redis", cfg.Redis.Address).Msg("candado de reparación en Redis")
	} else {
		locker = locks.NewLocalLocker()
		log.Warn().Msg("REDIS_ADDRESS vacío: candado de reparación solo en este proceso")
	}

	txRunner := postgres.NewTxRunner(pool)
	stockRepo := postgres.NewStockRecordRepository(pool)
	movRepo := postgres.NewMovementRepository(pool)
	resRepo := postgres.NewReservationRepository(pool)

	stockSvc := stock.NewService(txRunner, stockRepo, movRepo, cfg.Ledger.DefaultOwnerID, log.Component("stock"))
	engine := allocation.NewEngine(txRunner, stockRepo, resRepo, log.Component("allocation"))

	dedupeMode, err := reconciliation.ParseDedupeMode(cfg.Ledger.DefaultDedupeMode, reconciliation.ModeKeepEarliest)
	if err != nil {
		log.Fatal().Err(err).Msg("LEDGER_DEDUPE_MODE")
	}
	reconSvc := reconciliation.NewService(
		txRunner, stockRepo, movRepo,
		postgres.NewMaintenanceRepository(pool),
		reconciliation.NewLedgerOwnerResolver(postgres.NewOwnerRepository(pool), cfg.Ledger.DefaultOwnerID),
		locker,
		reconciliation.Config{AllowClearAll: cfg.Ledger.AllowClearAll, DefaultDedupeMode: dedupeMode},
		log.Component("reconciliation"),
	)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 60, // rebuild y dedupe recorren todo el ledger
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs (generar con `swag init -g cmd/api/main.go`)
	if _, err := os.Stat(swaggerFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/",
			FilePath: swaggerFile,
			Path:     "docs",
			Title:    "Stock Ledger API",
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := pool.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "service": cfg.App.Name})
		}
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Stock:          stockSvc,
		Allocation:     engine,
		Reconciliation: reconSvc,
		JWTSecret:      cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
