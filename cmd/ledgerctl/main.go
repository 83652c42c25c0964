// ledgerctl herramientas de administración del inventario: migraciones, conciliación y reparaciones.
// La salida es JSON en stdout; los logs van a stderr.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jhoicas/stock-ledger/internal/application/reconciliation"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/locks"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/postgres"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

const usage = `uso: ledgerctl <comando>

  migrate               aplica las migraciones pendientes
  reconcile             compara el ledger con la caché (solo lectura)
  rebuild               reconstruye la caché desde el ledger
  dedupe [modo]         fusiona duplicados (keep_earliest | sum | ledger)
  clear --confirm       borra todo el inventario (requiere LEDGER_ALLOW_CLEAR_ALL=true)
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cargar configuración:", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Output: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	if os.Args[1] == "migrate" {
		results, err := postgres.Migrate(ctx, pool)
		exit(log, results, err)
		return
	}

	var locker reconciliation.JobLocker = locks.NewLocalLocker()
	rdb, err := locks.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a Redis")
	}
	if rdb != nil {
		defer rdb.Close()
		locker = locks.NewRedisLocker(rdb, time.Duration(cfg.Ledger.RepairLockTTLSeconds)*time.Second, log.Component("locks"))
	}

	defMode, err := reconciliation.ParseDedupeMode(cfg.Ledger.DefaultDedupeMode, reconciliation.ModeKeepEarliest)
	if err != nil {
		log.Fatal().Err(err).Msg("LEDGER_DEDUPE_MODE")
	}
	svc := reconciliation.NewService(
		postgres.NewTxRunner(pool),
		postgres.NewStockRecordRepository(pool),
		postgres.NewMovementRepository(pool),
		postgres.NewMaintenanceRepository(pool),
		reconciliation.NewLedgerOwnerResolver(postgres.NewOwnerRepository(pool), cfg.Ledger.DefaultOwnerID),
		locker,
		reconciliation.Config{AllowClearAll: cfg.Ledger.AllowClearAll, DefaultDedupeMode: defMode},
		log.Component("reconciliation"),
	)

	switch os.Args[1] {
	case "reconcile":
		report, err := svc.Reconcile(ctx)
		exit(log, report, err)
		if err == nil && !report.Summary.IsReconciled {
			os.Exit(3)
		}
	case "rebuild":
		result, err := svc.RebuildFromMovements(ctx)
		exit(log, result, err)
	case "dedupe":
		mode := ""
		if len(os.Args) > 2 {
			mode = os.Args[2]
		}
		result, err := svc.Deduplicate(ctx, mode)
		exit(log, result, err)
	case "clear":
		confirm := len(os.Args) > 2 && os.Args[2] == "--confirm"
		counts, err := svc.ClearAll(ctx, confirm)
		exit(log, counts, err)
	default:
		fmt.Fprintf(os.Stderr, "comando desconocido: %s\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
}

// exit imprime v como JSON; con err registra el error y termina con código 1.
func exit(log *logger.Logger, v any, err error) {
	if err == nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(v); encErr != nil {
			log.Error().Err(encErr).Msg("escribir salida")
		}
	}
	if err != nil {
		log.Error().Err(err).Msg("comando fallido")
		os.Exit(1)
	}
}
