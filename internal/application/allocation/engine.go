// Package allocation reserva stock disponible contra la demanda de pedidos: búsqueda de
// candidatos por estrategia, carve-out con actualización condicional y reparto entre lotes.
package allocation

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/lwin"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

const tracerName = "github.com/jhoicas/stock-ledger/allocation"

// errLostRace: la actualización condicional no tocó filas; otro proceso tomó el disponible.
var errLostRace = errors.New("carrera perdida")

// ReserveItem una línea de pedido a reservar.
type ReserveItem struct {
	OrderItemID       string
	ProductIdentity   string
	ProductName       string
	QuantityRequested int
}

// ReserveRequest demanda de un pedido.
type ReserveRequest struct {
	OrderType   string
	OrderID     string
	OrderNumber string
	Items       []ReserveItem
}

// Engine motor de asignación. No usa candados globales: la concurrencia por registro la
// resuelve la actualización condicional de TryReserve.
type Engine struct {
	txRunner  repository.TxRunner
	stockRepo repository.StockRecordRepository
	resRepo   repository.ReservationRepository
	matchers  []Matcher
	log       zerolog.Logger
	tracer    trace.Tracer
}

// NewEngine construye el motor. Sin matchers usa exacto y luego prefijo.
func NewEngine(
	txRunner repository.TxRunner,
	stockRepo repository.StockRecordRepository,
	resRepo repository.ReservationRepository,
	log zerolog.Logger,
	matchers ...Matcher,
) *Engine {
	if len(matchers) == 0 {
		matchers = []Matcher{ExactMatcher{}, PrefixMatcher{}}
	}
	return &Engine{
		txRunner:  txRunner,
		stockRepo: stockRepo,
		resRepo:   resRepo,
		matchers:  matchers,
		log:       log,
		tracer:    otel.Tracer(tracerName),
	}
}

func validateRequest(req ReserveRequest) error {
	if req.OrderID == "" {
		return fmt.Errorf("%w: order_id requerido", domain.ErrInvalidInput)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: el pedido no tiene líneas", domain.ErrInvalidInput)
	}
	seen := make(map[string]bool, len(req.Items))
	for i, it := range req.Items {
		if it.OrderItemID == "" {
			return fmt.Errorf("%w: línea %d sin order_item_id", domain.ErrInvalidInput, i)
		}
		if seen[it.OrderItemID] {
			return fmt.Errorf("%w: order_item_id %s repetido", domain.ErrInvalidInput, it.OrderItemID)
		}
		seen[it.OrderItemID] = true
		if it.QuantityRequested <= 0 {
			return fmt.Errorf("%w: línea %s con cantidad %d", domain.ErrInvalidInput, it.OrderItemID, it.QuantityRequested)
		}
		if _, err := lwin.Parse(it.ProductIdentity); err != nil {
			return fmt.Errorf("%w: línea %s: %v", domain.ErrInvalidInput, it.OrderItemID, err)
		}
	}
	return nil
}

// Reserve asigna stock a cada línea del pedido. El faltante se informa en Short; solo la
// entrada mal formada y los fallos del almacén son errores. Ante un fallo del almacén se
// devuelve el resultado parcial junto con el error: lo ya reservado queda reservado.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest) (*entity.AllocationResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "allocation.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.String("order.type", req.OrderType),
		attribute.Int("order.items", len(req.Items)),
	)

	result := &entity.AllocationResult{
		Reserved: []entity.AllocatedLine{},
		Short:    []entity.Shortfall{},
		Skipped:  []entity.SkippedItem{},
	}
	for _, item := range req.Items {
		if err := e.reserveItem(ctx, req, item, result); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "reserve failed")
			return result, err
		}
	}

	span.SetAttributes(
		attribute.Int("allocation.lines", len(result.Reserved)),
		attribute.Int("allocation.short", len(result.Short)),
	)
	return result, nil
}

func (e *Engine) reserveItem(ctx context.Context, req ReserveRequest, item ReserveItem, result *entity.AllocationResult) error {
	ctx, span := e.tracer.Start(ctx, "allocation.reserve_item", trace.WithAttributes(
		attribute.String("order_item.id", item.OrderItemID),
		attribute.String("product.identity", item.ProductIdentity),
		attribute.Int("quantity.requested", item.QuantityRequested),
	))
	defer span.End()

	active, err := e.resRepo.HasActive(ctx, item.OrderItemID)
	if err != nil {
		return err
	}
	if active {
		result.Skipped = append(result.Skipped, entity.SkippedItem{OrderItemID: item.OrderItemID, Reason: entity.SkipAlreadyReserved})
		span.SetAttributes(attribute.String("allocation.skipped", entity.SkipAlreadyReserved))
		return nil
	}

	cands, strategy, err := firstMatch(ctx, e.matchers, e.stockRepo, item.ProductIdentity)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("allocation.strategy", strategy), attribute.Int("allocation.candidates", len(cands)))

	remaining := item.QuantityRequested
	line := 0
	for _, cand := range cands {
		if remaining == 0 {
			break
		}
		take := min(remaining, cand.QuantityAvailable)
		if take <= 0 {
			continue
		}
		res := &entity.Reservation{
			StockRecordID: cand.ID,
			OrderType:     req.OrderType,
			OrderID:       req.OrderID,
			OrderNumber:   req.OrderNumber,
			OrderItemID:   item.OrderItemID,
			Line:          line + 1,
			Quantity:      take,
			Status:        entity.ReservationActive,
		}
		err := e.carve(ctx, res)
		switch {
		case errors.Is(err, errLostRace):
			e.log.Debug().Str("order_item_id", item.OrderItemID).Str("stock_record_id", cand.ID).Int("take", take).
				Msg("carrera perdida en carve-out; se pasa al siguiente candidato")
			continue
		case errors.Is(err, domain.ErrDuplicate):
			if line == 0 {
				// Otra llamada concurrente ya asignó esta línea de pedido.
				result.Skipped = append(result.Skipped, entity.SkippedItem{OrderItemID: item.OrderItemID, Reason: entity.SkipConcurrentAllocated})
				return nil
			}
			e.short(result, item, remaining)
			return nil
		case err != nil:
			return err
		}

		line++
		remaining -= take
		result.Reserved = append(result.Reserved, entity.AllocatedLine{
			OrderItemID:     item.OrderItemID,
			ReservationID:   res.ID,
			StockRecordID:   cand.ID,
			ProductIdentity: cand.ProductIdentity,
			LocationID:      cand.LocationID,
			LotID:           cand.LotID,
			Line:            res.Line,
			Quantity:        take,
		})
	}

	if remaining > 0 {
		e.short(result, item, remaining)
	}
	span.SetAttributes(attribute.Int("quantity.reserved", item.QuantityRequested-remaining))
	return nil
}

// carve ejecuta en una transacción la actualización condicional y el alta de la reserva.
func (e *Engine) carve(ctx context.Context, res *entity.Reservation) error {
	return e.txRunner.Run(ctx, func(
		_ repository.MovementRepository,
		stockRepo repository.StockRecordRepository,
		resRepo repository.ReservationRepository,
	) error {
		ok, err := stockRepo.TryReserve(ctx, res.StockRecordID, res.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		return resRepo.Create(ctx, res)
	})
}

func (e *Engine) short(result *entity.AllocationResult, item ReserveItem, remaining int) {
	reserved := item.QuantityRequested - remaining
	result.Short = append(result.Short, entity.Shortfall{
		OrderItemID:       item.OrderItemID,
		ProductIdentity:   item.ProductIdentity,
		QuantityRequested: item.QuantityRequested,
		QuantityReserved:  reserved,
		Shortfall:         remaining,
	})
	e.log.Warn().
		Str("order_item_id", item.OrderItemID).
		Str("product_identity", item.ProductIdentity).
		Int("requested", item.QuantityRequested).
		Int("shortfall", remaining).
		Msg("stock insuficiente para la línea de pedido")
}
