package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"partstore-core/internal/dto"
	"partstore-core/internal/model"
	"partstore-core/internal/repository"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InventoryService is the only way to change stock. Every operation locks the
// part row, validates under the lock and posts through the ledger in one
// transaction.
type InventoryService interface {
	RegisterEntry(ctx context.Context, partID uint, quantity int64, unitPrice *decimal.Decimal, note string) (*model.Movement, error)
	RegisterExit(ctx context.Context, partID uint, quantity int64, unitPrice *decimal.Decimal, note string) (*model.Movement, error)
	// RegisterExitInTx joins the caller's transaction. The part lock is held
	// until that transaction ends.
	RegisterExitInTx(ctx context.Context, tx *gorm.DB, partID uint, quantity int64, unitPrice *decimal.Decimal, reason model.MovementReason, note string) (*model.Movement, error)
	RegisterReturn(ctx context.Context, in ReturnInput) (*model.Return, error)

	CreatePart(ctx context.Context, in NewPart) (*model.Part, error)
	DeletePart(ctx context.Context, partID uint) error
	GetPart(ctx context.Context, partID uint) (*model.Part, error)
	Reconcile(ctx context.Context, partID uint) (*dto.StockReport, error)
	ListMovements(ctx context.Context, partID uint, limit int) ([]*model.Movement, error)
}

type ReturnInput struct {
	PartID    uint
	Quantity  int64
	UnitPrice *decimal.Decimal
	SaleID    *uint
	Reason    string
}

type NewPart struct {
	PartNumber   string
	Name         string
	Brand        string
	Price        decimal.Decimal
	InitialStock int64
}

type inventoryServiceImpl struct {
	db           *gorm.DB
	partRepo     repository.PartRepository
	movementRepo repository.MovementRepository
	orderRepo    repository.OrderRepository
	saleRepo     repository.SaleRepository
	returnRepo   repository.ReturnRepository
	outboxRepo   repository.OutboxRepository
	log          *zap.Logger
}

func NewInventoryService(
	db *gorm.DB,
	partRepo repository.PartRepository,
	movementRepo repository.MovementRepository,
	orderRepo repository.OrderRepository,
	saleRepo repository.SaleRepository,
	returnRepo repository.ReturnRepository,
	outboxRepo repository.OutboxRepository,
	log *zap.Logger,
) InventoryService {
	return &inventoryServiceImpl{
		db:           db,
		partRepo:     partRepo,
		movementRepo: movementRepo,
		orderRepo:    orderRepo,
		saleRepo:     saleRepo,
		returnRepo:   returnRepo,
		outboxRepo:   outboxRepo,
		log:          log.Named("inventory"),
	}
}

func (s *inventoryServiceImpl) RegisterEntry(ctx context.Context, partID uint, quantity int64, unitPrice *decimal.Decimal, note string) (mv *model.Movement, err error) {
	ctx, span := tracer.Start(ctx, "InventoryService.RegisterEntry")
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.Int64("part.id", int64(partID)), attribute.Int64("quantity", quantity))

	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		part, err := s.lockPart(ctx, tx, partID)
		if err != nil {
			return err
		}

		mv, err = s.post(ctx, tx, part, ledgerEntry{
			Quantity:  quantity,
			Direction: model.MovementEntry,
			Reason:    model.ReasonManual,
			UnitPrice: priceOr(unitPrice, part.Price),
			Note:      note,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("stock entry registered",
		zap.Uint("part_id", partID),
		zap.Int64("quantity", quantity),
		zap.Uint("movement_id", mv.ID),
	)
	return mv, nil
}

func (s *inventoryServiceImpl) RegisterExit(ctx context.Context, partID uint, quantity int64, unitPrice *decimal.Decimal, note string) (mv *model.Movement, err error) {
	ctx, span := tracer.Start(ctx, "InventoryService.RegisterExit")
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.Int64("part.id", int64(partID)), attribute.Int64("quantity", quantity))

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		mv, err = s.RegisterExitInTx(ctx, tx, partID, quantity, unitPrice, model.ReasonManual, note)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("stock exit registered",
		zap.Uint("part_id", partID),
		zap.Int64("quantity", quantity),
		zap.Uint("movement_id", mv.ID),
	)
	return mv, nil
}

func (s *inventoryServiceImpl) RegisterExitInTx(ctx context.Context, tx *gorm.DB, partID uint, quantity int64, unitPrice *decimal.Decimal, reason model.MovementReason, note string) (*model.Movement, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	part, err := s.lockPart(ctx, tx, partID)
	if err != nil {
		return nil, err
	}

	// part.Stock was read under the lock, so no other writer can change it
	// before this transaction ends.
	if quantity > part.Stock {
		return nil, fmt.Errorf("%w: part %d has %d, requested %d", ErrInsufficientStock, partID, part.Stock, quantity)
	}

	return s.post(ctx, tx, part, ledgerEntry{
		Quantity:  quantity,
		Direction: model.MovementExit,
		Reason:    reason,
		UnitPrice: priceOr(unitPrice, part.Price),
		Note:      note,
	})
}

func (s *inventoryServiceImpl) RegisterReturn(ctx context.Context, in ReturnInput) (ret *model.Return, err error) {
	ctx, span := tracer.Start(ctx, "InventoryService.RegisterReturn")
	defer func() { finishSpan(span, err) }()

	if in.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sale *model.Sale
		if in.SaleID != nil {
			sale, err = s.saleRepo.LockByID(ctx, tx, *in.SaleID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSaleNotFound
			}
			if err != nil {
				return fmt.Errorf("lock sale: %w", err)
			}
			if sale.PartID != in.PartID {
				return fmt.Errorf("%w: sale %d is for part %d", ErrSaleMismatch, sale.ID, sale.PartID)
			}

			returned, err := s.returnRepo.ReturnedQuantity(ctx, tx, sale.ID)
			if err != nil {
				return fmt.Errorf("sum returns: %w", err)
			}
			if returned+in.Quantity > sale.Quantity {
				return fmt.Errorf("%w: sold %d, already returned %d", ErrSaleMismatch, sale.Quantity, returned)
			}
		}

		part, err := s.lockPart(ctx, tx, in.PartID)
		if err != nil {
			return err
		}

		price := part.Price
		if sale != nil {
			price = sale.UnitPrice
		}
		price = priceOr(in.UnitPrice, price)

		note := "return"
		if in.Reason != "" {
			note = "return: " + in.Reason
		}
		mv, err := s.post(ctx, tx, part, ledgerEntry{
			Quantity:  in.Quantity,
			Direction: model.MovementEntry,
			Reason:    model.ReasonReturn,
			UnitPrice: price,
			Note:      truncate(note, 255),
			SaleID:    in.SaleID,
		})
		if err != nil {
			return err
		}

		ret = &model.Return{
			SaleID:     in.SaleID,
			PartID:     in.PartID,
			MovementID: mv.ID,
			Quantity:   in.Quantity,
			UnitPrice:  price,
			Total:      price.Mul(decimal.NewFromInt(in.Quantity)),
			Reason:     truncate(in.Reason, 500),
		}
		if err := s.returnRepo.Create(ctx, tx, ret); err != nil {
			return fmt.Errorf("insert return: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("return registered",
		zap.Uint("part_id", in.PartID),
		zap.Int64("quantity", in.Quantity),
		zap.Uint("return_id", ret.ID),
	)
	return ret, nil
}

func (s *inventoryServiceImpl) CreatePart(ctx context.Context, in NewPart) (*model.Part, error) {
	in.PartNumber = strings.TrimSpace(in.PartNumber)
	in.Name = strings.TrimSpace(in.Name)
	if in.PartNumber == "" || in.Name == "" {
		return nil, fmt.Errorf("%w: part number and name are required", ErrInvalidInput)
	}
	if in.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if in.InitialStock < 0 {
		return nil, ErrInvalidQuantity
	}

	part := &model.Part{
		PartNumber: in.PartNumber,
		Name:       in.Name,
		Price:      in.Price,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if brand := strings.TrimSpace(in.Brand); brand != "" {
			b, err := s.partRepo.FindOrCreateBrand(ctx, tx, brand)
			if err != nil {
				return fmt.Errorf("resolve brand: %w", err)
			}
			part.BrandID = &b.ID
		}

		if err := s.partRepo.Create(ctx, tx, part); err != nil {
			return fmt.Errorf("insert part: %w", err)
		}

		if in.InitialStock > 0 {
			if _, err := s.post(ctx, tx, part, ledgerEntry{
				Quantity:  in.InitialStock,
				Direction: model.MovementEntry,
				Reason:    model.ReasonInitial,
				UnitPrice: part.Price,
				Note:      "initial stock",
			}); err != nil {
				return err
			}
			part.Stock = in.InitialStock
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("part created", zap.Uint("part_id", part.ID), zap.String("part_number", part.PartNumber))
	return part, nil
}

// DeletePart refuses while any open order references the part or the ledger
// has movements for it.
func (s *inventoryServiceImpl) DeletePart(ctx context.Context, partID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.lockPart(ctx, tx, partID); err != nil {
			return err
		}

		open, err := s.orderRepo.CountOpenLinesForPart(ctx, tx, partID)
		if err != nil {
			return fmt.Errorf("count open order lines: %w", err)
		}
		if open > 0 {
			return fmt.Errorf("%w: %d open order lines", ErrPartInUse, open)
		}

		movements, err := s.movementRepo.CountByPart(ctx, tx, partID)
		if err != nil {
			return fmt.Errorf("count movements: %w", err)
		}
		if movements > 0 {
			return fmt.Errorf("%w: %d movements", ErrPartInUse, movements)
		}

		return s.partRepo.Delete(ctx, tx, partID)
	})
}

func (s *inventoryServiceImpl) GetPart(ctx context.Context, partID uint) (*model.Part, error) {
	part, err := s.partRepo.FindByID(ctx, partID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPartNotFound
	}
	return part, err
}

func (s *inventoryServiceImpl) Reconcile(ctx context.Context, partID uint) (*dto.StockReport, error) {
	report := &dto.StockReport{PartID: partID}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		part, err := s.lockPart(ctx, tx, partID)
		if err != nil {
			return err
		}
		report.Counter = part.Stock

		if report.LedgerSum, err = s.movementRepo.SignedSum(ctx, tx, partID); err != nil {
			return fmt.Errorf("sum movements: %w", err)
		}
		if report.Movements, err = s.movementRepo.CountByPart(ctx, tx, partID); err != nil {
			return fmt.Errorf("count movements: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	report.Consistent = report.Counter == report.LedgerSum
	if !report.Consistent {
		s.log.Error("stock counter diverges from ledger",
			zap.Uint("part_id", partID),
			zap.Int64("counter", report.Counter),
			zap.Int64("ledger_sum", report.LedgerSum),
		)
	}
	return report, nil
}

func (s *inventoryServiceImpl) ListMovements(ctx context.Context, partID uint, limit int) ([]*model.Movement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if _, err := s.GetPart(ctx, partID); err != nil {
		return nil, err
	}
	return s.movementRepo.ListByPart(ctx, partID, limit)
}

func (s *inventoryServiceImpl) lockPart(ctx context.Context, tx *gorm.DB, partID uint) (*model.Part, error) {
	part, err := s.partRepo.LockByID(ctx, tx, partID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrPartNotFound, partID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock part %d: %w", partID, err)
	}
	return part, nil
}

// post writes the movement plus its outbox notice.
func (s *inventoryServiceImpl) post(ctx context.Context, tx *gorm.DB, part *model.Part, e ledgerEntry) (*model.Movement, error) {
	e.PartID = part.ID
	e.BrandID = part.BrandID

	mv, err := recordMovement(ctx, tx, e)
	if err != nil {
		return nil, err
	}

	err = enqueueEvent(ctx, tx, s.outboxRepo, aggregatePart, part.ID, EventStockMoved, map[string]any{
		"part_id":     part.ID,
		"movement_id": mv.ID,
		"direction":   mv.Direction,
		"reason":      mv.Reason,
		"quantity":    mv.Quantity,
	})
	if err != nil {
		return nil, err
	}
	return mv, nil
}

func priceOr(p *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if p != nil {
		return *p
	}
	return fallback
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
