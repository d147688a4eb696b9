// Package payments tracks settlement attempts against orders, both
// counter payments and gateway-settled ones confirmed by webhook.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vmachado/lojapos-backend/pkg/db"
	"github.com/vmachado/lojapos-backend/pkg/db/models"
	"github.com/vmachado/lojapos-backend/pkg/enums"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
	"github.com/vmachado/lojapos-backend/pkg/logger"
	"github.com/vmachado/lojapos-backend/pkg/outbox"
	"github.com/vmachado/lojapos-backend/pkg/outbox/payloads"
)

// Service manages payment attempts.
type Service interface {
	// Settle records a counter payment as confirmed in one step.
	Settle(ctx context.Context, input SettleInput) (*models.Payment, error)

	// CreatePending opens a gateway payment awaiting its webhook.
	CreatePending(ctx context.Context, input PendingInput) (*models.Payment, error)

	// ConfirmByGatewayReference settles the pending payment the
	// provider's notification points at. Replayed notifications are
	// no-ops.
	ConfirmByGatewayReference(ctx context.Context, reference string, payload json.RawMessage) (*models.Payment, error)

	// FailByGatewayReference marks the pending payment failed.
	FailByGatewayReference(ctx context.Context, reference, reason string) (*models.Payment, error)

	Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
}

// SettleInput records an immediately confirmed counter payment.
type SettleInput struct {
	OrderID     uuid.UUID
	Method      enums.PaymentMethod
	AmountCents int
}

// PendingInput opens a gateway payment.
type PendingInput struct {
	OrderID          uuid.UUID
	AmountCents      int
	GatewayReference string
	GatewayPayload   json.RawMessage
}

// ServiceParams packages the dependencies for the payments service.
type ServiceParams struct {
	Repo   *Repository
	DB     *db.Client
	Outbox *outbox.Service
	Logger *logger.Logger
}

type service struct {
	repo   *Repository
	db     *db.Client
	outbox *outbox.Service
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires the payments service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:   params.Repo,
		db:     params.DB,
		outbox: params.Outbox,
		logg:   params.Logger,
		now:    time.Now,
	}, nil
}

func (s *service) Settle(ctx context.Context, input SettleInput) (*models.Payment, error) {
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if input.Method.RequiresGateway() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway payments settle through their webhook")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	confirmedAt := s.now()
	payment := &models.Payment{
		ID:          uuid.New(),
		OrderID:     input.OrderID,
		Method:      input.Method,
		Status:      enums.PaymentStatusConfirmed,
		AmountCents: input.AmountCents,
		ConfirmedAt: &confirmedAt,
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, payment); err != nil {
			return err
		}
		return s.emitConfirmed(ctx, tx, payment)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording payment")
	}
	return payment, nil
}

func (s *service) CreatePending(ctx context.Context, input PendingInput) (*models.Payment, error) {
	if input.GatewayReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	reference := input.GatewayReference
	payment := &models.Payment{
		ID:               uuid.New(),
		OrderID:          input.OrderID,
		Method:           enums.PaymentMethodGateway,
		Status:           enums.PaymentStatusPending,
		AmountCents:      input.AmountCents,
		GatewayReference: &reference,
		GatewayPayload:   input.GatewayPayload,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "gateway reference already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "opening gateway payment")
	}
	return payment, nil
}

func (s *service) ConfirmByGatewayReference(ctx context.Context, reference string, payload json.RawMessage) (*models.Payment, error) {
	payment, err := s.findByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if payment.Status == enums.PaymentStatusConfirmed {
		return payment, nil
	}
	if payment.Status != enums.PaymentStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not pending")
	}

	confirmedAt := s.now()
	payment.Status = enums.PaymentStatusConfirmed
	payment.ConfirmedAt = &confirmedAt
	if len(payload) > 0 {
		payment.GatewayPayload = payload
	}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Save(ctx, payment); err != nil {
			return err
		}
		return s.emitConfirmed(ctx, tx, payment)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirming payment")
	}
	s.logg.Info(s.logg.WithField(ctx, "gateway_reference", reference), "gateway payment confirmed")
	return payment, nil
}

func (s *service) FailByGatewayReference(ctx context.Context, reference, reason string) (*models.Payment, error) {
	payment, err := s.findByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if payment.Status == enums.PaymentStatusFailed {
		return payment, nil
	}
	if payment.Status != enums.PaymentStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not pending")
	}

	payment.Status = enums.PaymentStatusFailed
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Save(ctx, payment); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentFailedEvent{
				PaymentID: payment.ID,
				OrderID:   payment.OrderID,
				Method:    payment.Method,
				Reason:    reason,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failing payment")
	}
	return payment, nil
}

func (s *service) Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment")
	}
	return payment, nil
}

func (s *service) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	rows, err := s.repo.ListForOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing payments")
	}
	return rows, nil
}

func (s *service) findByReference(ctx context.Context, reference string) (*models.Payment, error) {
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference required")
	}
	payment, err := s.repo.FindByGatewayReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment")
	}
	return payment, nil
}

func (s *service) emitConfirmed(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentConfirmed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Data: payloads.PaymentConfirmedEvent{
			PaymentID:   payment.ID,
			OrderID:     payment.OrderID,
			Method:      payment.Method,
			AmountCents: payment.AmountCents,
			ConfirmedAt: *payment.ConfirmedAt,
		},
		Version:    1,
		OccurredAt: *payment.ConfirmedAt,
	})
}
