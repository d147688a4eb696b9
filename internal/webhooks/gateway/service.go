package gatewaywebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/vmachado/lojapos-backend/pkg/db/models"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
	"github.com/vmachado/lojapos-backend/pkg/gateway"
	"github.com/vmachado/lojapos-backend/pkg/logger"
)

type gatewayClient interface {
	GetPayment(ctx context.Context, paymentID string) (*gateway.PaymentStatus, error)
}

type paymentSettler interface {
	ConfirmByGatewayReference(ctx context.Context, reference string, payload json.RawMessage) (*models.Payment, error)
	FailByGatewayReference(ctx context.Context, reference, reason string) (*models.Payment, error)
}

type ServiceParams struct {
	Gateway  gatewayClient
	Payments paymentSettler
	Logger   *logger.Logger
}

type Service struct {
	gateway  gatewayClient
	payments paymentSettler
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway client required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		gateway:  params.Gateway,
		payments: params.Payments,
		logg:     params.Logger,
	}, nil
}

// Notification is the provider's webhook body. The provider also
// repeats type and data.id as query parameters on the callback URL.
type Notification struct {
	ID     json.Number      `json:"id"`
	Action string           `json:"action"`
	Type   string           `json:"type"`
	Data   NotificationData `json:"data"`
}

type NotificationData struct {
	ID string `json:"id"`
}

// EventID derives the dedup key for a notification.
func (n *Notification) EventID() string {
	if id := strings.TrimSpace(n.ID.String()); id != "" {
		return id
	}
	return strings.TrimSpace(n.Data.ID)
}

// HandleNotification resolves a payment notification against the
// provider and settles the matching pending payment. Notifications for
// other resources and non-final statuses are acked without action so
// the provider stops retrying.
func (s *Service) HandleNotification(ctx context.Context, notification *Notification) error {
	if notification == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification required")
	}
	if kind := strings.ToLower(notification.Type); kind != "" && kind != "payment" {
		return nil
	}

	paymentID := strings.TrimSpace(notification.Data.ID)
	if paymentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id missing")
	}

	status, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		if pkgerrors.As(err).Code() == pkgerrors.CodeNotFound {
			// Test notifications reference payments that never existed.
			s.logg.Warn(s.logg.WithField(ctx, "gateway_payment_id", paymentID), "notification for unknown gateway payment")
			return nil
		}
		return err
	}

	reference := strings.TrimSpace(status.ExternalReference)
	if reference == "" {
		s.logg.Warn(s.logg.WithField(ctx, "gateway_payment_id", paymentID), "gateway payment has no external reference")
		return nil
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"gateway_payment_id": paymentID,
		"gateway_reference":  reference,
		"gateway_status":     status.Status,
	})

	switch strings.ToLower(status.Status) {
	case "approved":
		payload, err := json.Marshal(status)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode gateway payload")
		}
		if _, err := s.payments.ConfirmByGatewayReference(ctx, reference, payload); err != nil {
			return s.ackIfSettled(ctx, err)
		}
		s.logg.Info(ctx, "gateway payment confirmed via webhook")
		return nil
	case "rejected", "cancelled", "charged_back":
		if _, err := s.payments.FailByGatewayReference(ctx, reference, status.Status); err != nil {
			return s.ackIfSettled(ctx, err)
		}
		s.logg.Info(ctx, "gateway payment failed via webhook")
		return nil
	default:
		// pending, in_process, authorized: wait for the final status.
		return nil
	}
}

// ackIfSettled swallows errors that mean the payment already reached a
// final state through another path. Returning them would only make the
// provider retry a notification that can never succeed.
func (s *Service) ackIfSettled(ctx context.Context, err error) error {
	switch pkgerrors.As(err).Code() {
	case pkgerrors.CodeNotFound, pkgerrors.CodeStateConflict:
		s.logg.Warn(ctx, "webhook notification ignored: "+pkgerrors.As(err).Message())
		return nil
	default:
		return err
	}
}
