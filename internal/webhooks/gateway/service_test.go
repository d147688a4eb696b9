package gatewaywebhook

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vmachado/lojapos-backend/pkg/db/models"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
	"github.com/vmachado/lojapos-backend/pkg/gateway"
	"github.com/vmachado/lojapos-backend/pkg/logger"
)

type stubGateway struct {
	status *gateway.PaymentStatus
	err    error
	calls  int
}

func (s *stubGateway) GetPayment(_ context.Context, _ string) (*gateway.PaymentStatus, error) {
	s.calls++
	return s.status, s.err
}

type stubSettler struct {
	confirmed []string
	failed    []string
	payload   json.RawMessage
	err       error
}

func (s *stubSettler) ConfirmByGatewayReference(_ context.Context, reference string, payload json.RawMessage) (*models.Payment, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.confirmed = append(s.confirmed, reference)
	s.payload = payload
	return &models.Payment{}, nil
}

func (s *stubSettler) FailByGatewayReference(_ context.Context, reference, _ string) (*models.Payment, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.failed = append(s.failed, reference)
	return &models.Payment{}, nil
}

func newTestService(t *testing.T, gw *stubGateway, settler *stubSettler) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Gateway:  gw,
		Payments: settler,
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc
}

func TestService_ApprovedPaymentConfirms(t *testing.T) {
	gw := &stubGateway{status: &gateway.PaymentStatus{
		ID:                "12345",
		Status:            "approved",
		ExternalReference: "order-ref",
		Amount:            decimal.NewFromInt(42),
	}}
	settler := &stubSettler{}
	svc := newTestService(t, gw, settler)

	notification := &Notification{Type: "payment", Data: NotificationData{ID: "12345"}}
	if err := svc.HandleNotification(context.Background(), notification); err != nil {
		t.Fatalf("handle notification: %v", err)
	}
	if len(settler.confirmed) != 1 || settler.confirmed[0] != "order-ref" {
		t.Fatalf("expected confirmation for order-ref, got %v", settler.confirmed)
	}
	if len(settler.payload) == 0 {
		t.Fatalf("expected gateway payload stored on the payment")
	}
}

func TestService_RejectedPaymentFails(t *testing.T) {
	gw := &stubGateway{status: &gateway.PaymentStatus{
		ID:                "12345",
		Status:            "rejected",
		ExternalReference: "order-ref",
	}}
	settler := &stubSettler{}
	svc := newTestService(t, gw, settler)

	notification := &Notification{Type: "payment", Data: NotificationData{ID: "12345"}}
	if err := svc.HandleNotification(context.Background(), notification); err != nil {
		t.Fatalf("handle notification: %v", err)
	}
	if len(settler.failed) != 1 || settler.failed[0] != "order-ref" {
		t.Fatalf("expected failure for order-ref, got %v", settler.failed)
	}
}

func TestService_PendingStatusIsAckedWithoutAction(t *testing.T) {
	gw := &stubGateway{status: &gateway.PaymentStatus{
		ID:                "12345",
		Status:            "in_process",
		ExternalReference: "order-ref",
	}}
	settler := &stubSettler{}
	svc := newTestService(t, gw, settler)

	notification := &Notification{Type: "payment", Data: NotificationData{ID: "12345"}}
	if err := svc.HandleNotification(context.Background(), notification); err != nil {
		t.Fatalf("handle notification: %v", err)
	}
	if len(settler.confirmed) != 0 || len(settler.failed) != 0 {
		t.Fatalf("expected no settlement for a non-final status")
	}
}

func TestService_NonPaymentNotificationSkipsLookup(t *testing.T) {
	gw := &stubGateway{}
	svc := newTestService(t, gw, &stubSettler{})

	notification := &Notification{Type: "merchant_order", Data: NotificationData{ID: "99"}}
	if err := svc.HandleNotification(context.Background(), notification); err != nil {
		t.Fatalf("handle notification: %v", err)
	}
	if gw.calls != 0 {
		t.Fatalf("expected no gateway lookup for non-payment notifications")
	}
}

func TestService_UnknownGatewayPaymentIsAcked(t *testing.T) {
	gw := &stubGateway{err: pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")}
	settler := &stubSettler{}
	svc := newTestService(t, gw, settler)

	notification := &Notification{Type: "payment", Data: NotificationData{ID: "404"}}
	if err := svc.HandleNotification(context.Background(), notification); err != nil {
		t.Fatalf("expected ack for unknown payment, got %v", err)
	}
}

func TestService_AlreadySettledPaymentIsAcked(t *testing.T) {
	gw := &stubGateway{status: &gateway.PaymentStatus{
		ID:                "12345",
		Status:            "approved",
		ExternalReference: "order-ref",
	}}
	settler := &stubSettler{err: pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not pending")}
	svc := newTestService(t, gw, settler)

	notification := &Notification{Type: "payment", Data: NotificationData{ID: "12345"}}
	if err := svc.HandleNotification(context.Background(), notification); err != nil {
		t.Fatalf("expected ack for settled payment, got %v", err)
	}
}

func TestNotification_EventIDPrefersTopLevelID(t *testing.T) {
	notification := &Notification{ID: json.Number("777"), Data: NotificationData{ID: "12345"}}
	if got := notification.EventID(); got != "777" {
		t.Fatalf("expected event id 777, got %s", got)
	}
	notification = &Notification{Data: NotificationData{ID: "12345"}}
	if got := notification.EventID(); got != "12345" {
		t.Fatalf("expected event id 12345, got %s", got)
	}
}
