package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vmachado/lojapos-backend/api/responses"
	gatewaywebhook "github.com/vmachado/lojapos-backend/internal/webhooks/gateway"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
	"github.com/vmachado/lojapos-backend/pkg/logger"
)

type GatewayWebhookService interface {
	HandleNotification(ctx context.Context, notification *gatewaywebhook.Notification) error
}

type gatewayWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// GatewayWebhook handles payment notifications from the checkout
// provider. The provider retries until it receives a 2xx.
func GatewayWebhook(svc GatewayWebhookService, guard gatewayWebhookGuard, signingSecret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		notification := parseNotification(payload, r)
		if notification == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "notification payload missing"))
			return
		}

		if signingSecret != "" {
			if !validateGatewaySignature(r, notification.Data.ID, signingSecret) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "invalid gateway signature"))
				return
			}
		}

		eventID := notification.EventID()
		if eventID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "notification id missing"))
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleNotification(ctx, notification); err != nil {
			_ = guard.Delete(ctx, eventID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("gateway notification %s processed", eventID))
		}
		responses.WriteSuccess(w, nil)
	}
}

// parseNotification reads the JSON body and falls back to the query
// parameters the provider repeats on the callback URL.
func parseNotification(payload []byte, r *http.Request) *gatewaywebhook.Notification {
	var notification gatewaywebhook.Notification
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &notification); err == nil && notification.Data.ID != "" {
			return &notification
		}
	}

	query := r.URL.Query()
	dataID := strings.TrimSpace(query.Get("data.id"))
	if dataID == "" {
		dataID = strings.TrimSpace(query.Get("id"))
	}
	if dataID == "" {
		return nil
	}
	kind := strings.TrimSpace(query.Get("type"))
	if kind == "" {
		kind = strings.TrimSpace(query.Get("topic"))
	}
	return &gatewaywebhook.Notification{
		Type: kind,
		Data: gatewaywebhook.NotificationData{ID: dataID},
	}
}

// validateGatewaySignature checks the provider's X-Signature header:
// "ts=<unix>,v1=<hmac>" where the HMAC-SHA256 manifest is
// "id:<data.id>;ts:<ts>;".
func validateGatewaySignature(r *http.Request, dataID, secret string) bool {
	header := r.Header.Get("X-Signature")
	if header == "" || secret == "" {
		return false
	}

	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "ts":
			ts = value
		case "v1":
			v1 = value
		}
	}
	if ts == "" || v1 == "" {
		return false
	}

	manifest := fmt.Sprintf("id:%s;ts:%s;", dataID, ts)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(v1))
}
