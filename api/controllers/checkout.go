package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vmachado/lojapos-backend/api/middleware"
	"github.com/vmachado/lojapos-backend/api/responses"
	"github.com/vmachado/lojapos-backend/api/validators"
	checkoutsvc "github.com/vmachado/lojapos-backend/internal/checkout"
	"github.com/vmachado/lojapos-backend/pkg/enums"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
	"github.com/vmachado/lojapos-backend/pkg/logger"
)

type checkoutRequest struct {
	Method       string  `json:"method" validate:"required"`
	CustomerName *string `json:"customer_name,omitempty"`
	PayerEmail   string  `json:"payer_email,omitempty" validate:"omitempty,email"`
}

type settleTableRequest struct {
	Method              string `json:"method" validate:"required"`
	DiscountCents       int    `json:"discount_cents" validate:"min=0"`
	AmountTenderedCents int    `json:"amount_tendered_cents" validate:"min=0"`
}

// Checkout converts the session's cart into a placed, paid order.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, err := sessionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(strings.TrimSpace(payload.Method))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		input := checkoutsvc.OnlineInput{
			SessionID:    sid,
			Method:       method,
			CustomerName: payload.CustomerName,
			PayerEmail:   strings.TrimSpace(payload.PayerEmail),
		}
		if raw := middleware.UserIDFromContext(r.Context()); raw != "" {
			if userID, parseErr := uuid.Parse(raw); parseErr == nil {
				input.UserID = &userID
			}
		}

		result, err := svc.ExecuteOnline(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// SettleTable closes a dine-in bill at the counter.
func SettleTable(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tableID, err := validators.PathUUID(chi.URLParam(r, "tableId"), "tableId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload settleTableRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(strings.TrimSpace(payload.Method))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		result, err := svc.SettleTable(r.Context(), checkoutsvc.TableSettleInput{
			TableID:             tableID,
			Method:              method,
			DiscountCents:       payload.DiscountCents,
			AmountTenderedCents: payload.AmountTenderedCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
