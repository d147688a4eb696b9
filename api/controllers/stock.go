package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vmachado/lojapos-backend/api/responses"
	"github.com/vmachado/lojapos-backend/api/validators"
	inventorysvc "github.com/vmachado/lojapos-backend/internal/inventory"
	"github.com/vmachado/lojapos-backend/pkg/enums"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
	"github.com/vmachado/lojapos-backend/pkg/logger"
)

type recordMovementRequest struct {
	ProductID string  `json:"product_id" validate:"required"`
	Kind      string  `json:"kind" validate:"required,oneof=entry exit"`
	Origin    string  `json:"origin" validate:"required"`
	Quantity  int     `json:"quantity" validate:"required,min=1"`
	Notes     *string `json:"notes,omitempty"`
	Reference *string `json:"reference,omitempty"`
}

// StockMovementRecord appends a manual entry to the movement log.
func StockMovementRecord(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload recordMovementRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.PathUUID(payload.ProductID, "product_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind, err := enums.ParseMovementKind(strings.TrimSpace(payload.Kind))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind"))
			return
		}
		origin, err := enums.ParseMovementOrigin(strings.TrimSpace(payload.Origin))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid origin"))
			return
		}

		movement, err := svc.RecordMovement(r.Context(), inventorysvc.RecordMovementInput{
			ProductID:  productID,
			Kind:       kind,
			Origin:     origin,
			Quantity:   payload.Quantity,
			Notes:      payload.Notes,
			Reference:  payload.Reference,
			OccurredAt: time.Now().UTC(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, movement)
	}
}

func StockMovementList(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 20, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseQueryUUID(r, "product_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ListMovements(r.Context(), inventorysvc.ListMovementsInput{
			ProductID: productID,
			Limit:     limit,
			Cursor:    r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// StockAvailability reports live on-hand and sellable quantities.
func StockAvailability(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.PathUUID(chi.URLParam(r, "productId"), "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		onHand, err := svc.OnHand(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		available, err := svc.AvailableStock(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"product_id":    productID,
			"on_hand_qty":   onHand,
			"available_qty": available,
		})
	}
}
