package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sweethome/ledger/internal/platform/httpx"
)

// CustomerDirectory resolves display names for receipts and the internal
// accounts kept out of revenue aggregates.
type CustomerDirectory interface {
	DisplayName(ctx context.Context, id int64) (string, error)
	InternalIDs(ctx context.Context) (map[int64]struct{}, error)
}

// Handler exposes the ledger over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	names     CustomerDirectory
	validate  *validator.Validate
	storeName string
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, names CustomerDirectory, storeName string) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		names:     names,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		storeName: storeName,
	}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.createSale)
	r.Post("/payments", h.createPayment)
	r.Get("/customers/{id}/ledger", h.customerLedger)
	r.Get("/customers/{id}/payments", h.listPayments)
	r.Post("/charges/{id}/void", h.voidCharge)
	r.Post("/charges/{id}/correct", h.correctCharge)
	r.Get("/ledger/summary", h.summary)
	r.Get("/ledger/overdue", h.overdue)
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var payload createSalePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	in, err := payload.toInput()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	sale, err := h.service.RecordSale(r.Context(), in)
	if err != nil {
		h.logger.Error("record sale", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	resp := saleResponse{Sale: sale}
	if h.names != nil {
		if name, err := h.names.DisplayName(r.Context(), in.CustomerID); err == nil {
			resp.Receipt = RenderReceipt(h.storeName, name, sale.Charges)
		}
	}
	httpx.JSON(w, http.StatusCreated, resp)
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var payload createPaymentPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	in, err := payload.toInput()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	outcome, err := h.service.ApplyPayment(r.Context(), in)
	if err != nil {
		h.logger.Error("apply payment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, outcome)
}

func (h *Handler) customerLedger(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf := time.Now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		asOf, err = time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request", "as_of must be YYYY-MM-DD")
			return
		}
	}

	stmt, err := h.service.Statement(r.Context(), id, asOf)
	if err != nil {
		h.logger.Error("customer ledger", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stmt)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payments, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		h.logger.Error("list payments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": payments})
}

func (h *Handler) voidCharge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload voidChargePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	if err := h.service.VoidCharge(r.Context(), id, payload.Reason); err != nil {
		h.logger.Error("void charge", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "voided"})
}

func (h *Handler) correctCharge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload correctChargePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	ch, err := h.service.CorrectCharge(r.Context(), id, CorrectChargeInput{
		Quantity:  payload.Quantity,
		UnitPrice: payload.UnitPrice,
	})
	if err != nil {
		h.logger.Error("correct charge", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ch)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	filter := SnapshotFilter{}
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request", "customer_id must be an integer")
			return
		}
		filter.CustomerID = id
	}
	if raw := r.URL.Query().Get("exclude_customers"); raw != "" {
		filter.ExcludeCustomerIDs = map[int64]struct{}{}
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Invalid request", "exclude_customers must be a comma separated list of ids")
				return
			}
			filter.ExcludeCustomerIDs[id] = struct{}{}
		}
	}

	// Internal accounts stay out of the totals unless the caller opts in.
	if h.names != nil && r.URL.Query().Get("include_internal") != "true" {
		internal, err := h.names.InternalIDs(r.Context())
		if err != nil {
			h.logger.Error("resolve internal accounts", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		if filter.ExcludeCustomerIDs == nil {
			filter.ExcludeCustomerIDs = internal
		} else {
			for id := range internal {
				filter.ExcludeCustomerIDs[id] = struct{}{}
			}
		}
	}

	snapshot, err := h.service.Summary(r.Context(), filter)
	if err != nil {
		h.logger.Error("ledger summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshot)
}

func (h *Handler) overdue(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}
	counts, err := h.service.OverdueCounts(r.Context(), asOf)
	if err != nil {
		h.logger.Error("overdue report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"as_of":  asOf.Format("2006-01-02"),
		"counts": counts,
	})
}

func pathID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s in path", ErrValidation, key)
	}
	return id, nil
}
