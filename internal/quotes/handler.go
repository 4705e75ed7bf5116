package quotes

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-costing/internal/costing"
	"github.com/odyssey-erp/odyssey-costing/internal/glosa"
	"github.com/odyssey-erp/odyssey-costing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-costing/internal/sales"
)

// Handler exposes quote editing sessions over JSON. Lines are addressed by
// their 1-based order.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers quote routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{quoteID}", h.showQuote)
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.start)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.show)
			r.Delete("/", h.discard)
			r.Post("/save", h.save)
			r.Post("/glosas", h.addGlosa)
			r.Route("/glosas/{order}", func(r chi.Router) {
				r.Delete("/", h.removeGlosa)
				r.Put("/amount", h.setAmount)
				r.Delete("/amount", h.clearAmount)
				r.Put("/discount", h.setDiscount)
				r.Patch("/description", h.rename)
				r.Post("/move", h.move)
			})
		})
	})
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := h.decode(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.Start(r.Context(), req)
	if err != nil {
		h.respondError(w, "start quote session", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, view)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondError(w, "get quote session", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) discard(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Discard(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.respondError(w, "discard quote session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addGlosa(w http.ResponseWriter, r *http.Request) {
	var req DescriptionRequest
	if err := h.decode(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.AddGlosa(r.Context(), chi.URLParam(r, "sessionID"), req.Description)
	h.respondView(w, "add glosa", view, err)
}

func (h *Handler) removeGlosa(w http.ResponseWriter, r *http.Request) {
	i, ok := lineIndex(w, r)
	if !ok {
		return
	}
	view, err := h.service.RemoveGlosa(r.Context(), chi.URLParam(r, "sessionID"), i)
	h.respondView(w, "remove glosa", view, err)
}

func (h *Handler) setAmount(w http.ResponseWriter, r *http.Request) {
	i, ok := lineIndex(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if err := h.decode(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.SetManual(r.Context(), chi.URLParam(r, "sessionID"), i, req.Amount)
	h.respondView(w, "set glosa amount", view, err)
}

func (h *Handler) clearAmount(w http.ResponseWriter, r *http.Request) {
	i, ok := lineIndex(w, r)
	if !ok {
		return
	}
	view, err := h.service.ClearManual(r.Context(), chi.URLParam(r, "sessionID"), i)
	h.respondView(w, "clear glosa amount", view, err)
}

func (h *Handler) setDiscount(w http.ResponseWriter, r *http.Request) {
	i, ok := lineIndex(w, r)
	if !ok {
		return
	}
	var req DiscountRequest
	if err := h.decode(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.SetDiscount(r.Context(), chi.URLParam(r, "sessionID"), i, req.DiscountPct)
	h.respondView(w, "set glosa discount", view, err)
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	i, ok := lineIndex(w, r)
	if !ok {
		return
	}
	var req DescriptionRequest
	if err := h.decode(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.RenameGlosa(r.Context(), chi.URLParam(r, "sessionID"), i, req.Description)
	h.respondView(w, "rename glosa", view, err)
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	i, ok := lineIndex(w, r)
	if !ok {
		return
	}
	var req MoveRequest
	if err := h.decode(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.MoveGlosa(r.Context(), chi.URLParam(r, "sessionID"), i, req.To-1)
	h.respondView(w, "move glosa", view, err)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	var req SaveQuoteRequest
	if err := h.decode(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	quote, err := h.service.Save(r.Context(), chi.URLParam(r, "sessionID"), req, actorID(r))
	if err != nil {
		h.respondError(w, "save quote", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, quote)
}

func (h *Handler) showQuote(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "quoteID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid quote ID", chi.URLParam(r, "quoteID"))
		return
	}
	quote, err := h.service.GetQuote(r.Context(), id)
	if err != nil {
		h.respondError(w, "get quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) respondView(w http.ResponseWriter, op string, view *View, err error) {
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) error {
	if err := httpx.DecodeJSON(w, r, dest); err != nil {
		return err
	}
	if err := h.validator.Struct(dest); err != nil {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, glosa.ErrInvalidGlosa),
		errors.Is(err, glosa.ErrIndexOutOfRange),
		errors.Is(err, glosa.ErrNegativeTarget),
		errors.Is(err, ErrInvalidDiscount),
		errors.Is(err, costing.ErrInvalidPercent):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrNotFound),
		errors.Is(err, sales.ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, ErrAlreadyExists):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrDuplicate, err))
	case errors.Is(err, ErrUnresolvedConflict),
		errors.Is(err, ErrUnbalanced),
		errors.Is(err, ErrStaleTarget):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

// lineIndex converts the 1-based {order} parameter to a slice index.
func lineIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	order, err := strconv.Atoi(chi.URLParam(r, "order"))
	if err != nil || order <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid glosa order", chi.URLParam(r, "order"))
		return 0, false
	}
	return order - 1, true
}

// actorID reads the caller id set by the upstream gateway; zero when absent.
func actorID(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}
