package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-purchase/internal/auth"
	"ms-purchase/internal/checkin"
	"ms-purchase/internal/inventory"
	"ms-purchase/internal/logger"
	"ms-purchase/internal/models"
	"ms-purchase/internal/order"
	orderdb "ms-purchase/internal/order/db"
	"ms-purchase/internal/payment"
	"ms-purchase/internal/reservation"
	"ms-purchase/internal/utils"

	"github.com/go-chi/chi/v5"
)

// QRRenderer turns a stored payload into a scannable image.
type QRRenderer interface {
	EncodePNG(payload string) ([]byte, error)
}

type Handler struct {
	Orders   *order.OrderService
	Payments *payment.Service
	CheckIn  *checkin.Service
	QR       QRRenderer
	Logger   *logger.Logger
}

func NewHandler(orders *order.OrderService, payments *payment.Service, checkIn *checkin.Service, qrRenderer QRRenderer, log *logger.Logger) *Handler {
	return &Handler{
		Orders:   orders,
		Payments: payments,
		CheckIn:  checkIn,
		QR:       qrRenderer,
		Logger:   log,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

// Purchase handles POST /api/purchase: reserve the cart, materialize the
// order and hand back the payment redirect. Failures carry the offending
// line so the client can point at it.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req models.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", "BAD_REQUEST"))
		return
	}

	resp, err := h.Orders.Purchase(r.Context(), userID, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Purchase: %v", err))
		h.writePurchaseError(w, req, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("order created", resp))
}

// writePurchaseError maps a reservation failure to a response that keeps the
// all-or-nothing story readable: every line reported, the failing one marked.
func (h *Handler) writePurchaseError(w http.ResponseWriter, req models.PurchaseRequest, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL"

	switch {
	case errors.Is(err, inventory.ErrInsufficientInventory):
		status, code = http.StatusConflict, "INSUFFICIENT_INVENTORY"
	case errors.Is(err, inventory.ErrOutOfWindow):
		status, code = http.StatusConflict, "OUT_OF_WINDOW"
	case errors.Is(err, inventory.ErrInvalidQuantity):
		status, code = http.StatusBadRequest, "INVALID_QUANTITY"
	case errors.Is(err, inventory.ErrFrozen):
		status, code = http.StatusServiceUnavailable, "TYPE_FROZEN"
	case errors.Is(err, inventory.ErrNotFound):
		status, code = http.StatusNotFound, "TICKET_TYPE_NOT_FOUND"
	}

	resp := utils.ErrorResponse(err.Error(), code)

	var lineErr *reservation.LineError
	if errors.As(err, &lineErr) {
		lines := make([]models.LineStatus, len(req.Lines))
		for i, line := range req.Lines {
			lines[i] = models.LineStatus{
				TicketTypeID: line.TicketTypeID,
				Quantity:     line.Quantity,
				Status:       "rolled_back",
			}
		}
		if lineErr.Line >= 0 && lineErr.Line < len(lines) {
			lines[lineErr.Line].Status = "failed"
			lines[lineErr.Line].Error = code
		}
		resp.Data = lines
	}

	h.writeJSON(w, status, resp)
}

// PaymentCallback handles POST /api/payment/callback. The gateway retries
// deliveries, so anything already settled acks with 200 instead of erroring.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var cb models.PaymentCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid callback body", "BAD_REQUEST"))
		return
	}

	err := h.Payments.OnPaymentCallback(r.Context(), cb)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, utils.SuccessResponse("callback processed", nil))
	case errors.Is(err, payment.ErrConflictingCallback):
		// First result won; ack so the gateway stops retrying.
		h.writeJSON(w, http.StatusOK, utils.SuccessResponse("callback ignored, payment already settled", nil))
	case errors.Is(err, payment.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("unknown payment", "NOT_FOUND"))
	case errors.Is(err, payment.ErrInvalidResult):
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse(err.Error(), "INVALID_RESULT"))
	default:
		h.Logger.Error("API", fmt.Sprintf("PaymentCallback: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("callback processing failed", "INTERNAL"))
	}
}

// CheckInTicket handles POST /api/checkin. A rescan is a 200 with a distinct
// code, not an error: the attendant needs "already inside", not an alarm.
func (h *Handler) CheckInTicket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QRPayload string `json:"qr_payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QRPayload == "" {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid check-in body", "BAD_REQUEST"))
		return
	}

	summary, err := h.CheckIn.CheckIn(r.Context(), req.QRPayload)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, utils.SuccessResponse("checked in", summary))
	case errors.Is(err, checkin.ErrAlreadyCheckedIn):
		resp := utils.SuccessResponse("already checked in", summary)
		resp.Code = "ALREADY_CHECKED_IN"
		h.writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, checkin.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("ticket not found", "NOT_FOUND"))
	case errors.Is(err, checkin.ErrWrongStatus):
		h.writeJSON(w, http.StatusConflict, utils.ErrorResponse(err.Error(), "WRONG_STATUS"))
	default:
		h.Logger.Error("API", fmt.Sprintf("CheckInTicket: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("check-in failed", "INTERNAL"))
	}
}

// CancelOrder handles POST /api/orders/{orderId}/cancel.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	stored, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("order not found", "NOT_FOUND"))
		return
	}
	if stored.UserID != auth.UserID(r.Context()) {
		h.writeJSON(w, http.StatusForbidden, utils.ErrorResponse("not your order", "FORBIDDEN"))
		return
	}

	err = h.Payments.Cancel(r.Context(), orderID)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, utils.SuccessResponse("order cancelled", nil))
	case errors.Is(err, payment.ErrCancelNotAllowed):
		h.writeJSON(w, http.StatusConflict, utils.ErrorResponse(err.Error(), "CANCEL_NOT_ALLOWED"))
	case errors.Is(err, payment.ErrEventStarted):
		h.writeJSON(w, http.StatusConflict, utils.ErrorResponse("event has already started", "EVENT_STARTED"))
	case errors.Is(err, payment.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("order not found", "NOT_FOUND"))
	default:
		h.Logger.Error("API", fmt.Sprintf("CancelOrder: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("cancellation failed", "INTERNAL"))
	}
}

// GetOrder handles GET /api/orders/{orderId}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	stored, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("order not found", "NOT_FOUND"))
		return
	}
	if stored.UserID != auth.UserID(r.Context()) {
		h.writeJSON(w, http.StatusForbidden, utils.ErrorResponse("not your order", "FORBIDDEN"))
		return
	}

	lines, err := h.Orders.GetOrderLines(r.Context(), orderID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetOrder: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to load order", "INTERNAL"))
		return
	}

	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("order", order.OrderWithLines{Order: *stored, Lines: lines}))
}

// GetOrderTickets handles GET /api/orders/{orderId}/tickets.
func (h *Handler) GetOrderTickets(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	stored, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("order not found", "NOT_FOUND"))
		return
	}
	if stored.UserID != auth.UserID(r.Context()) {
		h.writeJSON(w, http.StatusForbidden, utils.ErrorResponse("not your order", "FORBIDDEN"))
		return
	}

	tickets, err := h.Orders.GetOrderTickets(r.Context(), orderID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetOrderTickets: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to load tickets", "INTERNAL"))
		return
	}

	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("tickets", tickets))
}

// ListOrders handles GET /api/orders for the authenticated buyer.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Orders.ListOrdersByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListOrders: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to load orders", "INTERNAL"))
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("orders", orders))
}

// TicketQR handles GET /api/tickets/{ticketId}/qr, rendering the stored
// payload as a PNG.
func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")

	ticket, err := h.Orders.GetTicket(r.Context(), ticketID)
	if err != nil {
		if errors.Is(err, orderdb.ErrNotFound) {
			h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("ticket not found", "NOT_FOUND"))
			return
		}
		h.Logger.Error("API", fmt.Sprintf("TicketQR: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to load ticket", "INTERNAL"))
		return
	}
	if ticket.OwnerID != auth.UserID(r.Context()) {
		h.writeJSON(w, http.StatusForbidden, utils.ErrorResponse("not your ticket", "FORBIDDEN"))
		return
	}

	png, err := h.QR.EncodePNG(ticket.QRCode)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("TicketQR: encode failed: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to render QR", "INTERNAL"))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Error("API", fmt.Sprintf("TicketQR: write failed: %v", err))
	}
}
