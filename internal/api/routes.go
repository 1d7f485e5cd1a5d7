package api

import (
	"net/http"

	"ms-purchase/internal/auth"

	"github.com/go-chi/chi/v5"
)

// Routes wires the engine's HTTP surface. The payment callback is the only
// unauthenticated route: the gateway signs in at the network layer, not with
// buyer tokens.
func (h *Handler) Routes(jwtSecret string) http.Handler {
	r := chi.NewRouter()

	r.Post("/api/payment/callback", h.PaymentCallback)
	r.Post("/api/checkin", h.CheckInTicket)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(jwtSecret))

		r.Route("/api", func(r chi.Router) {
			r.Post("/purchase", h.Purchase)

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.ListOrders)
				r.Get("/{orderId}", h.GetOrder)
				r.Get("/{orderId}/tickets", h.GetOrderTickets)
				r.Post("/{orderId}/cancel", h.CancelOrder)
			})

			r.Get("/tickets/{ticketId}/qr", h.TicketQR)
		})
	})

	return r
}
