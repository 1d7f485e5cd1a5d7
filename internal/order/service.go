package order

import (
	"context"
	"fmt"
	"time"

	"ms-purchase/internal/logger"
	"ms-purchase/internal/models"
	"ms-purchase/internal/promo"
	"ms-purchase/internal/reservation"

	"github.com/google/uuid"
)

type DBLayer interface {
	CreateOrderGraph(ctx context.Context, order *models.Order, lines []models.OrderLine, tickets []models.Ticket, payment *models.Payment) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderLines(ctx context.Context, orderID string) ([]models.OrderLine, error)
	GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error)
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	GetOrdersWithLinesByUser(ctx context.Context, userID string) ([]models.Order, map[string][]models.OrderLine, error)
}

type Coordinator interface {
	ReserveCart(ctx context.Context, lines []models.CartLine) (*reservation.OrderDraft, error)
}

// Releaser returns committed units to the ledger when materialization fails
// after the cart was reserved.
type Releaser interface {
	Release(ctx context.Context, ticketTypeID string, qty int) error
}

// Gateway is the outbound side of the payment collaborator.
type Gateway interface {
	InitiatePayment(ctx context.Context, orderID string, amountCents int64, method string) (string, error)
}

type KafkaPublisher interface {
	PublishOrderCreated(order models.Order) error
}

type ExpiryMarker interface {
	MarkReservation(ctx context.Context, orderID string, ttl time.Duration) error
}

type QRSigner interface {
	Payload(ticketID string) string
}

type OrderService struct {
	DB          DBLayer
	Coordinator Coordinator
	Ledger      Releaser
	Promo       promo.Resolver
	Gateway     Gateway
	Kafka       KafkaPublisher
	Expiry      ExpiryMarker
	QR          QRSigner
	Logger      *logger.Logger

	now func() time.Time
}

func NewOrderService(db DBLayer, coord Coordinator, ledger Releaser, resolver promo.Resolver, gateway Gateway, kafka KafkaPublisher, expiry ExpiryMarker, signer QRSigner, log *logger.Logger) *OrderService {
	return &OrderService{
		DB:          db,
		Coordinator: coord,
		Ledger:      ledger,
		Promo:       resolver,
		Gateway:     gateway,
		Kafka:       kafka,
		Expiry:      expiry,
		QR:          signer,
		Logger:      log,
		now:         time.Now,
	}
}

// Purchase reserves the cart, materializes the order graph and kicks off
// payment. The reservation is all-or-nothing; if anything after the
// reservation fails, every held unit goes straight back to the ledger before
// the error is returned.
func (s *OrderService) Purchase(ctx context.Context, userID string, req models.PurchaseRequest) (*models.PurchaseResponse, error) {
	draft, err := s.Coordinator.ReserveCart(ctx, req.Lines)
	if err != nil {
		return nil, err
	}

	order, payment, err := s.materialize(ctx, draft, userID, req.PromoCode)
	if err != nil {
		s.releaseDraft(ctx, draft)
		return nil, err
	}

	if err := s.Expiry.MarkReservation(ctx, order.OrderID, time.Until(order.ExpiresAt)); err != nil {
		s.Logger.Error("ORDER", fmt.Sprintf("failed to arm expiry key for %s: %v", order.OrderID, err))
	}

	if err := s.Kafka.PublishOrderCreated(*order); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("order created publish failed for %s: %v", order.OrderID, err))
	}

	redirect, err := s.Gateway.InitiatePayment(ctx, order.OrderID, payment.AmountCents, payment.Method)
	if err != nil {
		// Payment stays PENDING; the buyer can retry initiation until the
		// reservation TTL runs out and the sweeper reclaims.
		s.Logger.LogPayment("INITIATE", payment.PaymentID, fmt.Sprintf("gateway unavailable: %v", err))
		redirect = ""
	}

	resp := &models.PurchaseResponse{
		OrderID:         order.OrderID,
		TotalCents:      order.TotalCents,
		DiscountCents:   order.DiscountCents,
		ExpiresAt:       order.ExpiresAt,
		PaymentRedirect: redirect,
		Lines:           make([]models.LineStatus, len(draft.Lines)),
	}
	for i, line := range draft.Lines {
		resp.Lines[i] = models.LineStatus{
			TicketTypeID: line.TicketTypeID,
			Quantity:     line.Quantity,
			Status:       string(models.TicketReserved),
		}
	}

	s.Logger.LogOrder("PURCHASE", order.OrderID, fmt.Sprintf("order for %s totals %d cents", userID, order.TotalCents))
	return resp, nil
}

// materialize turns a reserved draft into the persisted order graph: the
// order row, its lines, one RESERVED ticket per unit with a signed QR
// payload, and a PENDING payment for the discounted total.
func (s *OrderService) materialize(ctx context.Context, draft *reservation.OrderDraft, userID, promoCode string) (*models.Order, *models.Payment, error) {
	var total int64
	for _, line := range draft.Lines {
		total += line.UnitCents * int64(line.Quantity)
	}

	var discount int64
	if promoCode != "" {
		resolved, err := s.Promo.ResolvePromo(ctx, promoCode, total)
		if err != nil {
			return nil, nil, fmt.Errorf("promo %q: %w", promoCode, err)
		}
		discount = promo.Clamp(resolved, total)
	}

	now := s.now()
	payment := &models.Payment{
		PaymentID:   uuid.NewString(),
		AmountCents: total - discount,
		Method:      "card",
		Status:      models.PaymentPending,
		CreatedAt:   now,
	}
	order := &models.Order{
		OrderID:       draft.OrderID,
		UserID:        userID,
		Status:        models.OrderReserved,
		PromoCode:     promoCode,
		DiscountCents: discount,
		TotalCents:    total - discount,
		PaymentID:     payment.PaymentID,
		CreatedAt:     now,
		ExpiresAt:     draft.ExpiresAt,
	}
	payment.OrderID = order.OrderID

	lines := make([]models.OrderLine, len(draft.Lines))
	var tickets []models.Ticket
	for i, line := range draft.Lines {
		lines[i] = models.OrderLine{
			OrderID:      order.OrderID,
			TicketTypeID: line.TicketTypeID,
			Quantity:     line.Quantity,
			UnitCents:    line.UnitCents,
		}
		for u := 0; u < line.Quantity; u++ {
			ticketID := uuid.NewString()
			tickets = append(tickets, models.Ticket{
				TicketID:     ticketID,
				OrderID:      order.OrderID,
				TicketTypeID: line.TicketTypeID,
				OwnerID:      userID,
				Status:       models.TicketReserved,
				QRCode:       s.QR.Payload(ticketID),
				PriceCents:   line.UnitCents,
				IssuedAt:     now,
			})
		}
	}

	if err := s.DB.CreateOrderGraph(ctx, order, lines, tickets, payment); err != nil {
		return nil, nil, fmt.Errorf("materialize order %s: %w", order.OrderID, err)
	}
	return order, payment, nil
}

// releaseDraft compensates a committed reservation whose order graph never
// made it to the database. No tickets exist yet, so releasing here cannot
// race a status-driven release path.
func (s *OrderService) releaseDraft(ctx context.Context, draft *reservation.OrderDraft) {
	for _, line := range draft.Lines {
		if err := s.Ledger.Release(ctx, line.TicketTypeID, line.Quantity); err != nil {
			s.Logger.Error("ORDER", fmt.Sprintf("compensating release of %s failed: %v", line.TicketTypeID, err))
		}
	}
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.DB.GetOrderByID(ctx, id)
}

func (s *OrderService) GetOrderLines(ctx context.Context, orderID string) ([]models.OrderLine, error) {
	return s.DB.GetOrderLines(ctx, orderID)
}

func (s *OrderService) GetOrderTickets(ctx context.Context, orderID string) ([]models.Ticket, error) {
	return s.DB.GetTicketsByOrder(ctx, orderID)
}

func (s *OrderService) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	return s.DB.GetTicketByID(ctx, id)
}

// OrderWithLines is the buyer-facing listing shape.
type OrderWithLines struct {
	models.Order
	Lines []models.OrderLine `json:"lines"`
}

func (s *OrderService) ListOrdersByUser(ctx context.Context, userID string) ([]OrderWithLines, error) {
	orders, linesByOrder, err := s.DB.GetOrdersWithLinesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	result := make([]OrderWithLines, len(orders))
	for i, order := range orders {
		lines := linesByOrder[order.OrderID]
		if lines == nil {
			lines = []models.OrderLine{}
		}
		result[i] = OrderWithLines{Order: order, Lines: lines}
	}
	return result, nil
}
