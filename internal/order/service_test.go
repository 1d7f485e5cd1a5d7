package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-purchase/internal/logger"
	"ms-purchase/internal/models"
	"ms-purchase/internal/order"
	"ms-purchase/internal/reservation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDB struct{ mock.Mock }

func (m *mockDB) CreateOrderGraph(ctx context.Context, o *models.Order, lines []models.OrderLine, tickets []models.Ticket, payment *models.Payment) error {
	args := m.Called(ctx, o, lines, tickets, payment)
	return args.Error(0)
}

func (m *mockDB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockDB) GetOrderLines(ctx context.Context, orderID string) ([]models.OrderLine, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OrderLine), args.Error(1)
}

func (m *mockDB) GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Ticket), args.Error(1)
}

func (m *mockDB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *mockDB) GetOrdersWithLinesByUser(ctx context.Context, userID string) ([]models.Order, map[string][]models.OrderLine, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).([]models.Order), args.Get(1).(map[string][]models.OrderLine), args.Error(2)
}

type mockCoordinator struct{ mock.Mock }

func (m *mockCoordinator) ReserveCart(ctx context.Context, lines []models.CartLine) (*reservation.OrderDraft, error) {
	args := m.Called(ctx, lines)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.OrderDraft), args.Error(1)
}

type mockReleaser struct{ mock.Mock }

func (m *mockReleaser) Release(ctx context.Context, ticketTypeID string, qty int) error {
	args := m.Called(ctx, ticketTypeID, qty)
	return args.Error(0)
}

type mockGateway struct{ mock.Mock }

func (m *mockGateway) InitiatePayment(ctx context.Context, orderID string, amountCents int64, method string) (string, error) {
	args := m.Called(ctx, orderID, amountCents, method)
	return args.String(0), args.Error(1)
}

type mockKafka struct{ mock.Mock }

func (m *mockKafka) PublishOrderCreated(o models.Order) error {
	args := m.Called(o)
	return args.Error(0)
}

type mockExpiry struct{ mock.Mock }

func (m *mockExpiry) MarkReservation(ctx context.Context, orderID string, ttl time.Duration) error {
	args := m.Called(ctx, orderID, ttl)
	return args.Error(0)
}

type mockPromo struct{ mock.Mock }

func (m *mockPromo) ResolvePromo(ctx context.Context, code string, totalCents int64) (int64, error) {
	args := m.Called(ctx, code, totalCents)
	return args.Get(0).(int64), args.Error(1)
}

type staticSigner struct{}

func (staticSigner) Payload(ticketID string) string { return ticketID + ".sig" }

func draftFixture() *reservation.OrderDraft {
	return &reservation.OrderDraft{
		OrderID: "order-1",
		Lines: []reservation.DraftLine{
			{TicketTypeID: "type-a", Quantity: 2, UnitCents: 2500},
			{TicketTypeID: "type-b", Quantity: 1, UnitCents: 9000},
		},
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}
}

func newService(db *mockDB, coord *mockCoordinator, rel *mockReleaser, pr *mockPromo, gw *mockGateway, kafka *mockKafka, exp *mockExpiry) *order.OrderService {
	return order.NewOrderService(db, coord, rel, pr, gw, kafka, exp, staticSigner{}, logger.NewLogger())
}

func TestPurchaseMaterializesOrderGraph(t *testing.T) {
	db := new(mockDB)
	coord := new(mockCoordinator)
	rel := new(mockReleaser)
	pr := new(mockPromo)
	gw := new(mockGateway)
	kafka := new(mockKafka)
	exp := new(mockExpiry)

	coord.On("ReserveCart", mock.Anything, mock.Anything).Return(draftFixture(), nil)
	db.On("CreateOrderGraph", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	exp.On("MarkReservation", mock.Anything, "order-1", mock.Anything).Return(nil)
	kafka.On("PublishOrderCreated", mock.Anything).Return(nil)
	gw.On("InitiatePayment", mock.Anything, "order-1", int64(14000), "card").Return("https://pay.example/order-1", nil)

	svc := newService(db, coord, rel, pr, gw, kafka, exp)
	resp, err := svc.Purchase(context.Background(), "user-9", models.PurchaseRequest{
		Lines: []models.CartLine{
			{TicketTypeID: "type-a", Quantity: 2},
			{TicketTypeID: "type-b", Quantity: 1},
		},
	})
	require.NoError(t, err)

	// 2 * 2500 + 1 * 9000, no promo.
	assert.Equal(t, int64(14000), resp.TotalCents)
	assert.Zero(t, resp.DiscountCents)
	assert.Equal(t, "https://pay.example/order-1", resp.PaymentRedirect)
	require.Len(t, resp.Lines, 2)
	assert.Equal(t, string(models.TicketReserved), resp.Lines[0].Status)

	// One ticket per unit, each carrying its own signed payload.
	createCall := db.Calls[0]
	tickets := createCall.Arguments.Get(3).([]models.Ticket)
	require.Len(t, tickets, 3)
	for _, tk := range tickets {
		assert.Equal(t, models.TicketReserved, tk.Status)
		assert.Equal(t, tk.TicketID+".sig", tk.QRCode)
		assert.Equal(t, "user-9", tk.OwnerID)
	}

	payment := createCall.Arguments.Get(4).(*models.Payment)
	assert.Equal(t, models.PaymentPending, payment.Status)
	assert.Equal(t, int64(14000), payment.AmountCents)

	rel.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchaseAppliesClampedPromoDiscount(t *testing.T) {
	db := new(mockDB)
	coord := new(mockCoordinator)
	rel := new(mockReleaser)
	pr := new(mockPromo)
	gw := new(mockGateway)
	kafka := new(mockKafka)
	exp := new(mockExpiry)

	coord.On("ReserveCart", mock.Anything, mock.Anything).Return(draftFixture(), nil)
	// Resolver offers more than the cart is worth; the discount clamps to total.
	pr.On("ResolvePromo", mock.Anything, "BIGSALE", int64(14000)).Return(int64(99999), nil)
	db.On("CreateOrderGraph", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	exp.On("MarkReservation", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	kafka.On("PublishOrderCreated", mock.Anything).Return(nil)
	gw.On("InitiatePayment", mock.Anything, "order-1", int64(0), "card").Return("", nil)

	svc := newService(db, coord, rel, pr, gw, kafka, exp)
	resp, err := svc.Purchase(context.Background(), "user-9", models.PurchaseRequest{
		Lines:     []models.CartLine{{TicketTypeID: "type-a", Quantity: 2}},
		PromoCode: "BIGSALE",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(14000), resp.DiscountCents)
	assert.Zero(t, resp.TotalCents)
}

func TestPurchaseReleasesReservationWhenMaterializeFails(t *testing.T) {
	db := new(mockDB)
	coord := new(mockCoordinator)
	rel := new(mockReleaser)
	pr := new(mockPromo)
	gw := new(mockGateway)
	kafka := new(mockKafka)
	exp := new(mockExpiry)

	coord.On("ReserveCart", mock.Anything, mock.Anything).Return(draftFixture(), nil)
	db.On("CreateOrderGraph", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("constraint violation"))
	rel.On("Release", mock.Anything, "type-a", 2).Return(nil)
	rel.On("Release", mock.Anything, "type-b", 1).Return(nil)

	svc := newService(db, coord, rel, pr, gw, kafka, exp)
	_, err := svc.Purchase(context.Background(), "user-9", models.PurchaseRequest{
		Lines: []models.CartLine{{TicketTypeID: "type-a", Quantity: 2}},
	})
	require.Error(t, err)

	rel.AssertExpectations(t)
	gw.AssertNotCalled(t, "InitiatePayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	kafka.AssertNotCalled(t, "PublishOrderCreated", mock.Anything)
}

func TestPurchaseSurvivesGatewayOutage(t *testing.T) {
	db := new(mockDB)
	coord := new(mockCoordinator)
	rel := new(mockReleaser)
	pr := new(mockPromo)
	gw := new(mockGateway)
	kafka := new(mockKafka)
	exp := new(mockExpiry)

	coord.On("ReserveCart", mock.Anything, mock.Anything).Return(draftFixture(), nil)
	db.On("CreateOrderGraph", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	exp.On("MarkReservation", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	kafka.On("PublishOrderCreated", mock.Anything).Return(nil)
	gw.On("InitiatePayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("gateway down"))

	svc := newService(db, coord, rel, pr, gw, kafka, exp)
	resp, err := svc.Purchase(context.Background(), "user-9", models.PurchaseRequest{
		Lines: []models.CartLine{{TicketTypeID: "type-a", Quantity: 2}},
	})

	// The order stands with payment PENDING; only the redirect is missing.
	require.NoError(t, err)
	assert.Empty(t, resp.PaymentRedirect)
	rel.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
}

func TestListOrdersByUserFillsEmptyLines(t *testing.T) {
	db := new(mockDB)
	orders := []models.Order{{OrderID: "order-1", UserID: "user-9"}, {OrderID: "order-2", UserID: "user-9"}}
	lines := map[string][]models.OrderLine{
		"order-1": {{OrderID: "order-1", TicketTypeID: "type-a", Quantity: 1, UnitCents: 2500}},
	}
	db.On("GetOrdersWithLinesByUser", mock.Anything, "user-9").Return(orders, lines, nil)

	svc := newService(db, new(mockCoordinator), new(mockReleaser), new(mockPromo), new(mockGateway), new(mockKafka), new(mockExpiry))
	got, err := svc.ListOrdersByUser(context.Background(), "user-9")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Len(t, got[0].Lines, 1)
	assert.NotNil(t, got[1].Lines)
	assert.Empty(t, got[1].Lines)
}
