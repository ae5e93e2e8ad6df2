package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"ticket-settlement/internal/services/gateway"
	"ticket-settlement/internal/store"
	"ticket-settlement/models"
)

// MockStore implements store.Store for service tests.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) TicketType(ctx context.Context, id string) (*models.TicketType, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TicketType), args.Error(1)
}

func (m *MockStore) CommitInventory(ctx context.Context, ticketTypeID string, quantity int) error {
	args := m.Called(ctx, ticketTypeID, quantity)
	return args.Error(0)
}

func (m *MockStore) FindPromo(ctx context.Context, code, eventID string) (*models.PromoCode, error) {
	args := m.Called(ctx, code, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PromoCode), args.Error(1)
}

func (m *MockStore) ConsumePromoUse(ctx context.Context, code, eventID string) (bool, error) {
	args := m.Called(ctx, code, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) CreateIntent(ctx context.Context, rec *models.PaymentIntentRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockStore) IntentByProviderID(ctx context.Context, providerIntentID string) (*models.PaymentIntentRecord, error) {
	args := m.Called(ctx, providerIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentIntentRecord), args.Error(1)
}

func (m *MockStore) MarkIntentStatus(ctx context.Context, providerIntentID, st string) error {
	args := m.Called(ctx, providerIntentID, st)
	return args.Error(0)
}

func (m *MockStore) OrderByProviderID(ctx context.Context, providerIntentID string) (*models.Order, error) {
	args := m.Called(ctx, providerIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockStore) CreateOrder(ctx context.Context, o *models.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockStore) CreateTicket(ctx context.Context, t *models.Ticket) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockStore) TicketByQR(ctx context.Context, qrCode string) (*models.Ticket, error) {
	args := m.Called(ctx, qrCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockStore) TicketsByOrder(ctx context.Context, orderID string) ([]*models.Ticket, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Ticket), args.Error(1)
}

func (m *MockStore) ConsumeTicket(ctx context.Context, qrCode string) (bool, error) {
	args := m.Called(ctx, qrCode)
	return args.Bool(0), args.Error(1)
}

// Atomic runs fn against the mock itself so expectations cover the
// transactional calls too.
func (m *MockStore) Atomic(_ context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

// MockGateway implements gateway.PaymentGateway for service tests.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateIntent(ctx context.Context, req *gateway.IntentRequest) (*gateway.Intent, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Intent), args.Error(1)
}

func (m *MockGateway) CheckIntent(ctx context.Context, providerIntentID string) (*gateway.Intent, error) {
	args := m.Called(ctx, providerIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Intent), args.Error(1)
}

func (m *MockGateway) VerifySignature(body []byte, signature string) bool {
	args := m.Called(body, signature)
	return args.Bool(0)
}

func (m *MockGateway) SetNoticeChannel(ch chan *gateway.PaymentNotice) {
	m.Called(ch)
}

func (m *MockGateway) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockNotifier implements Notifier for service tests.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) TicketsIssued(userID string, order *models.Order, qrCodes []string) {
	m.Called(userID, order, qrCodes)
}

func (m *MockNotifier) TicketRedeemed(t *models.Ticket) {
	m.Called(t)
}

func (m *MockNotifier) OpsAlert(message string, fields map[string]any) {
	m.Called(message, fields)
}
