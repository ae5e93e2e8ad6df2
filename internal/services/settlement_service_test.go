package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ticket-settlement/internal/services/gateway"
	"ticket-settlement/internal/status"
	"ticket-settlement/models"
)

func setupTestSettlementService() (*SettlementService, redismock.ClientMock, *MockStore, *MockGateway, *MockNotifier) {
	db, rmock := redismock.NewClientMock()
	st := &MockStore{}
	gw := &MockGateway{}
	notifier := &MockNotifier{}

	service := NewSettlementService(db, st, gw, notifier, 24*time.Hour)

	return service, rmock, st, gw, notifier
}

func settledIntent() *models.PaymentIntentRecord {
	return &models.PaymentIntentRecord{
		ProviderIntentID: "pi_1",
		EventID:          "ev-1",
		UserID:           "user-1",
		TicketTypeID:     "tt-1",
		Quantity:         2,
		Amount:           4000,
		Currency:         "USD",
		Status:           models.IntentStatusCreated,
	}
}

func TestSettlementService_Settle_IssuesOrderAndTickets(t *testing.T) {
	service, rmock, st, _, notifier := setupTestSettlementService()
	defer rmock.ClearExpect()

	ctx := context.Background()

	rmock.ExpectSetNX("webhook:intent:pi_1", 1, 24*time.Hour).SetVal(true)
	rmock.ExpectHSet("payment_intent:pi_1", "status", models.IntentStatusSucceeded).SetVal(1)

	st.On("OrderByProviderID", mock.Anything, "pi_1").Return(nil, status.ErrNotFound)
	st.On("IntentByProviderID", mock.Anything, "pi_1").Return(settledIntent(), nil)
	st.On("CommitInventory", mock.Anything, "tt-1", 2).Return(nil)
	st.On("CreateOrder", mock.Anything, mock.AnythingOfType("*models.Order")).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Order).ID = "ord-1"
	}).Return(nil)
	st.On("CreateTicket", mock.Anything, mock.AnythingOfType("*models.Ticket")).Return(nil)
	st.On("MarkIntentStatus", mock.Anything, "pi_1", models.IntentStatusSucceeded).Return(nil)

	notifier.On("TicketsIssued", "user-1", mock.AnythingOfType("*models.Order"), mock.AnythingOfType("[]string")).Return()

	err := service.Settle(ctx, "pi_1")

	require.NoError(t, err)
	st.AssertNumberOfCalls(t, "CreateOrder", 1)
	st.AssertNumberOfCalls(t, "CreateTicket", 2)
	notifier.AssertExpectations(t)
}

func TestSettlementService_Settle_DuplicateDeliveryIsNoop(t *testing.T) {
	service, rmock, st, _, notifier := setupTestSettlementService()
	defer rmock.ClearExpect()

	ctx := context.Background()

	rmock.ExpectSetNX("webhook:intent:pi_1", 1, 24*time.Hour).SetVal(false)
	rmock.ExpectHSet("payment_intent:pi_1", "status", models.IntentStatusSucceeded).SetVal(0)

	st.On("OrderByProviderID", mock.Anything, "pi_1").Return(&models.Order{
		ID:                "ord-1",
		PaymentProviderID: "pi_1",
	}, nil)

	err := service.Settle(ctx, "pi_1")

	require.NoError(t, err)
	st.AssertNotCalled(t, "CommitInventory", mock.Anything, mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "CreateTicket", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "TicketsIssued", mock.Anything, mock.Anything, mock.Anything)
}

func TestSettlementService_Settle_UnknownIntentAcked(t *testing.T) {
	service, rmock, st, _, _ := setupTestSettlementService()
	defer rmock.ClearExpect()

	ctx := context.Background()

	rmock.ExpectSetNX("webhook:intent:pi_x", 1, 24*time.Hour).SetVal(true)

	st.On("OrderByProviderID", mock.Anything, "pi_x").Return(nil, status.ErrNotFound)
	st.On("IntentByProviderID", mock.Anything, "pi_x").Return(nil, status.ErrNotFound)

	err := service.Settle(ctx, "pi_x")

	require.NoError(t, err)
	st.AssertNotCalled(t, "CommitInventory", mock.Anything, mock.Anything, mock.Anything)
}

func TestSettlementService_Settle_ConsumesPromoUse(t *testing.T) {
	service, rmock, st, _, notifier := setupTestSettlementService()
	defer rmock.ClearExpect()

	ctx := context.Background()

	rmock.ExpectSetNX("webhook:intent:pi_1", 1, 24*time.Hour).SetVal(true)
	rmock.ExpectHSet("payment_intent:pi_1", "status", models.IntentStatusSucceeded).SetVal(1)

	intent := settledIntent()
	intent.Quantity = 1
	intent.PromoCode = "HALF"

	st.On("OrderByProviderID", mock.Anything, "pi_1").Return(nil, status.ErrNotFound)
	st.On("IntentByProviderID", mock.Anything, "pi_1").Return(intent, nil)
	st.On("CommitInventory", mock.Anything, "tt-1", 1).Return(nil)
	st.On("CreateOrder", mock.Anything, mock.AnythingOfType("*models.Order")).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Order).ID = "ord-1"
	}).Return(nil)
	st.On("CreateTicket", mock.Anything, mock.AnythingOfType("*models.Ticket")).Return(nil)
	st.On("ConsumePromoUse", mock.Anything, "HALF", "ev-1").Return(true, nil)
	st.On("MarkIntentStatus", mock.Anything, "pi_1", models.IntentStatusSucceeded).Return(nil)

	notifier.On("TicketsIssued", "user-1", mock.Anything, mock.Anything).Return()

	err := service.Settle(ctx, "pi_1")

	require.NoError(t, err)
	st.AssertExpectations(t)
}

func TestSettlementService_Settle_OvercommitEscalates(t *testing.T) {
	service, rmock, st, _, notifier := setupTestSettlementService()
	defer rmock.ClearExpect()

	ctx := context.Background()

	rmock.ExpectSetNX("webhook:intent:pi_1", 1, 24*time.Hour).SetVal(true)
	rmock.ExpectHSet("payment_intent:pi_1", "status", models.IntentStatusRequiresRefund).SetVal(1)

	st.On("OrderByProviderID", mock.Anything, "pi_1").Return(nil, status.ErrNotFound)
	st.On("IntentByProviderID", mock.Anything, "pi_1").Return(settledIntent(), nil)
	st.On("CommitInventory", mock.Anything, "tt-1", 2).Return(status.ErrInsufficientInventory)
	// the refund flag lands on the intent row; the session cache expires
	st.On("MarkIntentStatus", mock.Anything, "pi_1", models.IntentStatusRequiresRefund).Return(nil)

	notifier.On("OpsAlert", mock.AnythingOfType("string"), mock.Anything).Return()

	// money already captured: the delivery must be acknowledged, not retried
	err := service.Settle(ctx, "pi_1")

	require.NoError(t, err)
	st.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "CreateTicket", mock.Anything, mock.Anything)
	notifier.AssertExpectations(t)
}

func TestSettlementService_HandleWebhook_InvalidSignature(t *testing.T) {
	service, rmock, st, gw, _ := setupTestSettlementService()
	defer rmock.ClearExpect()

	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	gw.On("VerifySignature", body, "bad-sig").Return(false)

	err := service.HandleWebhook(context.Background(), body, "bad-sig")

	assert.ErrorIs(t, err, status.ErrInvalidSignature)
	st.AssertNotCalled(t, "OrderByProviderID", mock.Anything, mock.Anything)
}

func TestSettlementService_HandleWebhook_MalformedBody(t *testing.T) {
	service, rmock, _, gw, _ := setupTestSettlementService()
	defer rmock.ClearExpect()

	body := []byte(`not json`)
	gw.On("VerifySignature", body, "sig").Return(true)

	err := service.HandleWebhook(context.Background(), body, "sig")

	assert.ErrorIs(t, err, status.ErrMalformedEvent)
}

func TestSettlementService_HandleWebhook_SucceededWithoutIntentID(t *testing.T) {
	service, rmock, _, gw, _ := setupTestSettlementService()
	defer rmock.ClearExpect()

	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{}}}`)
	gw.On("VerifySignature", body, "sig").Return(true)

	err := service.HandleWebhook(context.Background(), body, "sig")

	assert.ErrorIs(t, err, status.ErrMalformedEvent)
}

func TestSettlementService_HandleWebhook_UnknownTypeAcked(t *testing.T) {
	service, rmock, st, gw, _ := setupTestSettlementService()
	defer rmock.ClearExpect()

	body := []byte(`{"id":"evt_1","type":"charge.refunded","data":{"object":{"id":"pi_1"}}}`)
	gw.On("VerifySignature", body, "sig").Return(true)

	err := service.HandleWebhook(context.Background(), body, "sig")

	require.NoError(t, err)
	st.AssertNotCalled(t, "OrderByProviderID", mock.Anything, mock.Anything)
}

func TestSettlementService_HandleWebhook_FailedEvent(t *testing.T) {
	service, rmock, st, gw, _ := setupTestSettlementService()
	defer rmock.ClearExpect()

	body := []byte(`{"id":"evt_1","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_1"}}}`)
	gw.On("VerifySignature", body, "sig").Return(true)

	rmock.ExpectHSet("payment_intent:pi_1", "status", models.IntentStatusFailed).SetVal(1)
	st.On("MarkIntentStatus", mock.Anything, "pi_1", models.IntentStatusFailed).Return(nil)

	err := service.HandleWebhook(context.Background(), body, "sig")

	require.NoError(t, err)
	st.AssertExpectations(t)
}

func TestSettlementService_SettleFromNotice_ReverifiesBeforeSettling(t *testing.T) {
	service, rmock, st, gw, _ := setupTestSettlementService()
	defer rmock.ClearExpect()

	ctx := context.Background()

	// notice claims success but the provider says otherwise; nothing settles
	gw.On("CheckIntent", mock.Anything, "pi_1").Return(&gateway.Intent{
		ID:     "pi_1",
		Status: "processing",
	}, nil)

	err := service.SettleFromNotice(ctx, &gateway.PaymentNotice{
		ProviderIntentID: "pi_1",
		Status:           "succeeded",
	})

	require.NoError(t, err)
	st.AssertNotCalled(t, "OrderByProviderID", mock.Anything, mock.Anything)
}

func TestSettlementService_SettleFromNotice_Succeeded(t *testing.T) {
	service, rmock, st, gw, _ := setupTestSettlementService()
	defer rmock.ClearExpect()

	ctx := context.Background()

	gw.On("CheckIntent", mock.Anything, "pi_1").Return(&gateway.Intent{
		ID:     "pi_1",
		Status: "succeeded",
	}, nil)

	rmock.ExpectSetNX("webhook:intent:pi_1", 1, 24*time.Hour).SetVal(true)
	rmock.ExpectHSet("payment_intent:pi_1", "status", models.IntentStatusSucceeded).SetVal(0)

	st.On("OrderByProviderID", mock.Anything, "pi_1").Return(&models.Order{
		ID:                "ord-1",
		PaymentProviderID: "pi_1",
	}, nil)

	err := service.SettleFromNotice(ctx, &gateway.PaymentNotice{
		ProviderIntentID: "pi_1",
		Status:           "succeeded",
	})

	require.NoError(t, err)
	gw.AssertExpectations(t)
}
