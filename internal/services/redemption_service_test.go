package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ticket-settlement/internal/status"
	"ticket-settlement/models"
)

func setupTestRedemptionService() (*RedemptionService, *MockStore, *MockNotifier) {
	st := &MockStore{}
	notifier := &MockNotifier{}
	return NewRedemptionService(st, notifier), st, notifier
}

func freshTicket() *models.Ticket {
	return &models.Ticket{
		ID:          "tk-1",
		OrderID:     "ord-1",
		EventID:     "ev-1",
		OwnerUserID: "user-1",
		QRCode:      "TKT-ABC123",
	}
}

func TestRedemptionService_Redeem_Valid(t *testing.T) {
	service, st, notifier := setupTestRedemptionService()

	st.On("TicketByQR", mock.Anything, "TKT-ABC123").Return(freshTicket(), nil)
	st.On("ConsumeTicket", mock.Anything, "TKT-ABC123").Return(true, nil)
	notifier.On("TicketRedeemed", mock.AnythingOfType("*models.Ticket")).Return()

	result, err := service.Redeem(context.Background(), "TKT-ABC123")

	require.NoError(t, err)
	assert.True(t, result.Valid)
	require.NotNil(t, result.Ticket)
	assert.True(t, result.Ticket.IsScanned)
	assert.NotNil(t, result.Ticket.ScannedAt)
	notifier.AssertExpectations(t)
}

func TestRedemptionService_Redeem_NotFound(t *testing.T) {
	service, st, notifier := setupTestRedemptionService()

	st.On("TicketByQR", mock.Anything, "TKT-MISSING").Return(nil, status.ErrNotFound)

	result, err := service.Redeem(context.Background(), "TKT-MISSING")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonNotFound, result.Reason)
	notifier.AssertNotCalled(t, "TicketRedeemed", mock.Anything)
}

func TestRedemptionService_Redeem_AlreadyUsed(t *testing.T) {
	service, st, notifier := setupTestRedemptionService()

	scanned := time.Now().Add(-time.Minute)
	ticket := freshTicket()
	ticket.IsScanned = true
	ticket.ScannedAt = &scanned

	st.On("TicketByQR", mock.Anything, "TKT-ABC123").Return(ticket, nil)

	result, err := service.Redeem(context.Background(), "TKT-ABC123")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonAlreadyUsed, result.Reason)
	st.AssertNotCalled(t, "ConsumeTicket", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "TicketRedeemed", mock.Anything)
}

func TestRedemptionService_Redeem_LosesRaceToConcurrentScan(t *testing.T) {
	service, st, notifier := setupTestRedemptionService()

	// the read saw an unscanned ticket but the conditional update flipped
	// zero rows, meaning another scan got there first
	st.On("TicketByQR", mock.Anything, "TKT-ABC123").Return(freshTicket(), nil)
	st.On("ConsumeTicket", mock.Anything, "TKT-ABC123").Return(false, nil)

	result, err := service.Redeem(context.Background(), "TKT-ABC123")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonAlreadyUsed, result.Reason)
	notifier.AssertNotCalled(t, "TicketRedeemed", mock.Anything)
}

func TestRedemptionService_Redeem_StorageErrorPropagates(t *testing.T) {
	service, st, _ := setupTestRedemptionService()

	st.On("TicketByQR", mock.Anything, "TKT-ABC123").Return(nil, assert.AnError)

	result, err := service.Redeem(context.Background(), "TKT-ABC123")

	assert.Error(t, err)
	assert.Nil(t, result)
}
