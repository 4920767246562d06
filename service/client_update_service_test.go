package service

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"mindbody-mcp/driver"
	"mindbody-mcp/mocks"
	"mindbody-mcp/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestClientUpdateService(t *testing.T) (*ClientUpdateService, *mocks.MockAPIRequester, *testStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPIRequester(ctrl)
	store := newTestStore(t)
	svc := NewClientUpdateService(api, store.clients, nil)
	svc.SetClock(newFakeClock(testEpoch).Now)
	return svc, api, store
}

func seedClient(t *testing.T, store *testStore, raw string) {
	t.Helper()
	client, err := models.ParseClient(json.RawMessage(raw), testEpoch)
	require.NoError(t, err)
	require.NoError(t, store.clients.SaveClient(context.Background(), client))
}

func TestClientUpdateService_DryRunMakesNoUpstreamCall(t *testing.T) {
	svc, _, store := newTestClientUpdateService(t)
	seedClient(t, store, `{"Id":"42","FirstName":"Ada","Email":"ada@example.com","Active":true}`)

	result, err := svc.UpdateClient(context.Background(), "42", map[string]any{
		"Email":     "ada@lovelace.dev",
		"FirstName": "Ada",
	}, true, false)
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.False(t, result.Applied)
	assert.True(t, result.Known)
	require.Len(t, result.Changes, 2)

	assert.Equal(t, "Email", result.Changes[0].Field)
	assert.Equal(t, "ada@example.com", result.Changes[0].Current)
	assert.True(t, result.Changes[0].Changed)

	assert.Equal(t, "FirstName", result.Changes[1].Field)
	assert.False(t, result.Changes[1].Changed)
}

func TestClientUpdateService_DryRunForUnknownClient(t *testing.T) {
	svc, _, _ := newTestClientUpdateService(t)

	result, err := svc.UpdateClient(context.Background(), "99", map[string]any{"Email": "x@example.com"}, true, false)
	require.NoError(t, err)
	assert.False(t, result.Known)
	assert.Nil(t, result.Changes[0].Current)
	assert.True(t, result.Changes[0].Changed)
}

func TestClientUpdateService_ApplyPostsAndStores(t *testing.T) {
	ctx := context.Background()
	svc, api, store := newTestClientUpdateService(t)
	seedClient(t, store, `{"Id":"42","FirstName":"Ada","Email":"ada@example.com"}`)

	api.EXPECT().Request(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req models.APIRequest) (json.RawMessage, error) {
			assert.Equal(t, http.MethodPost, req.Method)
			assert.Equal(t, driver.EndpointUpdateClient, req.Endpoint)
			assert.True(t, req.Force)

			encoded, err := json.Marshal(req.Body)
			require.NoError(t, err)
			assert.JSONEq(t, `{"Client":{"Id":"42","Email":"ada@lovelace.dev"},"CrossRegionalUpdate":false}`, string(encoded))

			return json.RawMessage(`{"Client":{"Id":"42","FirstName":"Ada","Email":"ada@lovelace.dev"}}`), nil
		})

	result, err := svc.UpdateClient(ctx, "42", map[string]any{"Email": "ada@lovelace.dev"}, false, true)
	require.NoError(t, err)
	assert.True(t, result.Applied)
	require.NotNil(t, result.Client)

	stored, err := store.clients.GetClient(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "ada@lovelace.dev", stored.Email)
}

func TestClientUpdateService_Validation(t *testing.T) {
	tests := map[string]struct {
		clientID string
		fields   map[string]any
	}{
		"missing_id":   {clientID: " ", fields: map[string]any{"Email": "x"}},
		"no_fields":    {clientID: "1", fields: map[string]any{}},
		"id_in_fields": {clientID: "1", fields: map[string]any{"Id": "2"}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			svc, _, _ := newTestClientUpdateService(t)
			_, err := svc.UpdateClient(context.Background(), tc.clientID, tc.fields, false, false)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestClientUpdateService_UpstreamFailure(t *testing.T) {
	svc, api, _ := newTestClientUpdateService(t)

	api.EXPECT().Request(gomock.Any(), gomock.Any()).
		Return(nil, &models.UpstreamError{Method: "POST", Endpoint: driver.EndpointUpdateClient, StatusCode: 400, Body: "bad email"})

	_, err := svc.UpdateClient(context.Background(), "42", map[string]any{"Email": "nope"}, false, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUpstream)
}
