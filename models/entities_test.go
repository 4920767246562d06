package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClient(t *testing.T) {
	syncedAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	raw := json.RawMessage(`{"Id":"100015","FirstName":"Ada","LastName":"Lovelace","Email":"ada@example.com","Status":"Active","Active":true,"Extra":{"Nested":1}}`)

	client, err := ParseClient(raw, syncedAt)
	require.NoError(t, err)
	assert.Equal(t, "100015", client.ID)
	assert.Equal(t, "Ada", client.FirstName)
	assert.Equal(t, "Active", client.Status)
	assert.True(t, client.Active)
	assert.JSONEq(t, string(raw), string(client.Raw))
	assert.Equal(t, syncedAt, client.LastSyncedAt)
}

func TestParseClient_MissingID(t *testing.T) {
	_, err := ParseClient(json.RawMessage(`{"FirstName":"NoId"}`), time.Now())
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseSale_NumericIDsAndTotals(t *testing.T) {
	raw := json.RawMessage(`{"Id":987,"ClientId":"100015","LocationId":1,"SaleDateTime":"2024-01-05T10:30:00","Payments":[{"Amount":20.5},{"Amount":4.5}]}`)

	sale, err := ParseSale(raw, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "987", sale.ID)
	assert.Equal(t, "1", sale.LocationID)
	assert.Equal(t, time.Date(2024, 1, 5, 10, 30, 0, 0, time.UTC), sale.SaleDateTime)
	assert.InDelta(t, 25.0, sale.TotalAmount, 0.0001)
}

func TestParseBookableItem_SyntheticID(t *testing.T) {
	raw := json.RawMessage(`{"Staff":{"Id":7},"SessionType":{"Id":3},"Location":{"Id":1},"StartDateTime":"2024-01-05T10:00:00","EndDateTime":"2024-01-05T11:00:00"}`)

	item, err := ParseBookableItem(raw, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "7", item.StaffID)
	assert.Equal(t, "3", item.SessionTypeID)
	assert.Equal(t, "7-3-1-1704448800", item.ID)

	again, err := ParseBookableItem(raw, time.Now())
	require.NoError(t, err)
	assert.Equal(t, item.ID, again.ID)
}

func TestAPIRequest_Query(t *testing.T) {
	var nilLimit *int
	offset := 100
	req := APIRequest{Params: map[string]any{
		"request.limit":        nilLimit,
		"request.offset":       &offset,
		"request.clientStatus": "",
		"request.staffIds":     []int{1, 2},
		"request.clientId":     "abc",
		"request.missing":      nil,
	}}

	q := req.Query()
	assert.False(t, q.Has("request.limit"))
	assert.False(t, q.Has("request.clientStatus"))
	assert.False(t, q.Has("request.missing"))
	assert.Equal(t, "100", q.Get("request.offset"))
	assert.Equal(t, []string{"1", "2"}, q["request.staffIds"])
	assert.Equal(t, "abc", q.Get("request.clientId"))
}

func TestDecodeListPage(t *testing.T) {
	body := json.RawMessage(`{"PaginationResponse":{"RequestedLimit":100,"RequestedOffset":0,"PageSize":2,"TotalResults":150},"Clients":[{"Id":"1"},{"Id":"2"}]}`)

	page, err := DecodeListPage(body, "Clients")
	require.NoError(t, err)
	assert.Equal(t, 150, page.Pagination.TotalResults)
	assert.Len(t, page.Records, 2)

	empty, err := DecodeListPage(json.RawMessage(`{"Clients":null}`), "Clients")
	require.NoError(t, err)
	assert.Empty(t, empty.Records)
}
