package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"mindbody-mcp/driver"
	"mindbody-mcp/mocks"
	"mindbody-mcp/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestAppointmentService(t *testing.T, clock *fakeClock) (*AppointmentService, *mocks.MockAPIRequester, *testStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPIRequester(ctrl)
	store := newTestStore(t)

	cache := NewEntityCache(store.cache, nil)
	cache.SetClock(clock.Now)

	svc := NewAppointmentService(api, cache, store.appointments, 0, 0, nil)
	svc.SetClock(clock.Now)
	return svc, api, store
}

const appointmentsBody = `{
	"PaginationResponse": {"RequestedLimit": 100, "RequestedOffset": 0, "PageSize": 2, "TotalResults": 2},
	"Appointments": [
		{"Id": 501, "ClientId": "42", "StaffId": 7, "LocationId": 1, "SessionTypeId": 3, "Status": "Booked",
		 "StartDateTime": "2024-03-11T09:00:00", "EndDateTime": "2024-03-11T10:00:00"},
		{"Id": 502, "ClientId": "43", "StaffId": 7, "LocationId": 1, "SessionTypeId": 3, "Status": "Confirmed",
		 "StartDateTime": "2024-03-12T09:00:00", "EndDateTime": "2024-03-12T10:00:00"}
	]
}`

func TestAppointmentService_GetAppointments(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(testEpoch)
	svc, api, store := newTestAppointmentService(t, clock)

	api.EXPECT().Request(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req models.APIRequest) (json.RawMessage, error) {
			assert.Equal(t, driver.EndpointStaffAppointments, req.Endpoint)
			assert.Equal(t, "2024-03-11T00:00:00", req.Params["request.startDate"])
			assert.Equal(t, "2024-03-12T23:59:59", req.Params["request.endDate"])
			assert.Equal(t, []int{7}, req.Params["request.staffIds"])
			assert.Nil(t, req.Params["request.clientId"])
			assert.Nil(t, req.Params["request.locationIds"])
			assert.Equal(t, DefaultListLimit, req.Params["request.limit"])
			return json.RawMessage(appointmentsBody), nil
		}).
		Times(1)

	q := AppointmentQuery{StartDate: "2024-03-11", EndDate: "2024-03-12", StaffIDs: []int{7}}
	result, err := svc.GetAppointments(ctx, q)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	require.Len(t, result.Appointments, 2)
	assert.Equal(t, "501", result.Appointments[0].ID)
	assert.Equal(t, 2, result.Pagination.TotalResults)

	count, err := store.appointments.CountAppointments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// a repeat inside the TTL is served from the cache
	clock.Advance(time.Minute)
	result, err = svc.GetAppointments(ctx, q)
	require.NoError(t, err)
	assert.True(t, result.Cached)
	assert.Len(t, result.Appointments, 2)

	// past the TTL it goes upstream again
	clock.Advance(DefaultAppointmentTTL)
	api.EXPECT().Request(gomock.Any(), gomock.Any()).Return(json.RawMessage(appointmentsBody), nil)
	result, err = svc.GetAppointments(ctx, q)
	require.NoError(t, err)
	assert.False(t, result.Cached)
}

func TestAppointmentService_GetAppointments_Validation(t *testing.T) {
	tests := map[string]struct {
		query AppointmentQuery
		field string
	}{
		"bad_start_date":   {query: AppointmentQuery{StartDate: "03/11/2024", EndDate: "2024-03-12"}, field: "start_date"},
		"missing_end":      {query: AppointmentQuery{StartDate: "2024-03-11"}, field: "end_date"},
		"end_before_start": {query: AppointmentQuery{StartDate: "2024-03-12", EndDate: "2024-03-11"}, field: "end_date"},
		"limit_too_large":  {query: AppointmentQuery{StartDate: "2024-03-11", EndDate: "2024-03-12", Limit: 201}, field: "limit"},
		"negative_limit":   {query: AppointmentQuery{StartDate: "2024-03-11", EndDate: "2024-03-12", Limit: -1}, field: "limit"},
		"negative_offset":  {query: AppointmentQuery{StartDate: "2024-03-11", EndDate: "2024-03-12", Offset: -5}, field: "offset"},
		"bad_staff_id":     {query: AppointmentQuery{StartDate: "2024-03-11", EndDate: "2024-03-12", StaffIDs: []int{4, -1}}, field: "staff_ids[1]"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			svc, _, _ := newTestAppointmentService(t, newFakeClock(testEpoch))
			_, err := svc.GetAppointments(context.Background(), tc.query)
			require.ErrorIs(t, err, models.ErrValidation)

			var ve *models.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestAppointmentService_GetBookableItems(t *testing.T) {
	ctx := context.Background()
	svc, api, store := newTestAppointmentService(t, newFakeClock(testEpoch))

	api.EXPECT().Request(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req models.APIRequest) (json.RawMessage, error) {
			assert.Equal(t, driver.EndpointBookableItems, req.Endpoint)
			assert.Equal(t, []int{3, 4}, req.Params["request.sessionTypeIds"])
			assert.Equal(t, 50, req.Params["request.limit"])
			_, hasStart := req.Params["request.startDate"]
			assert.False(t, hasStart)
			return json.RawMessage(`{
				"PaginationResponse": {"TotalResults": 2},
				"Availabilities": [
					{"Id": 9001, "Staff": {"Id": 7}, "Location": {"Id": 1}, "SessionType": {"Id": 3},
					 "StartDateTime": "2024-03-11T09:00:00", "EndDateTime": "2024-03-11T12:00:00"},
					{"Staff": {"Id": 8}, "Location": {"Id": 1}, "SessionType": {"Id": 4},
					 "StartDateTime": "2024-03-11T13:00:00", "EndDateTime": "2024-03-11T15:00:00"}
				]
			}`), nil
		})

	result, err := svc.GetBookableItems(ctx, BookableItemQuery{SessionTypeIDs: []int{3, 4}, Limit: 50})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "9001", result.Items[0].ID)
	assert.Equal(t, "8-4-1-1710162000", result.Items[1].ID)

	count, err := store.appointments.CountBookableItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAppointmentService_GetBookableItems_Validation(t *testing.T) {
	tests := map[string]BookableItemQuery{
		"no_session_types": {},
		"half_date_range":  {SessionTypeIDs: []int{1}, StartDate: "2024-03-11"},
		"bad_limit":        {SessionTypeIDs: []int{1}, Limit: 500},
	}

	for name, q := range tests {
		t.Run(name, func(t *testing.T) {
			svc, _, _ := newTestAppointmentService(t, newFakeClock(testEpoch))
			_, err := svc.GetBookableItems(context.Background(), q)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}
