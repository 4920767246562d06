package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"mindbody-mcp/repository"

	"github.com/stretchr/testify/require"
)

type testStore struct {
	conn          *repository.Connection
	clients       *repository.SQLClientRepository
	sales         *repository.SQLSaleRepository
	appointments  *repository.SQLAppointmentRepository
	usage         *repository.SQLUsageRepository
	syncLog       *repository.SQLSyncLogRepository
	cache         *repository.SQLCacheRepository
	responseCache *repository.SQLResponseCacheRepository
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	conn, err := repository.OpenSQLite(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &testStore{
		conn:          conn,
		clients:       repository.NewClientRepository(conn, nil),
		sales:         repository.NewSaleRepository(conn, nil),
		appointments:  repository.NewAppointmentRepository(conn, nil),
		usage:         repository.NewUsageRepository(conn, nil),
		syncLog:       repository.NewSyncLogRepository(conn, nil),
		cache:         repository.NewCacheRepository(conn, nil),
		responseCache: repository.NewResponseCacheRepository(conn, nil),
	}
}

// fakeClock is a settable time source safe for concurrent readers
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var testEpoch = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

// listingBody builds a listing response with n records starting at id first
func listingBody(field string, first, n, total int, record func(id int) string) json.RawMessage {
	records := make([]string, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, record(first+i))
	}
	return json.RawMessage(fmt.Sprintf(
		`{"PaginationResponse":{"RequestedLimit":100,"RequestedOffset":%d,"PageSize":%d,"TotalResults":%d},"%s":[%s]}`,
		first, n, total, field, strings.Join(records, ",")))
}

func clientRecord(id int) string {
	return fmt.Sprintf(`{"Id":"%d","FirstName":"First%d","LastName":"Last%d","Email":"c%d@example.com","Status":"Active","Active":true}`, id, id, id, id)
}

func saleRecordOn(day string) func(id int) string {
	return func(id int) string {
		return fmt.Sprintf(`{"Id":%d,"ClientId":"c%d","SaleDateTime":"%sT10:00:00","LocationId":1,"Payments":[{"Amount":12.5}]}`, id, id, day)
	}
}
