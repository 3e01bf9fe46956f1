package tickets_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	"ms-ticket-issuance/internal/models"
	"ms-ticket-issuance/internal/tickets/db"
	tickets "ms-ticket-issuance/internal/tickets/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupStore(t *testing.T) *db.DB {
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, db.CreateSchema(context.Background(), bunDB))

	return &db.DB{Bun: bunDB}
}

func TestConcurrentIssuanceRespectsQuota(t *testing.T) {
	store := setupStore(t)
	svc := tickets.NewTicketService(store, nil)
	ctx := context.Background()

	const attempts = 10
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		issued []*models.Ticket
		denied int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket, err := svc.IssueTicket(ctx, tickets.IssueRequest{
				VATIN:     "12345678901",
				FirstName: fmt.Sprintf("Guest%d", i),
				LastName:  "Horvat",
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				issued = append(issued, ticket)
			case errors.Is(err, tickets.ErrQuotaExceeded):
				denied++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, issued, 3)
	assert.Equal(t, attempts-3, denied)

	status, err := svc.CheckQuota(ctx, "12345678901")
	require.NoError(t, err)
	assert.Equal(t, 3, status.Issued)
	assert.Equal(t, 0, status.Remaining)

	ids := map[string]bool{}
	for _, ticket := range issued {
		assert.False(t, ids[ticket.ID], "duplicate id %s", ticket.ID)
		ids[ticket.ID] = true

		details, err := svc.LookupTicket(ctx, ticket.ID, models.Viewer{Authenticated: true, DisplayName: "Staff"})
		require.NoError(t, err)
		assert.Equal(t, ticket.FirstName, details.Ticket.FirstName)
	}

	total, err := svc.GetTotalTicketsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}
