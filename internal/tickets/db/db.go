package db

import (
	"context"
	"fmt"

	"ms-ticket-issuance/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return &ticket, nil
}

// CreateTicket inserts a ticket without any quota check.
func (d *DB) CreateTicket(ctx context.Context, ticket models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(&ticket).Exec(ctx)
	return classify(err)
}

// CreateTicketWithinQuota counts the tickets already held by ticket.VATIN,
// passes that count to admit and inserts the ticket only if admit returns nil.
// The count and the insert share one transaction. On postgres a transaction
// scoped advisory lock keyed on the VATIN serialises concurrent callers for
// the same VATIN, so the count can never be stale when the insert happens.
func (d *DB) CreateTicketWithinQuota(ctx context.Context, ticket models.Ticket, admit func(existing int) error) error {
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if d.Bun.Dialect().Name() == dialect.PG {
			if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", ticket.VATIN); err != nil {
				return classify(fmt.Errorf("acquire vatin lock: %w", err))
			}
		}

		existing, err := tx.NewSelect().
			Model((*models.Ticket)(nil)).
			Where("vatin = ?", ticket.VATIN).
			Count(ctx)
		if err != nil {
			return classify(err)
		}

		if err := admit(existing); err != nil {
			return err
		}

		_, err = tx.NewInsert().Model(&ticket).Exec(ctx)
		return classify(err)
	})
	if err != nil {
		return classify(err)
	}
	return nil
}
