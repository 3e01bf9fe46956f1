package db

import (
	"context"

	"ms-ticket-issuance/internal/models"
)

// GetTotalTicketsCount returns the total count of tickets in the database
func (d *DB) GetTotalTicketsCount(ctx context.Context) (int, error) {
	count, err := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Count(ctx)

	return count, classify(err)
}

// CountTicketsByVATIN returns how many tickets have been issued for vatin.
func (d *DB) CountTicketsByVATIN(ctx context.Context, vatin string) (int, error) {
	count, err := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("vatin = ?", vatin).
		Count(ctx)

	return count, classify(err)
}
