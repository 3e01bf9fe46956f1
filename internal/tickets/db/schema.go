package db

import (
	"context"
	"fmt"

	"ms-ticket-issuance/internal/models"

	"github.com/uptrace/bun"
)

// CreateSchema creates the tickets table and its VATIN index from the model
// definition if they do not exist yet. Postgres deployments use the SQL
// migrations instead; this is meant for embedded databases.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.Ticket)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create tickets table: %w", err)
	}

	_, err = db.NewCreateIndex().
		Model((*models.Ticket)(nil)).
		Index("tickets_vatin_idx").
		Column("vatin").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create vatin index: %w", err)
	}
	return nil
}
