package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Ticket is an admission ticket issued to a taxpayer. Rows are never
// updated or deleted once written.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID        string    `bun:"id,pk" json:"id"`
	VATIN     string    `bun:"vatin,notnull" json:"vatin"`
	FirstName string    `bun:"first_name,notnull" json:"first_name"`
	LastName  string    `bun:"last_name,notnull" json:"last_name"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
