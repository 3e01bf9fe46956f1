package models

import "time"

const TicketIssuedEventType = "ticket.issued"

// TicketIssuedEvent is published after a ticket has been persisted.
// It never carries the taxpayer identifier.
type TicketIssuedEvent struct {
	Type      string    `json:"type"`
	TicketID  string    `json:"ticket_id"`
	IssuedAt  time.Time `json:"issued_at"`
	Issued    int       `json:"issued_for_vatin"`
	Remaining int       `json:"remaining_for_vatin"`
}
