package tickets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"ms-ticket-issuance/internal/logger"
	"ms-ticket-issuance/internal/models"
	"ms-ticket-issuance/internal/tickets/db"
	"ms-ticket-issuance/internal/tickets/idgen"
	"ms-ticket-issuance/internal/tickets/quota"
)

const (
	maxVATINLength = 32
	maxNameLength  = 100

	// attempts made when a freshly generated id already exists
	maxIDAttempts = 3
)

type TicketDBLayer interface {
	CreateTicketWithinQuota(ctx context.Context, ticket models.Ticket, admit func(existing int) error) error
	GetTicketByID(ctx context.Context, ticketID string) (*models.Ticket, error)
	CountTicketsByVATIN(ctx context.Context, vatin string) (int, error)
	GetTotalTicketsCount(ctx context.Context) (int, error)
}

// CountCache caches the total ticket count.
type CountCache interface {
	Get(ctx context.Context) (int, bool, error)
	Set(ctx context.Context, count int) error
	Invalidate(ctx context.Context) error
}

type EventPublisher interface {
	PublishTicketIssued(ctx context.Context, event models.TicketIssuedEvent) error
}

type TicketService struct {
	DB     TicketDBLayer
	IDs    idgen.Generator
	Quota  *quota.Enforcer
	Cache  CountCache
	Events EventPublisher
	Logger *logger.Logger
	Now    func() time.Time
}

type IssueRequest struct {
	VATIN     string `json:"vatin"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type TicketDetails struct {
	Ticket     models.Ticket
	ViewerName string
}

type QuotaStatus struct {
	VATIN     string `json:"vatin"`
	Issued    int    `json:"issued"`
	Remaining int    `json:"remaining"`
	Limit     int    `json:"limit"`
}

func NewTicketService(db TicketDBLayer, log *logger.Logger) *TicketService {
	return &TicketService{
		DB:     db,
		IDs:    idgen.UUIDGenerator{},
		Quota:  quota.New(),
		Logger: log,
		Now:    time.Now,
	}
}

// IssueTicket validates req and persists a new ticket if the VATIN is still
// under its quota. The quota check and the insert are atomic per VATIN.
func (s *TicketService) IssueTicket(ctx context.Context, req IssueRequest) (*models.Ticket, error) {
	req = normalize(req)
	if err := validate(req); err != nil {
		return nil, err
	}

	var existing int
	admit := func(n int) error {
		existing = n
		return s.enforcer().Admit(n)
	}

	for attempt := 1; ; attempt++ {
		ticket := models.Ticket{
			ID:        s.ids().Generate(),
			VATIN:     req.VATIN,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			CreatedAt: s.now().UTC(),
		}

		err := s.DB.CreateTicketWithinQuota(ctx, ticket, admit)
		switch {
		case err == nil:
			s.afterIssue(ctx, ticket, existing+1)
			return &ticket, nil
		case errors.Is(err, quota.ErrQuotaExceeded):
			s.log().LogSecurity("QUOTA", fmt.Sprintf("rejected ticket for vatin %s: %d already issued", MaskVATIN(req.VATIN), existing))
			return nil, ErrQuotaExceeded
		case errors.Is(err, db.ErrDuplicateKey) && attempt < maxIDAttempts:
			s.log().Warn("TICKET", fmt.Sprintf("generated id %s already exists, retrying", ticket.ID))
			continue
		default:
			s.log().Error("TICKET", fmt.Sprintf("failed to issue ticket for vatin %s: %v", MaskVATIN(req.VATIN), err))
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
	}
}

// afterIssue runs the best-effort side effects of a successful issuance.
func (s *TicketService) afterIssue(ctx context.Context, ticket models.Ticket, issued int) {
	s.log().LogTicket("ISSUE", ticket.ID, fmt.Sprintf("issued ticket %d for vatin %s", issued, MaskVATIN(ticket.VATIN)))

	if s.Cache != nil {
		if err := s.Cache.Invalidate(ctx); err != nil {
			s.log().Warn("CACHE", fmt.Sprintf("failed to invalidate ticket count: %v", err))
		}
	}

	if s.Events != nil {
		event := models.TicketIssuedEvent{
			Type:      models.TicketIssuedEventType,
			TicketID:  ticket.ID,
			IssuedAt:  ticket.CreatedAt,
			Issued:    issued,
			Remaining: s.enforcer().Remaining(issued),
		}
		if err := s.Events.PublishTicketIssued(ctx, event); err != nil {
			s.log().Warn("KAFKA", fmt.Sprintf("failed to publish ticket issued event for %s: %v", ticket.ID, err))
		}
	}
}

// LookupTicket returns a ticket for an authenticated viewer.
func (s *TicketService) LookupTicket(ctx context.Context, ticketID string, viewer models.Viewer) (*TicketDetails, error) {
	if !viewer.Authenticated {
		return nil, ErrUnauthorized
	}

	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("ticket %s: %w", ticketID, ErrNotFound)
	}
	if err != nil {
		s.log().Error("TICKET", fmt.Sprintf("failed to load ticket %s: %v", ticketID, err))
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	s.log().Debug("TICKET", fmt.Sprintf("ticket %s viewed by %s", ticketID, viewer.Subject))
	return &TicketDetails{Ticket: *ticket, ViewerName: viewer.Name()}, nil
}

// GetTotalTicketsCount returns the number of tickets issued so far,
// served from the cache when one is configured.
func (s *TicketService) GetTotalTicketsCount(ctx context.Context) (int, error) {
	if s.Cache != nil {
		count, ok, err := s.Cache.Get(ctx)
		if err != nil {
			s.log().Warn("CACHE", fmt.Sprintf("ticket count cache read failed: %v", err))
		} else if ok {
			return count, nil
		}
	}

	count, err := s.DB.GetTotalTicketsCount(ctx)
	if err != nil {
		s.log().Error("TICKET", fmt.Sprintf("failed to count tickets: %v", err))
		return 0, fmt.Errorf("%w: %v", ErrStore, err)
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, count); err != nil {
			s.log().Warn("CACHE", fmt.Sprintf("ticket count cache write failed: %v", err))
		}
	}
	return count, nil
}

// CheckQuota reports how many tickets a VATIN holds and may still receive.
// The result is advisory; IssueTicket makes the binding decision.
func (s *TicketService) CheckQuota(ctx context.Context, vatin string) (*QuotaStatus, error) {
	vatin = strings.TrimSpace(vatin)
	if vatin == "" {
		verr := &ValidationError{}
		verr.add("vatin", "is required")
		return nil, verr
	}

	issued, err := s.DB.CountTicketsByVATIN(ctx, vatin)
	if err != nil {
		s.log().Error("TICKET", fmt.Sprintf("failed to count tickets for vatin %s: %v", MaskVATIN(vatin), err))
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	enforcer := s.enforcer()
	return &QuotaStatus{
		VATIN:     vatin,
		Issued:    issued,
		Remaining: enforcer.Remaining(issued),
		Limit:     enforcer.Max(),
	}, nil
}

// MaskVATIN hides all but the last three characters of a VATIN for logging.
func MaskVATIN(vatin string) string {
	n := utf8.RuneCountInString(vatin)
	if n <= 3 {
		return strings.Repeat("*", n)
	}
	runes := []rune(vatin)
	return strings.Repeat("*", n-3) + string(runes[n-3:])
}

func normalize(req IssueRequest) IssueRequest {
	return IssueRequest{
		VATIN:     strings.TrimSpace(req.VATIN),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
	}
}

func validate(req IssueRequest) error {
	verr := &ValidationError{}

	check := func(field, value string, max int) {
		switch {
		case value == "":
			verr.add(field, "is required")
		case utf8.RuneCountInString(value) > max:
			verr.add(field, fmt.Sprintf("must be at most %d characters", max))
		}
	}
	check("vatin", req.VATIN, maxVATINLength)
	check("firstName", req.FirstName, maxNameLength)
	check("lastName", req.LastName, maxNameLength)

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func (s *TicketService) enforcer() *quota.Enforcer {
	if s.Quota == nil {
		return quota.New()
	}
	return s.Quota
}

func (s *TicketService) ids() idgen.Generator {
	if s.IDs == nil {
		return idgen.UUIDGenerator{}
	}
	return s.IDs
}

func (s *TicketService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *TicketService) log() *logger.Logger {
	if s.Logger == nil {
		return discard
	}
	return s.Logger
}

var discard = logger.NewWithWriter(io.Discard, logger.FATAL)
