package ticket_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"ms-ticket-issuance/internal/auth"
	"ms-ticket-issuance/internal/logger"
	"ms-ticket-issuance/internal/models"
	qr "ms-ticket-issuance/internal/tickets/qr_generator"
	tickets "ms-ticket-issuance/internal/tickets/service"
	pages "ms-ticket-issuance/internal/tickets/template"
	"ms-ticket-issuance/internal/utils"

	"github.com/go-chi/chi/v5"
)

const maxFormBytes = 64 << 10

type TicketService interface {
	IssueTicket(ctx context.Context, req tickets.IssueRequest) (*models.Ticket, error)
	LookupTicket(ctx context.Context, ticketID string, viewer models.Viewer) (*tickets.TicketDetails, error)
	GetTotalTicketsCount(ctx context.Context) (int, error)
	CheckQuota(ctx context.Context, vatin string) (*tickets.QuotaStatus, error)
}

type Handler struct {
	TicketService TicketService
	Encoder       *qr.Encoder
	Pages         *pages.Renderer
	BaseURL       string
	Logger        *logger.Logger
}

func NewHandler(svc TicketService, encoder *qr.Encoder, renderer *pages.Renderer, baseURL string, log *logger.Logger) *Handler {
	return &Handler{
		TicketService: svc,
		Encoder:       encoder,
		Pages:         renderer,
		BaseURL:       strings.TrimRight(baseURL, "/"),
		Logger:        log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Home)
	r.Post("/generate-ticket", h.IssueTicket)
	r.Get("/generate-ticket/{ticketId}", h.ShowTicketCode)
	r.Get("/generate-ticket/{ticketId}/qr.png", h.TicketQRImage)
	r.Get("/api/tickets/count", h.GetTotalTicketsCount)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Get("/ticket", h.LookupRedirect)
		r.Get("/ticket/{id}", h.ViewTicket)
		r.Get("/api/tickets/quota/{vatin}", h.GetQuota)
	})
}

// Home shows the ticket counter and, for signed-in staff, the issue and
// lookup forms.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	count, err := h.TicketService.GetTotalTicketsCount(r.Context())
	if err != nil {
		h.renderMessage(w, http.StatusInternalServerError, "Something went wrong", "The ticket counter is unavailable right now. Please try again later.")
		return
	}

	h.render(w, http.StatusOK, pages.PageHome, pages.HomeData{
		TotalCount: count,
		Viewer:     auth.ViewerFrom(r.Context()),
	})
}

// IssueTicket accepts a form post or a JSON body and redirects to the
// ticket's code page.
func (h *Handler) IssueTicket(w http.ResponseWriter, r *http.Request) {
	req, err := decodeIssueRequest(w, r)
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body.", "bad_request"))
		return
	}

	ticket, err := h.TicketService.IssueTicket(r.Context(), req)
	if err != nil {
		h.writeIssueError(w, err)
		return
	}

	http.Redirect(w, r, "/generate-ticket/"+url.PathEscape(ticket.ID), http.StatusFound)
}

func (h *Handler) writeIssueError(w http.ResponseWriter, err error) {
	var verr *tickets.ValidationError
	switch {
	case errors.As(err, &verr):
		utils.WriteJSON(w, http.StatusBadRequest,
			utils.ErrorResponse("Missing or invalid ticket data.", "validation_failed").WithDetails(verr.Fields))
	case errors.Is(err, tickets.ErrQuotaExceeded):
		utils.WriteJSON(w, http.StatusBadRequest,
			utils.ErrorResponse("The maximum number of tickets has already been issued for this VATIN.", "quota_exceeded"))
	default:
		utils.WriteJSON(w, http.StatusInternalServerError,
			utils.ErrorResponse("The ticket could not be generated.", "internal_error"))
	}
}

func decodeIssueRequest(w http.ResponseWriter, r *http.Request) (tickets.IssueRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)

	var req tickets.IssueRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.VATIN = r.PostForm.Get("vatin")
	req.FirstName = r.PostForm.Get("firstName")
	req.LastName = r.PostForm.Get("lastName")
	return req, nil
}

// ShowTicketCode renders the QR code for a ticket id. The id is not looked up.
func (h *Handler) ShowTicketCode(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")

	png, err := h.Encoder.EncodeTicket(h.BaseURL, ticketID)
	if err != nil {
		h.Logger.Error("QR", fmt.Sprintf("failed to encode ticket %s: %v", ticketID, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("The QR code could not be generated.", "encode_failed"))
		return
	}

	h.render(w, http.StatusOK, pages.PageTicketCode, pages.TicketCodeData{
		TicketID:        ticketID,
		VerificationURL: qr.VerificationURL(h.BaseURL, ticketID),
		QRDataURI:       template.URL(qr.DataURI(png)),
		Size:            h.Encoder.Size,
	})
}

// TicketQRImage serves the QR code as a PNG download.
func (h *Handler) TicketQRImage(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")

	png, err := h.Encoder.EncodeTicket(h.BaseURL, ticketID)
	if err != nil {
		h.Logger.Error("QR", fmt.Sprintf("failed to encode ticket %s: %v", ticketID, err))
		http.Error(w, "The QR code could not be generated.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// LookupRedirect turns the lookup form's ?id= query into /ticket/{id}.
func (h *Handler) LookupRedirect(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/ticket/"+url.PathEscape(id), http.StatusFound)
}

// ViewTicket shows a ticket's details to a signed-in viewer.
func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "id")
	viewer := auth.ViewerFrom(r.Context())

	details, err := h.TicketService.LookupTicket(r.Context(), ticketID, viewer)
	switch {
	case errors.Is(err, tickets.ErrUnauthorized):
		http.Redirect(w, r, "/login?returnTo="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
		return
	case errors.Is(err, tickets.ErrNotFound):
		h.renderMessage(w, http.StatusNotFound, "Ticket not found", "No ticket exists with this ID.")
		return
	case err != nil:
		h.renderMessage(w, http.StatusInternalServerError, "Something went wrong", "The ticket could not be loaded. Please try again later.")
		return
	}

	h.render(w, http.StatusOK, pages.PageTicketDetails, pages.TicketDetailsData{
		Ticket:     details.Ticket,
		ViewerName: details.ViewerName,
	})
}

// TicketCountResponse is the response format for the GetTotalTicketsCount endpoint
type TicketCountResponse struct {
	TotalCount int `json:"total_count"`
}

// GetTotalTicketsCount handles the request to get the total ticket count
func (h *Handler) GetTotalTicketsCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.TicketService.GetTotalTicketsCount(r.Context())
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Error retrieving ticket count.", "internal_error"))
		return
	}

	utils.WriteJSON(w, http.StatusOK, TicketCountResponse{TotalCount: count})
}

// GetQuota reports how many tickets a VATIN holds.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	status, err := h.TicketService.CheckQuota(r.Context(), chi.URLParam(r, "vatin"))

	var verr *tickets.ValidationError
	switch {
	case errors.As(err, &verr):
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid VATIN.", "validation_failed").WithDetails(verr.Fields))
		return
	case err != nil:
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Error retrieving quota.", "internal_error"))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Quota status", status))
}

func (h *Handler) render(w http.ResponseWriter, status int, page string, data any) {
	if err := h.Pages.Render(w, status, page, data); err != nil {
		h.Logger.Error("HTTP", fmt.Sprintf("failed to render %s: %v", page, err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) renderMessage(w http.ResponseWriter, status int, title, message string) {
	h.render(w, status, pages.PageMessage, pages.MessageData{Title: title, Message: message})
}
