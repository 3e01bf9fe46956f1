package template

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"ms-ticket-issuance/internal/models"
)

const (
	PageHome          = "home.html"
	PageTicketCode    = "ticket_code.html"
	PageTicketDetails = "ticket_details.html"
	PageMessage       = "message.html"
)

//go:embed templates/*.html
var templateFiles embed.FS

//go:embed static
var staticFiles embed.FS

type HomeData struct {
	TotalCount int
	Viewer     models.Viewer
}

type TicketCodeData struct {
	TicketID        string
	VerificationURL string
	QRDataURI       template.URL
	Size            int
}

type TicketDetailsData struct {
	Ticket     models.Ticket
	ViewerName string
}

type MessageData struct {
	Title   string
	Message string
}

// Renderer executes the embedded HTML pages.
type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"formatTime": func(t time.Time) string {
			return t.UTC().Format("2006-01-02 15:04:05 UTC")
		},
	}

	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, page := range []string{PageHome, PageTicketCode, PageTicketDetails, PageMessage} {
		tmpl, err := template.New(page).Funcs(funcs).ParseFS(templateFiles, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		r.pages[page] = tmpl
	}
	return r, nil
}

// Render writes page with the given status. Nothing is written if the
// template fails to execute.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data any) error {
	tmpl, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Static serves the stylesheet tree rooted at static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
