package email

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"
)

// StatusInfo is what the status templates render.
type StatusInfo struct {
	Reference     string
	Status        string
	CustomerName  string
	CustomerEmail string
	Address       string
	Total         string
	Items         []StatusItem
	UpdatedAt     time.Time
}

type StatusItem struct {
	Name     string
	Quantity int
	Size     string
}

type statusTemplate struct {
	subject string
	heading string
	lead    string
}

var statusTemplates = map[string]statusTemplate{
	"paid": {
		subject: "Payment received - order %s",
		heading: "Thank you, your payment has been received",
		lead:    "We are preparing your jewellery for dispatch.",
	},
	"shipped": {
		subject: "Your order %s is on its way",
		heading: "Your order has shipped",
		lead:    "Your jewellery has left our workshop and is on its way to you.",
	},
	"delivered": {
		subject: "Your order %s has been delivered",
		heading: "Your order has been delivered",
		lead:    "We hope you love it. Reply to this email if anything is not right.",
	},
	"cancelled": {
		subject: "Your order %s has been cancelled",
		heading: "Your order has been cancelled",
		lead:    "If you did not expect this, reply to this email and we will help.",
	},
}

// HasStatusTemplate reports whether customers are emailed for this status.
func HasStatusTemplate(status string) bool {
	_, ok := statusTemplates[status]
	return ok
}

type Renderer struct {
	text *template.Template
	html *htmltemplate.Template
}

func NewRenderer() (*Renderer, error) {
	funcs := map[string]any{
		"formatDate": func(t time.Time) string {
			return t.Format("January 2, 2006")
		},
	}

	text, err := template.New("status_text").Funcs(funcs).Parse(statusText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse text template: %w", err)
	}
	html, err := htmltemplate.New("status_html").Funcs(funcs).Parse(statusHTML)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML template: %w", err)
	}
	return &Renderer{text: text, html: html}, nil
}

type statusView struct {
	*StatusInfo
	Heading string
	Lead    string
}

func (r *Renderer) RenderStatus(ctx context.Context, info *StatusInfo) (*Email, error) {
	_ = ctx
	if info == nil {
		return nil, fmt.Errorf("status info is required")
	}
	tmpl, ok := statusTemplates[info.Status]
	if !ok {
		return nil, fmt.Errorf("no email template for status %q", info.Status)
	}

	view := statusView{StatusInfo: info, Heading: tmpl.heading, Lead: tmpl.lead}

	var htmlBuf, textBuf bytes.Buffer
	if err := r.html.Execute(&htmlBuf, view); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}
	if err := r.text.Execute(&textBuf, view); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}

	return &Email{
		To:      info.CustomerEmail,
		Subject: fmt.Sprintf(tmpl.subject, info.Reference),
		Text:    textBuf.String(),
		HTML:    htmlBuf.String(),
	}, nil
}

func SendStatusUpdate(ctx context.Context, p Provider, renderer *Renderer, info *StatusInfo) error {
	if p == nil {
		return nil
	}
	if renderer == nil {
		var err error
		if renderer, err = NewRenderer(); err != nil {
			return fmt.Errorf("failed to create renderer: %w", err)
		}
	}

	email, err := renderer.RenderStatus(ctx, info)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}
	return p.SendEmail(ctx, email)
}

const statusText = `{{.Heading}}

{{if .CustomerName}}Hi {{.CustomerName}},

{{end}}{{.Lead}}

Order: {{.Reference}}
Updated: {{formatDate .UpdatedAt}}
Total: {{.Total}}
{{if .Address}}Delivery address: {{.Address}}
{{end}}
Items:
{{range .Items}}- {{.Name}}{{if .Size}} (size {{.Size}}){{end}} x{{.Quantity}}
{{end}}`

const statusHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Heading}}</title>
</head>
<body style="font-family: Georgia, serif; color: #2b2118; max-width: 560px; margin: 0 auto; padding: 24px;">
  <h1 style="font-size: 22px; font-weight: normal;">{{.Heading}}</h1>
  {{if .CustomerName}}<p>Hi {{.CustomerName}},</p>{{end}}
  <p>{{.Lead}}</p>
  <table style="width: 100%; border-collapse: collapse; margin: 16px 0;">
    <tr><td style="padding: 4px 0; color: #7a6a58;">Order</td><td style="text-align: right;">{{.Reference}}</td></tr>
    <tr><td style="padding: 4px 0; color: #7a6a58;">Updated</td><td style="text-align: right;">{{formatDate .UpdatedAt}}</td></tr>
    <tr><td style="padding: 4px 0; color: #7a6a58;">Total</td><td style="text-align: right;">{{.Total}}</td></tr>
  </table>
  {{if .Items}}
  <ul style="padding-left: 18px;">
    {{range .Items}}<li>{{.Name}}{{if .Size}} (size {{.Size}}){{end}} &times; {{.Quantity}}</li>{{end}}
  </ul>
  {{end}}
  {{if .Address}}<p style="color: #7a6a58;">Delivery address: {{.Address}}</p>{{end}}
</body>
</html>
`
