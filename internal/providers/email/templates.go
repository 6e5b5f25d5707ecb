package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"value": func(data map[string]any, key string) string {
		if v, ok := data[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return ""
	},
}).ParseFS(templateFS, "templates/*.html"))

var subjects = map[string]string{
	"order.confirmation":         "Your memorial order {{number}} is confirmed",
	"order.fulfillment_required": "Order {{number}} needs manufacturing",
	"commission.earned":          "You earned a commission",
	"code_batch.ready":           "Your activation codes are ready",
	"code_batch.failed":          "Activation code batch needs attention",
	"payout.created":             "Payout {{number}} is on its way",
}

// Render builds the subject and HTML body for a notification kind. The
// template name is the kind with dots replaced by underscores.
func Render(kind string, payload map[string]any) (string, string, error) {
	name := strings.ReplaceAll(kind, ".", "_") + ".html"
	tmpl := templates.Lookup(name)
	if tmpl == nil {
		return "", "", fmt.Errorf("no email template for %q", kind)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, payload); err != nil {
		return "", "", fmt.Errorf("render %s: %w", name, err)
	}

	subject := subjects[kind]
	number := ""
	for _, key := range []string{"order_number", "payout_number"} {
		if v, ok := payload[key]; ok && v != nil {
			number = fmt.Sprint(v)
			break
		}
	}
	subject = strings.TrimSpace(strings.ReplaceAll(subject, "{{number}}", number))
	return subject, body.String(), nil
}
