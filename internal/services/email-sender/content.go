package emailsender

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/NordCoder/Herald/internal/domain/notification"
)

var htmlTmpl = template.Must(template.New("notification").Parse(`<!doctype html>
<html><body style="font-family:sans-serif">
<h2>{{.Title}}</h2>
{{range .Lines}}<p>{{.}}</p>
{{end}}{{if .URL}}<p><a href="{{.URL}}">Open in Herald</a></p>{{end}}
</body></html>
`))

// Link is the absolute URL of a notification path on the platform.
func Link(origin string, path *string) string {
	origin = strings.TrimRight(origin, "/")
	if origin == "" {
		return ""
	}
	if path == nil || *path == "" {
		return origin + "/notifications"
	}
	return origin + *path
}

// Render builds the email for n addressed to to.
func Render(n notification.Notification, to, origin string) (notification.EmailMessage, error) {
	link := Link(origin, n.Path)

	var lines []string
	if n.Body != nil && *n.Body != "" {
		lines = strings.Split(*n.Body, "\n")
	}

	var text strings.Builder
	text.WriteString(n.Title)
	text.WriteString("\n\n")
	for _, l := range lines {
		text.WriteString(l)
		text.WriteByte('\n')
	}
	if link != "" {
		text.WriteString("\n")
		text.WriteString(link)
		text.WriteByte('\n')
	}

	var html bytes.Buffer
	err := htmlTmpl.Execute(&html, struct {
		Title string
		Lines []string
		URL   string
	}{n.Title, lines, link})
	if err != nil {
		return notification.EmailMessage{}, err
	}

	return notification.EmailMessage{
		To:      to,
		Subject: n.Title,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
