package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"sitewatch/internal/config"
	"sitewatch/pkg/models"
)

const (
	HeaderEventID   = "X-Sitewatch-Event-ID"
	HeaderEventKind = "X-Sitewatch-Event-Kind"
)

// Message is a rendered notification ready for a Sender.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
	Headers  map[string]string
}

type field struct {
	label string
	value func(models.ErrorEvent) string
}

// eventFields is the fixed row order of every notification. Rows whose value
// is empty are left out.
var eventFields = []field{
	{"Error type", func(e models.ErrorEvent) string { return e.Kind.Label() }},
	{"URL", func(e models.ErrorEvent) string { return e.URL }},
	{"Referrer", func(e models.ErrorEvent) string { return e.Referrer }},
	{"User agent", func(e models.ErrorEvent) string { return e.UserAgent }},
	{"IP", func(e models.ErrorEvent) string { return e.ClientIP }},
	{"Error code", func(e models.ErrorEvent) string { return e.ErrorCode }},
	{"Error message", func(e models.ErrorEvent) string { return e.ErrorMessage }},
	{"Detected at", func(e models.ErrorEvent) string {
		if e.DetectedAt.IsZero() {
			return ""
		}
		return e.DetectedAt.UTC().Format(time.RFC1123)
	}},
}

type row struct {
	Label string
	Value string
}

type view struct {
	Title    string
	SiteName string
	Rows     []row
}

var htmlTemplate = htmltemplate.Must(htmltemplate.New("html").Parse(`<!DOCTYPE html>
<html>
<body>
<h2>{{.Title}}</h2>
<p>A problem was detected on {{.SiteName}}.</p>
<table cellpadding="6" cellspacing="0" border="1">
{{- range .Rows}}
<tr><th align="left">{{.Label}}</th><td>{{.Value}}</td></tr>
{{- end}}
</table>
</body>
</html>
`))

var textTemplate = texttemplate.Must(texttemplate.New("text").Parse(`{{.Title}}

A problem was detected on {{.SiteName}}.
{{range .Rows}}
{{.Label}}: {{.Value}}
{{- end}}
`))

type Formatter struct{}

func NewFormatter() *Formatter {
	return &Formatter{}
}

func (f *Formatter) Format(evt models.ErrorEvent, settings config.NotificationSettings, to string) (Message, error) {
	siteName := strings.TrimSpace(settings.SiteName)
	if siteName == "" {
		siteName = settings.SiteURL
	}

	v := view{
		Title:    title(evt.Kind),
		SiteName: siteName,
		Rows:     rows(evt),
	}

	var html, text bytes.Buffer
	if err := htmlTemplate.Execute(&html, v); err != nil {
		return Message{}, fmt.Errorf("render html body: %w", err)
	}
	if err := textTemplate.Execute(&text, v); err != nil {
		return Message{}, fmt.Errorf("render text body: %w", err)
	}

	return Message{
		To:       to,
		Subject:  fmt.Sprintf("[%s] %s", siteName, title(evt.Kind)),
		HTMLBody: html.String(),
		TextBody: text.String(),
		Headers: map[string]string{
			HeaderEventID:   evt.ID,
			HeaderEventKind: string(evt.Kind),
		},
	}, nil
}

func title(kind models.Kind) string {
	switch kind {
	case models.KindInternalBrokenLink:
		return "Broken link detected"
	case models.KindSitemapUnreachable:
		return "Sitemap unreachable"
	default:
		return "Site problem detected"
	}
}

func rows(evt models.ErrorEvent) []row {
	out := make([]row, 0, len(eventFields))
	for _, f := range eventFields {
		if v := f.value(evt); v != "" {
			out = append(out, row{Label: f.label, Value: v})
		}
	}
	return out
}
