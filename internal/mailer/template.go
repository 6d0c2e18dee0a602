package mailer

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"

	"swish-forms/internal/forms"

	"github.com/flosch/pongo2/v6"
)

const notificationTemplate = `<!DOCTYPE html>
<html>
<body style="margin:0;padding:24px;background:#f5f7fa;font-family:Arial,Helvetica,sans-serif;color:#1f2933;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="max-width:640px;margin:0 auto;background:#ffffff;border-radius:6px;">
<tr><td style="padding:24px 24px 8px;"><h2 style="margin:0;font-size:20px;">{{ heading }}</h2></td></tr>
<tr><td style="padding:8px 24px 24px;">
<table role="presentation" width="100%" cellpadding="8" cellspacing="0" style="border-collapse:collapse;">
{% for row in rows %}<tr>
<td style="width:35%;vertical-align:top;border-bottom:1px solid #e4e7eb;"><strong>{{ row.Label }}</strong></td>
<td style="vertical-align:top;border-bottom:1px solid #e4e7eb;">{% for line in row.Lines %}{{ line }}{% if not forloop.Last %}<br>{% endif %}{% endfor %}</td>
</tr>
{% endfor %}</table>
</td></tr>
<tr><td style="padding:16px 24px;font-size:12px;color:#7b8794;border-top:1px solid #e4e7eb;">
Sent from {{ site_name }}{% if entry_id %} &middot; Entry #{{ entry_id }}{% endif %} &middot; {{ submitted_at }}
</td></tr>
</table>
</body>
</html>
`

var (
	tplOnce sync.Once
	tpl     *pongo2.Template
	tplErr  error
)

func notification() (*pongo2.Template, error) {
	tplOnce.Do(func() {
		tpl, tplErr = pongo2.FromString(notificationTemplate)
	})
	return tpl, tplErr
}

type emailRow struct {
	Label string
	Lines []string
}

type notificationData struct {
	Heading     string
	SiteName    string
	EntryID     uint
	SubmittedAt string
	Rows        []emailRow
}

func renderNotification(data notificationData) (string, error) {
	t, err := notification()
	if err != nil {
		return "", fmt.Errorf("compile email template: %w", err)
	}

	var buf bytes.Buffer
	err = t.ExecuteWriter(pongo2.Context{
		"heading":      data.Heading,
		"site_name":    data.SiteName,
		"entry_id":     int(data.EntryID),
		"submitted_at": data.SubmittedAt,
		"rows":         data.Rows,
	}, &buf)
	if err != nil {
		return "", fmt.Errorf("render email template: %w", err)
	}
	return buf.String(), nil
}

// buildRows lists non-empty fields, defined fields first in definition
// order and then any extra keys sorted.
func buildRows(defs []forms.FieldDefinition, fields map[string]any) []emailRow {
	seen := make(map[string]bool, len(defs))
	var rows []emailRow

	add := func(id string, t forms.FieldType) {
		seen[id] = true
		value, ok := fields[id]
		if !ok {
			return
		}
		text := formatValue(t, value)
		if strings.TrimSpace(text) == "" {
			return
		}
		rows = append(rows, emailRow{
			Label: forms.Label(defs, id),
			Lines: strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n"),
		})
	}

	for _, def := range defs {
		add(def.ID, def.Type)
	}

	extra := make([]string, 0, len(fields))
	for id := range fields {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		add(id, "")
	}
	return rows
}

func formatValue(t forms.FieldType, value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case bool:
		if v {
			return "Yes"
		}
		if t == forms.Checkbox {
			return "No"
		}
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := formatValue("", item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}
