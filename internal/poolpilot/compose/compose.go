// Package compose renders alert records into outbound message bodies.
package compose

import (
	"strings"
	"time"

	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

const DefaultTitle = "🚨 Pool Alert"

const (
	notAvailable  = "N/A"
	unknownAgency = "Unknown agency"
)

// Composer builds message bodies.  The zero value uses DefaultTitle.
type Composer struct {
	Title string
}

func New(title string) Composer {
	return Composer{Title: title}
}

// Compose returns the body for rec.  When disclose is set the original
// routing details are appended so a test recipient can tell who would
// have received the message.
func (c Composer) Compose(rec types.AlertRecord, disclose bool) string {
	title := c.Title
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteByte('\n')
	b.WriteString(rec.SystemName)
	b.WriteByte('\n')
	b.WriteString(rec.AlertType)
	b.WriteString("\n\n")
	b.WriteString(rec.Summary)
	b.WriteString("\n\nReply ACK if received.")

	if !disclose {
		return b.String()
	}

	var phones, emails []string
	for _, ct := range rec.Contacts {
		switch ct.Kind {
		case types.ContactEmail:
			emails = append(emails, ct.Address)
		default:
			phones = append(phones, ct.Address)
		}
	}

	b.WriteString("\n\n[TEST MODE]")
	b.WriteString("\nAgency: ")
	b.WriteString(orDefault(rec.AgencyName, unknownAgency))
	b.WriteString("\nOriginal phone: ")
	b.WriteString(orDefault(strings.Join(phones, ", "), notAvailable))
	b.WriteString("\nOriginal email: ")
	b.WriteString(orDefault(strings.Join(emails, ", "), notAvailable))
	b.WriteString("\nDetected: ")
	b.WriteString(formatTime(&rec.DetectedAt))
	b.WriteString("\nSnapshot: ")
	b.WriteString(formatTime(rec.SnapshotAt))

	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return notAvailable
	}
	return t.UTC().Format(time.RFC3339)
}
