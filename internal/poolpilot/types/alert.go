package types

import (
	"fmt"
	"strings"
	"time"
)

// KeyMode says which columns identify an alert row.
type KeyMode string

const (
	KeyModeID        KeyMode = "id"
	KeyModeComposite KeyMode = "composite"
)

func ParseKeyMode(s string) (KeyMode, error) {
	switch KeyMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", KeyModeID:
		return KeyModeID, nil
	case KeyModeComposite:
		return KeyModeComposite, nil
	default:
		return "", fmt.Errorf("unknown key mode %q", s)
	}
}

// AlertKey identifies one alert.  Under KeyModeID only ID is meaningful;
// under KeyModeComposite the (SystemID, SnapshotAt, AlertType) triple is.
// Stores fill in every field they have so either mode can be used.
type AlertKey struct {
	ID         string
	SystemID   string
	SnapshotAt time.Time
	AlertType  string
}

// String is a stable, human readable form used for logging and de-duplication.
func (k AlertKey) String() string {
	if k.ID != "" {
		return k.ID
	}
	return fmt.Sprintf("%s/%d/%s", k.SystemID, k.SnapshotAt.UTC().UnixMilli(), k.AlertType)
}

// ContactKind is the transport family a destination belongs to.
type ContactKind string

const (
	ContactPhone ContactKind = "phone"
	ContactEmail ContactKind = "email"
)

// KindOf classifies a destination address.  Anything with an "@" is email.
func KindOf(destination string) ContactKind {
	if strings.Contains(destination, "@") {
		return ContactEmail
	}
	return ContactPhone
}

type Contact struct {
	Kind    ContactKind
	Address string
}

// AlertRecord is a pending alert as read from the store.  It is treated as
// immutable for the duration of a dispatch run.
type AlertRecord struct {
	Key            AlertKey
	SystemName     string
	AlertType      string
	Summary        string
	Classification string // empty when the producer did not classify the alert
	AgencyName     string
	Contacts       []Contact
	DetectedAt     time.Time
	SnapshotAt     *time.Time
	AcknowledgedAt *time.Time
	ClaimedAt      *time.Time
}

// HasContact reports whether the record names at least one destination.
func (r AlertRecord) HasContact() bool {
	for _, c := range r.Contacts {
		if strings.TrimSpace(c.Address) != "" {
			return true
		}
	}
	return false
}

// ContactsFrom builds the contact list from the phone/email columns used
// by the alert table, dropping blanks.
func ContactsFrom(phone, email string) []Contact {
	var out []Contact
	if p := strings.TrimSpace(phone); p != "" {
		out = append(out, Contact{Kind: ContactPhone, Address: p})
	}
	if e := strings.TrimSpace(email); e != "" {
		out = append(out, Contact{Kind: ContactEmail, Address: e})
	}
	return out
}
