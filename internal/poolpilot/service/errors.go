package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrUnauthorized is returned by Trigger when the caller's token does not
// match.  No store access happens before it is returned.
var ErrUnauthorized = errors.New("unauthorized")

// StoreError wraps a failed select, claim or acknowledge.  It aborts the run.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// DeliveryError describes one failed send.  It is absorbed into the run
// counters and never aborts a run.
type DeliveryError struct {
	Channel     string
	Destination string
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver via %s to %s: %v", e.Channel, RedactDestination(e.Destination), e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// RedactDestination masks a phone number or email address for logs.
func RedactDestination(dest string) string {
	dest = strings.TrimSpace(dest)
	if local, domain, ok := strings.Cut(dest, "@"); ok {
		if local == "" {
			return "***@" + domain
		}
		first, _ := utf8.DecodeRuneInString(local)
		return string(first) + "***@" + domain
	}
	runes := []rune(dest)
	if len(runes) <= 4 {
		return "***"
	}
	return "***" + string(runes[len(runes)-4:])
}
