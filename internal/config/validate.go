package config

import (
	"fmt"
	"strings"

	dbpkg "github.com/poolpilot/alerts/internal/db"
	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

// Purpose selects which settings Validate treats as required.
type Purpose int

const (
	// PurposeServe is the long-running HTTP server; it needs a token.
	PurposeServe Purpose = iota
	// PurposeRunOnce is a single CLI-triggered run.
	PurposeRunOnce
	// PurposeMigrate only touches the database.
	PurposeMigrate
)

// ConfigError lists every missing or invalid setting found at start-up.
type ConfigError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return "config: " + strings.Join(parts, "; ")
}

// Validate checks the settings needed for purpose and returns a
// *ConfigError describing every problem, or nil.
func (c Config) Validate(purpose Purpose) error {
	var e ConfigError
	missing := func(key string) { e.Missing = append(e.Missing, key) }
	invalid := func(format string, a ...any) { e.Invalid = append(e.Invalid, fmt.Sprintf(format, a...)) }

	switch strings.ToLower(strings.TrimSpace(c.DB.Driver)) {
	case "memory":
		if purpose == PurposeMigrate {
			invalid("db.driver (memory has no schema to migrate)")
		}
	default:
		d, err := dbpkg.ParseDialect(c.DB.Driver)
		if err != nil {
			invalid("db.driver %q", c.DB.Driver)
		} else if d == dbpkg.DialectPostgres && c.DB.DSN == "" {
			missing("db.dsn")
		}
	}

	if purpose != PurposeMigrate {
		if _, err := types.ParseKeyMode(c.DB.KeyMode); err != nil {
			invalid("db.key_mode %q", c.DB.KeyMode)
		}
		if c.Notify.DeliveryConcurrency < 1 {
			invalid("notify.delivery_concurrency %d", c.Notify.DeliveryConcurrency)
		}
		if len(c.Notify.AcceptedClassifications) == 0 {
			missing("notify.accepted_classifications")
		}
		if c.SMS.Enabled {
			if c.SMS.AccountSID == "" {
				missing("sms.account_sid")
			}
			if c.SMS.AuthToken == "" {
				missing("sms.auth_token")
			}
			if c.SMS.From == "" {
				missing("sms.from")
			}
		}
		if c.Email.Enabled {
			if c.Email.Host == "" {
				missing("email.host")
			}
			if c.Email.From == "" {
				missing("email.from")
			}
		}
	}

	if purpose == PurposeServe && c.Notify.Token == "" {
		missing("notify.token")
	}

	if len(e.Missing) == 0 && len(e.Invalid) == 0 {
		return nil
	}
	return &e
}
