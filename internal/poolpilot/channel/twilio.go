package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

const (
	defaultTwilioTimeout = 10 * time.Second
	defaultCountryCode   = "1"
)

var ErrInvalidPhone = errors.New("invalid phone number")

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string

	// BaseURL redirects API calls to another host, mainly for tests.
	BaseURL string
	Timeout time.Duration

	// CountryCode is the calling code assumed for national numbers.
	CountryCode string

	// Transport overrides the HTTP transport; nil uses the default.
	Transport http.RoundTripper
}

// Twilio sends SMS through the Twilio Messages API.
type Twilio struct {
	logger    *zap.Logger
	sid       string
	token     string
	from      string
	region    string
	timeout   time.Duration
	base      *url.URL
	transport http.RoundTripper
}

func NewTwilio(logger *zap.Logger, cfg TwilioConfig) (*Twilio, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" {
		return nil, fmt.Errorf("twilio account sid, auth token and from number are required")
	}

	var base *url.URL
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid twilio base URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("twilio base URL must use http or https scheme, got %q", u.Scheme)
		}
		base = u
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTwilioTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Twilio{
		logger:    logger.Named("twilio"),
		sid:       cfg.AccountSID,
		token:     cfg.AuthToken,
		from:      cfg.From,
		region:    regionFor(cfg.CountryCode),
		timeout:   timeout,
		base:      base,
		transport: transport,
	}, nil
}

func (t *Twilio) Name() string { return "sms" }

func (t *Twilio) CanRoute(destination string) bool {
	_, err := normalizePhone(destination, t.region)
	return err == nil
}

// restClient builds a client whose requests carry ctx.  twilio-go has no
// context-aware calls, so cancellation rides on the transport.
func (t *Twilio) restClient(ctx context.Context) *twilio.RestClient {
	c := &twilioclient.Client{
		Credentials: twilioclient.NewCredentials(t.sid, t.token),
		HTTPClient: &http.Client{
			Timeout:   t.timeout,
			Transport: &requestTransport{ctx: ctx, base: t.base, next: t.transport},
		},
	}
	c.SetAccountSid(t.sid)
	return twilio.NewRestClientWithParams(twilio.ClientParams{Client: c})
}

func (t *Twilio) Send(ctx context.Context, destination, body string) error {
	to, err := normalizePhone(destination, t.region)
	if err != nil {
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(body)

	msg, err := t.restClient(ctx).Api.CreateMessage(params)
	if err != nil {
		var te *twilioclient.TwilioRestError
		if errors.As(err, &te) {
			return fmt.Errorf("twilio rejected message (status %d, code %d): %s", te.Status, te.Code, te.Message)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("twilio request: %w", ctxErr)
		}
		return fmt.Errorf("twilio request: %w", err)
	}

	if msg != nil && msg.Sid != nil {
		t.logger.Debug("sms accepted", zap.String("sid", *msg.Sid))
	}
	return nil
}

// requestTransport binds every request to ctx and, when base is set,
// points it at another host.
type requestTransport struct {
	ctx  context.Context
	base *url.URL
	next http.RoundTripper
}

func (rt *requestTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(rt.ctx)
	if rt.base != nil {
		r.URL.Scheme = rt.base.Scheme
		r.URL.Host = rt.base.Host
		r.Host = rt.base.Host
	}
	return rt.next.RoundTrip(r)
}

// NormalizePhone returns destination in E.164 form.  National numbers are
// read as belonging to countryCode.
func NormalizePhone(destination, countryCode string) (string, error) {
	return normalizePhone(destination, regionFor(countryCode))
}

func normalizePhone(destination, region string) (string, error) {
	s := strings.TrimSpace(destination)
	if s == "" {
		return "", ErrInvalidPhone
	}
	num, err := phonenumbers.Parse(s, region)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidPhone, destination, err)
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, destination)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// regionFor maps a calling code such as "1" or "+44" to its main region.
func regionFor(countryCode string) string {
	cc, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(countryCode), "+"))
	if err != nil {
		cc, _ = strconv.Atoi(defaultCountryCode)
	}
	region := phonenumbers.GetRegionCodeForCountryCode(cc)
	if region == "" || region == "ZZ" {
		return "US"
	}
	return region
}
