package channel

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestTwilio(t *testing.T, baseURL string) *Twilio {
	t.Helper()
	tw, err := NewTwilio(zap.NewNop(), TwilioConfig{
		AccountSID: "AC123",
		AuthToken:  "secret",
		From:       "+15550000",
		BaseURL:    baseURL,
		Timeout:    2 * time.Second,
	})
	require.NoError(t, err)
	return tw
}

func TestTwilio_Send_PostsForm(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)

		b, _ := io.ReadAll(r.Body)
		got, _ = url.ParseQuery(string(b))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	err := newTestTwilio(t, srv.URL).Send(context.Background(), "(555) 123-4567", "hello")
	require.NoError(t, err)

	assert.Equal(t, "+15551234567", got.Get("To"))
	assert.Equal(t, "+15550000", got.Get("From"))
	assert.Equal(t, "hello", got.Get("Body"))
}

func TestTwilio_Send_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"The 'To' number is not a valid phone number.","status":400}`))
	}))
	defer srv.Close()

	err := newTestTwilio(t, srv.URL).Send(context.Background(), "+15551234567", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "21211")
	assert.Contains(t, err.Error(), "not a valid phone number")
}

func TestTwilio_Send_InvalidPhoneNoRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	err := newTestTwilio(t, srv.URL).Send(context.Background(), "call me", "hello")
	assert.True(t, errors.Is(err, ErrInvalidPhone))
	assert.False(t, called)
}

func TestTwilio_Send_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := newTestTwilio(t, srv.URL).Send(ctx, "+15551234567", "hello")
	assert.Error(t, err)
}

func TestNewTwilio_RequiresCredentials(t *testing.T) {
	_, err := NewTwilio(zap.NewNop(), TwilioConfig{AccountSID: "AC123"})
	assert.Error(t, err)

	_, err = NewTwilio(zap.NewNop(), TwilioConfig{AccountSID: "a", AuthToken: "b", From: "c", BaseURL: "ftp://x"})
	assert.Error(t, err)
}

func TestNormalizePhone_OtherCountryCode(t *testing.T) {
	got, err := NormalizePhone("020 7946 0958", "44")
	require.NoError(t, err)
	assert.Equal(t, "+442079460958", got)
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "+15551234567", want: "+15551234567"},
		{in: "555-123-4567", want: "+15551234567"},
		{in: "1 (555) 123 4567", want: "+15551234567"},
		{in: "+44 20 7946 0958", want: "+442079460958"},
		{in: "", wantErr: true},
		{in: "12345", wantErr: true},
		{in: "call me", wantErr: true},
		{in: "+0123456789", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizePhone(tt.in, "1")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPhone)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
