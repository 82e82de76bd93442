package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/telefwd/telefwd/internal/domain"
)

type fakeCreds struct {
	token    string
	failures atomic.Int32
}

func (f *fakeCreds) Attach(req *http.Request) {
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
}

func (f *fakeCreds) AuthorizationFailure() {
	f.failures.Add(1)
	f.token = ""
}

func newTestClient(t *testing.T, handler http.Handler, creds *fakeCreds) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := New(server.URL, creds, nil, Options{
		MaxReadAttempts: 3,
		BackoffInitial:  time.Millisecond,
	})
	return client, server
}

func TestBearerAndRequestIDHeaders(t *testing.T) {
	var gotAuth, gotRequestID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total_channels":1}`))
	})
	client, _ := newTestClient(t, handler, &fakeCreds{token: "tok-1"})

	stats, err := client.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalChannels)
	require.Equal(t, "Bearer tok-1", gotAuth)
	require.NotEmpty(t, gotRequestID)
}

func TestDetailFieldBecomesErrorMessage(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Channel already added"}`))
	})
	client, _ := newTestClient(t, handler, &fakeCreds{token: "tok"})

	_, err := client.AddChannel(context.Background(), domain.ChannelDraft{ChannelID: "@c"})
	require.Error(t, err)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, KindValidation, apiErr.Kind)
	require.Equal(t, "Channel already added", apiErr.Message)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestMalformedErrorBodyFallsBack(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`not json`))
	})
	client, _ := newTestClient(t, handler, &fakeCreds{token: "tok"})

	err := client.StartBot(context.Background())
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "request failed", apiErr.Message)
}

func TestUnauthorizedTearsDownCredentials(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Could not validate credentials"}`))
	})
	creds := &fakeCreds{token: "tok"}
	client, _ := newTestClient(t, handler, creds)

	_, err := client.Me(context.Background())
	require.True(t, IsAuthorization(err))
	require.Equal(t, int32(1), creds.failures.Load(), "teardown delegated exactly once")
	require.Equal(t, int32(1), calls.Load(), "authorization failures are never retried")
}

func TestReadRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})
	client, _ := newTestClient(t, handler, &fakeCreds{token: "tok"})

	rules, err := client.Rules(context.Background())
	require.NoError(t, err)
	require.Empty(t, rules)
	require.Equal(t, int32(3), calls.Load())
}

func TestReadRetriesAreBounded(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	client, _ := newTestClient(t, handler, &fakeCreds{token: "tok"})

	_, err := client.Stats(context.Background())
	require.Error(t, err)
	require.Equal(t, KindServer, KindOf(err))
	require.Equal(t, int32(3), calls.Load())
}

func TestValidationFailuresAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"No subscription found"}`))
	})
	client, _ := newTestClient(t, handler, &fakeCreds{token: "tok"})

	_, err := client.SubscriptionStatus(context.Background())
	require.Equal(t, KindValidation, KindOf(err))
	require.Equal(t, int32(1), calls.Load())
}

func TestWritesNeverRetry(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	client, _ := newTestClient(t, handler, &fakeCreds{token: "tok"})

	_, err := client.CreateRule(context.Background(), domain.RuleDraft{})
	require.Equal(t, KindServer, KindOf(err))
	require.Equal(t, int32(1), calls.Load(), "writes get exactly one network attempt")
}

func TestTransportFailureIsNetworkKind(t *testing.T) {
	// A port nothing listens on: the request fails with no response.
	client := New("http://127.0.0.1:1", &fakeCreds{token: "tok"}, nil, Options{
		MaxReadAttempts: 2,
		BackoffInitial:  time.Millisecond,
		Timeout:         time.Second,
	})

	_, err := client.Stats(context.Background())
	require.Equal(t, KindNetwork, KindOf(err))
}

func TestKindOfUnclassified(t *testing.T) {
	require.Equal(t, KindServer, KindOf(errors.New("plain")))
	require.Equal(t, KindPolicy, KindOf(PolicyViolation("nope")))
}
