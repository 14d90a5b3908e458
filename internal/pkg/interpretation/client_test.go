package interpretation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuelReschke/NumeroFox/app/models"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/numerology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() Request {
	return Request{
		OrderID:    "order-1",
		ReportType: models.ReportTypeFull,
		Person:     models.Person{Name: "Иван Иванов", Birthdate: "1990-05-14"},
		Profile:    numerology.Profile{LifePath: 16, Expression: 18, SoulUrge: 21, Personality: 18, Destiny: 15},
	}
}

func testClient(url string) *Client {
	return NewClient(Config{
		BaseURL:        url,
		Timeout:        200 * time.Millisecond,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})
}

func TestInterpretSuccess(t *testing.T) {
	var gotPath, gotKey string
	var gotBody Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"summary":"Сильный путь","narratives":{"life_path":"Путь 16","empty":" "}}`))
	}))
	defer srv.Close()

	n, err := testClient(srv.URL).Interpret(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Сильный путь", n.Summary)
	assert.Equal(t, map[string]string{"life_path": "Путь 16"}, n.Sections)
	assert.Equal(t, "/webhook/numerology-full-report", gotPath)
	assert.Equal(t, "order-1:full", gotKey)
	assert.Equal(t, 16, gotBody.Profile.LifePath)
}

func TestInterpretAcceptsLegacyEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"full_interpretation":{"intro":"Вступление","number":7}}`))
	}))
	defer srv.Close()

	n, err := testClient(srv.URL).Interpret(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"intro": "Вступление"}, n.Sections)
}

func TestInterpretRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte(`{"summary":"ok"}`))
		}
	}))
	defer srv.Close()

	n, err := testClient(srv.URL).Interpret(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", n.Summary)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestInterpretRejectsClientErrorsWithoutRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"bad profile"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Interpret(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInterpretationRejected))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestInterpretTimesOutAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 30 * time.Millisecond, MaxAttempts: 2, InitialBackoff: time.Millisecond})
	_, err := c.Interpret(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInterpretationTimeout))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestInterpretMalformedBodyIsTransient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`<html>gateway</html>`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Interpret(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrInterpretationTimeout)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestInterpretStopsWhenContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second, MaxAttempts: 5, InitialBackoff: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, err := c.Interpret(ctx, testRequest())
	assert.ErrorIs(t, err, ErrInterpretationTimeout)
	assert.Less(t, time.Since(started), time.Second)
}

func TestBackoffIsCapped(t *testing.T) {
	c := NewClient(Config{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second})
	assert.Equal(t, time.Second, c.backoff(1))
	assert.Equal(t, 2*time.Second, c.backoff(2))
	assert.Equal(t, 4*time.Second, c.backoff(3))
	assert.Equal(t, 5*time.Second, c.backoff(4))
	assert.Equal(t, 5*time.Second, c.backoff(10))
}

func TestLoadConfigClampsTimeout(t *testing.T) {
	t.Setenv("INTERPRETATION_TIMEOUT", "5s")
	assert.Equal(t, MinTimeout, LoadConfig().Timeout)
	t.Setenv("INTERPRETATION_TIMEOUT", "5m")
	assert.Equal(t, MaxTimeout, LoadConfig().Timeout)
}

func TestPipelineClientCallsOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewPipelineClient(Config{BaseURL: srv.URL, Timeout: 200 * time.Millisecond, MaxAttempts: 5})
	_, err := c.Interpret(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrInterpretationTimeout)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
