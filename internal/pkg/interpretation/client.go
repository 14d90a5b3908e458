// Package interpretation calls the external narrative service that turns a
// numerology profile into prose.
package interpretation

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ManuelReschke/NumeroFox/internal/pkg/metrics"
	"github.com/go-resty/resty/v2"
	"github.com/gofiber/fiber/v2/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Client talks to the interpretation service over HTTP.
type Client struct {
	cfg    Config
	http   *resty.Client
	tracer trace.Tracer
}

func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg: cfg,
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		tracer: otel.Tracer("numerofox/interpretation"),
	}
}

// NewPipelineClient returns a client that makes a single call per Interpret.
// Paid orders count and schedule their interpretation attempts on the order
// itself, so the client must not retry underneath them.
func NewPipelineClient(cfg Config) *Client {
	cfg.MaxAttempts = 1
	return NewClient(cfg)
}

// Interpret returns the narrative for req. Transient failures (timeouts, 408,
// 429, 5xx, unreadable bodies) are retried with exponential backoff up to
// MaxAttempts; other 4xx responses fail at once with ErrInterpretationRejected.
func (c *Client) Interpret(ctx context.Context, req Request) (*NarrativeSet, error) {
	path, ok := c.cfg.Paths[req.ReportType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown report type %q", ErrInterpretationRejected, req.ReportType)
	}

	ctx, span := c.tracer.Start(ctx, "interpretation.interpret", trace.WithAttributes(
		attribute.String("report.type", string(req.ReportType)),
		attribute.String("order.id", req.OrderID),
	))
	defer span.End()

	started := time.Now()
	narrative, err := c.interpretWithRetry(ctx, path, req)
	outcome := "ok"
	switch {
	case errors.Is(err, ErrInterpretationRejected):
		outcome = "rejected"
	case err != nil:
		outcome = "timeout"
	}
	metrics.ObserveInterpretation(string(req.ReportType), outcome, time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	return narrative, err
}

func (c *Client) interpretWithRetry(ctx context.Context, path string, req Request) (*NarrativeSet, error) {
	key := idempotencyKey(req)
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.backoff(attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrInterpretationTimeout, ctx.Err())
			}
		}

		narrative, err := c.call(ctx, path, key, req)
		if err == nil {
			return narrative, nil
		}
		if errors.Is(err, ErrInterpretationRejected) {
			return nil, err
		}
		lastErr = err
		log.Warnf("[Interpretation] %s attempt %d/%d failed: %v", req.ReportType, attempt, c.cfg.MaxAttempts, err)
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrInterpretationTimeout, c.cfg.MaxAttempts, lastErr)
}

func (c *Client) call(ctx context.Context, path, key string, req Request) (*NarrativeSet, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", key).
		SetBody(req).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errTransient, err)
	}

	status := resp.StatusCode()
	switch {
	case status >= 200 && status < 300:
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return nil, fmt.Errorf("%w: status %d", errTransient, status)
	case status >= 400:
		return nil, fmt.Errorf("%w: status %d: %s", ErrInterpretationRejected, status, snippet(resp.Body()))
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", errTransient, status)
	}

	narrative, err := decodeNarrative(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", errTransient, err)
	}
	if narrative.Empty() {
		return nil, fmt.Errorf("%w: empty narrative", errTransient)
	}
	return narrative, nil
}

// backoff returns InitialBackoff * 2^(retry-1), capped at MaxBackoff.
func (c *Client) backoff(retry int) time.Duration {
	delay := c.cfg.InitialBackoff
	for i := 1; i < retry; i++ {
		delay *= 2
		if delay >= c.cfg.MaxBackoff {
			return c.cfg.MaxBackoff
		}
	}
	if delay > c.cfg.MaxBackoff {
		return c.cfg.MaxBackoff
	}
	return delay
}

func idempotencyKey(req Request) string {
	if req.OrderID != "" {
		return req.OrderID + ":" + string(req.ReportType)
	}
	sum := sha256.Sum256([]byte(req.Person.Birthdate + "|" + req.Person.Name))
	return fmt.Sprintf("preview:%x", sum[:12])
}

func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
