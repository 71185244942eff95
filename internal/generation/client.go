package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kalambet/claritydesk/internal/intake"
	"github.com/kalambet/claritydesk/internal/records"
)

// Generator produces reports from validated intakes.
type Generator interface {
	GenerateTechnical(ctx context.Context, in intake.TechnicalInput) (*intake.TechnicalReport, error)
	GenerateStrategic(ctx context.Context, in intake.StrategicInput) (*intake.StrategicReport, error)
}

// Client is a Generator backed by a Model. Calls are paced by a token bucket
// and every response is checked against the report schema before decoding.
type Client struct {
	model   Model
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithRateLimit caps calls per second. Non-positive values disable pacing.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithClock overrides the clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient wraps model in a Generator.
func NewClient(model Model, opts ...Option) *Client {
	c := &Client{
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(1), 2),
		logger:  slog.Default().With("component", "generation"),
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Close releases the underlying model.
func (c *Client) Close() error {
	return c.model.Close()
}

func (c *Client) GenerateTechnical(ctx context.Context, in intake.TechnicalInput) (*intake.TechnicalReport, error) {
	system, prompt := TechnicalPrompt(in)
	req := Request{System: system, Prompt: prompt, Images: imageList(in.Images)}
	report, err := generate[intake.TechnicalReport](ctx, c, req, technicalReportSchema)
	if err != nil {
		return nil, err
	}
	report.ID, report.Timestamp = uuid.NewString(), records.FormatTimestamp(c.now())
	return report, nil
}

func (c *Client) GenerateStrategic(ctx context.Context, in intake.StrategicInput) (*intake.StrategicReport, error) {
	system, prompt := StrategicPrompt(in)
	req := Request{System: system, Prompt: prompt, Images: imageList(in.Images)}
	report, err := generate[intake.StrategicReport](ctx, c, req, strategicReportSchema)
	if err != nil {
		return nil, err
	}
	report.ID, report.Timestamp = uuid.NewString(), records.FormatTimestamp(c.now())
	return report, nil
}

func generate[R any](ctx context.Context, c *Client, req Request, schema *compiledSchema) (*R, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	start := time.Now()
	raw, err := c.model.GenerateJSON(ctx, req)
	if err != nil {
		c.logger.Warn("generation failed", "kind", schema.kind, "model", c.model.Name(), "error", err)
		return nil, err
	}
	c.logger.Debug("generation complete", "kind", schema.kind, "model", c.model.Name(), "duration", time.Since(start))

	if err := schema.Validate(raw); err != nil {
		return nil, err
	}

	var report R
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return nil, fmt.Errorf("decoding %s report: %w", schema.kind, err)
	}
	return &report, nil
}
