package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	apperrors "github.com/gmsas95/takeoff/internal/errors"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// GuardConfig bounds how hard a recognizer may be driven.
type GuardConfig struct {
	// RatePerSecond - sustained recognitions per second (0 = unlimited)
	RatePerSecond float64
	Burst         int
	// MaxFailures - consecutive failures that open the breaker
	MaxFailures uint32
	// OpenTimeout - how long the breaker stays open before probing again
	OpenTimeout time.Duration
}

// Guard wraps a recognizer with a rate limiter and a circuit breaker. When the
// breaker is open calls fail fast with OCR_001.
type Guard struct {
	next    Recognizer
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]string]
	logger  *zap.Logger
}

// NewGuard wraps next
func NewGuard(next Recognizer, cfg GuardConfig, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	g := &Guard{next: next, logger: logger}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	maxFailures := cfg.MaxFailures
	g.breaker = gobreaker.NewCircuitBreaker[[]string](gobreaker.Settings{
		Name:        "ocr",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// A cancelled request says nothing about the engine.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("OCR breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return g
}

func (g *Guard) Recognize(ctx context.Context, img image.Image) ([]string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	lines, err := g.breaker.Execute(func() ([]string, error) {
		return g.next.Recognize(ctx, img)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperrors.Wrap(err, apperrors.CodeOCRUnavailable, "text recognition temporarily unavailable")
	}
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// State reports the breaker state.
func (g *Guard) State() string {
	return g.breaker.State().String()
}
