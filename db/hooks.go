package db

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ─────────────────────────────────────────────────────────────────────────────
// Hook interface
// ─────────────────────────────────────────────────────────────────────────────

// Hook is called before and after every statement.
//
// Implementations MUST be goroutine-safe and SHOULD be non-blocking.
// Panics inside a hook are recovered by the hook chain and logged.
type Hook interface {
	// BeforeQuery is invoked immediately before the statement is sent to the
	// driver.
	BeforeQuery(ctx context.Context, query string, args []any)

	// AfterQuery is invoked after the driver returns. err is the already
	// mapped error returned to the caller, nil on success.
	AfterQuery(ctx context.Context, query string, args []any, duration time.Duration, err error)
}

// ─────────────────────────────────────────────────────────────────────────────
// hookChain
// ─────────────────────────────────────────────────────────────────────────────

type hookChain struct {
	hooks []Hook
}

func newHookChain(hooks []Hook) hookChain {
	filtered := make([]Hook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return hookChain{hooks: filtered}
}

func (c hookChain) Before(ctx context.Context, query string, args []any) {
	for _, h := range c.hooks {
		safeBeforeQuery(h, ctx, query, args)
	}
}

func (c hookChain) After(ctx context.Context, query string, args []any, d time.Duration, err error) {
	for _, h := range c.hooks {
		safeAfterQuery(h, ctx, query, args, d, err)
	}
}

func safeBeforeQuery(h Hook, ctx context.Context, query string, args []any) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("db: hook panic in BeforeQuery")
		}
	}()
	h.BeforeQuery(ctx, query, args)
}

func safeAfterQuery(h Hook, ctx context.Context, query string, args []any, d time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("db: hook panic in AfterQuery")
		}
	}()
	h.AfterQuery(ctx, query, args, d, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Logging hook
// ─────────────────────────────────────────────────────────────────────────────

// LogHookConfig configures the logging hook.
type LogHookConfig struct {
	// Logger defaults to the global zerolog logger if nil.
	Logger *zerolog.Logger
	// SlowQueryThreshold logs a warning when duration exceeds this value.
	// Zero disables slow-query logging.
	SlowQueryThreshold time.Duration
	// LogArgs includes bound parameters in log entries. User names are
	// personal data, keep it off outside development.
	LogArgs bool
}

// NewLogHook returns a Hook that writes one zerolog event per statement.
func NewLogHook(cfg LogHookConfig) Hook {
	logger := cfg.Logger
	if logger == nil {
		logger = &log.Logger
	}
	return &logHook{cfg: cfg, logger: logger}
}

type logHook struct {
	cfg    LogHookConfig
	logger *zerolog.Logger
}

func (h *logHook) BeforeQuery(_ context.Context, _ string, _ []any) {}

func (h *logHook) AfterQuery(_ context.Context, query string, args []any, d time.Duration, err error) {
	var ev *zerolog.Event
	switch {
	case err != nil:
		ev = h.logger.Error().Err(err)
	case h.cfg.SlowQueryThreshold > 0 && d > h.cfg.SlowQueryThreshold:
		ev = h.logger.Warn().Bool("slow", true)
	default:
		ev = h.logger.Debug()
	}

	ev = ev.Str("query", trimQuery(query)).Dur("duration", d)
	if h.cfg.LogArgs && len(args) > 0 {
		ev = ev.Interface("args", args)
	}
	ev.Msg("db: query")
}

func trimQuery(q string) string {
	if len(q) > 500 {
		return q[:500] + "…"
	}
	return q
}
