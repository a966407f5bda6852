package meter

import (
	"log/slog"

	"github.com/farmsola/askrouter"
)

// LogMeter logs routing events using slog. Auth-pinned providers surface at
// Error level; this is the operator-facing signal for credential problems.
type LogMeter struct {
	Logger *slog.Logger
}

var _ askrouter.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnRoute(e askrouter.RouteEvent) {
	m.Logger.Info("route",
		"user", e.UserID,
		"provider", e.Provider,
		"model", e.Model,
		"attempt", e.Attempt,
		"remaining", e.Remaining,
	)
}

func (m *LogMeter) OnResult(e askrouter.ResultEvent) {
	switch {
	case e.Success && e.Err == nil:
		m.Logger.Info("result",
			"user", e.UserID,
			"provider", e.Provider,
			"model", e.Model,
			"duration_ms", e.Duration.Milliseconds(),
			"prompt_tokens", e.Usage.PromptTokens,
			"completion_tokens", e.Usage.CompletionTokens,
		)
	case e.Success:
		// Answer served but the usage record could not be persisted.
		m.Logger.Warn("result_store_error",
			"user", e.UserID,
			"provider", e.Provider,
			"error", e.Err,
		)
	case askrouter.IsConfigError(e.Err):
		m.Logger.Error("provider_auth_failed",
			"user", e.UserID,
			"provider", e.Provider,
			"model", e.Model,
			"error", e.Err,
		)
	default:
		m.Logger.Warn("result_error",
			"user", e.UserID,
			"provider", e.Provider,
			"model", e.Model,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Err,
		)
	}
}

func (m *LogMeter) OnFallback(e askrouter.FallbackEvent) {
	m.Logger.Info("fallback",
		"user", e.UserID,
		"reason", e.Reason,
	)
}
