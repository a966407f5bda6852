package meter

import "github.com/farmsola/askrouter"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ askrouter.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnRoute(askrouter.RouteEvent)       {}
func (m *NoopMeter) OnResult(askrouter.ResultEvent)     {}
func (m *NoopMeter) OnFallback(askrouter.FallbackEvent) {}
