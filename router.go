package askrouter

import (
	"context"
	"errors"
	"time"
)

// Router walks the ordered candidate list for one request: claim health,
// reserve quota, invoke the adapter under the per-call timeout, then commit
// on success or refund and move on. Provider errors never escape the
// router's caller unclassified.
type Router struct {
	cfg       Config
	providers map[string]Provider
	policy    Policy
	quota     *QuotaTracker
	health    *HealthTracker
	meter     Meter
	totals    *Totals
}

func (r *Router) route(ctx context.Context, req Request, preferred string) (Result, error) {
	candidates := buildCandidates(ctx, r.cfg, r.providers, r.quota, r.health, req.UserID)
	if len(candidates) == 0 {
		return Result{}, ErrNoCandidates
	}

	ordered := promotePreferred(r.policy.Select(candidates), preferred)
	estimated := EstimateTokens(req.Prompt)

	var lastErr error
	attempts := 0

	for _, c := range ordered {
		if !r.health.Acquire(c.ID) {
			continue
		}

		reservation, err := r.quota.Reserve(ctx, req.UserID, c.ID, estimated)
		if err != nil {
			r.health.Release(c.ID)
			lastErr = err
			continue
		}

		attempts++
		r.meter.OnRoute(RouteEvent{
			UserID:    req.UserID,
			Provider:  c.ID,
			Model:     c.Model,
			Attempt:   attempts,
			Remaining: c.Remaining,
		})

		genReq := GenerateRequest{
			Auth:        c.Auth,
			Model:       c.Model,
			System:      r.cfg.SystemPrompt,
			Prompt:      req.Prompt,
			MaxTokens:   maxTokensPtr(c.MaxTokens),
			Temperature: c.Temperature,
		}

		start := time.Now()
		resp, err := r.generate(ctx, c.Provider, genReq)
		duration := time.Since(start)

		if err != nil {
			r.quota.Rollback(reservation)

			r.meter.OnResult(ResultEvent{
				UserID:   req.UserID,
				Provider: c.ID,
				Model:    c.Model,
				Duration: duration,
				Err:      err,
			})

			// The caller abandoned the request: the reservation is already
			// refunded, and the abort says nothing about the provider's
			// health. Return any claimed probe slot and stop trying
			// further candidates.
			if ctx.Err() != nil {
				r.health.Release(c.ID)
				return Result{}, ctx.Err()
			}

			if IsConfigError(err) {
				r.health.MarkAuthFailed(c.ID)
			} else {
				r.health.RecordFailure(c.ID)
			}

			lastErr = err
			continue
		}

		r.health.RecordSuccess(c.ID)

		_, commitErr := r.quota.Commit(ctx, reservation, resp.Usage.TotalTokens)
		r.totals.Record(c.ID, resp.Usage.TotalTokens)
		r.meter.OnResult(ResultEvent{
			UserID:   req.UserID,
			Provider: c.ID,
			Model:    resp.Model,
			Success:  true,
			Duration: duration,
			Usage:    resp.Usage,
			Err:      commitErr, // persistence failure is logged, never fatal
		})

		return Result{
			Answer:     resp.Text,
			Provider:   c.ID,
			Model:      resp.Model,
			TokensUsed: resp.Usage.TotalTokens,
			Attempts:   attempts,
		}, nil
	}

	if lastErr != nil {
		return Result{}, &RouteError{Err: lastErr, Attempts: attempts}
	}
	return Result{}, ErrNoCandidates
}

// generate runs the adapter call as its own unit of work under the per-call
// timeout. A call that outlives the deadline is abandoned: the goroutine is
// left to finish against the canceled context and its result is discarded.
func (r *Router) generate(ctx context.Context, p Provider, req GenerateRequest) (GenerateResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.CallTimeout))
	defer cancel()

	type outcome struct {
		resp GenerateResponse
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		resp, err := p.Generate(callCtx, req)
		done <- outcome{resp, err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) {
			return GenerateResponse{}, ErrNetworkTimeout
		}
		return out.resp, out.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return GenerateResponse{}, ctx.Err()
		}
		return GenerateResponse{}, ErrNetworkTimeout
	}
}

func maxTokensPtr(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}
