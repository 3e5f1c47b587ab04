// Package dispatch runs the per-invocation pipeline: default, gate, build,
// send, normalize. Each stage either yields the next stage's data or a
// terminal result; there is no backtracking and no dispatcher-level retry
// beyond what the remote client already performs.
package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"planbridge/internal/domain"
	"planbridge/internal/gate"
	"planbridge/internal/metrics"
	"planbridge/internal/remote"
	"planbridge/internal/scenario"
)

// Stage labels the pipeline position for logs.
type Stage string

const (
	StageReceived   Stage = "received"
	StageDefaulted  Stage = "defaulted"
	StageGated      Stage = "gated"
	StageBuilt      Stage = "built"
	StageSent       Stage = "sent"
	StageNormalized Stage = "normalized"
)

// Sender is the slice of the remote client the dispatcher needs.
type Sender interface {
	Do(ctx context.Context, req *remote.Request) (*remote.Response, error)
}

// Dispatcher orchestrates one tool invocation end to end. Invocations are
// independent, stateless units of work; the tier cache is the only shared
// state and it is passed in by reference.
type Dispatcher struct {
	tiers  *gate.TierCache
	sender Sender
	logger *slog.Logger
}

func New(tiers *gate.TierCache, sender Sender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{tiers: tiers, sender: sender, logger: logger}
}

// Dispatch runs the pipeline for one partial scenario. It always returns a
// structured result; user input and remote behavior can never make it panic.
// Cancellation of ctx releases any outstanding remote request.
func (d *Dispatcher) Dispatch(ctx context.Context, in scenario.Input) domain.InvocationResult {
	id := uuid.NewString()
	log := d.logger.With("invocation", id, "operation", in.Operation)
	log.Debug("invocation received", "stage", StageReceived)

	req, rejected := scenario.Complete(in)
	if rejected != nil {
		log.Info("invocation rejected", "stage", StageDefaulted,
			"field", rejected.Field, "reason", rejected.Reason)
		return d.finish(in.Operation, *rejected)
	}
	log.Debug("scenario completed", "stage", StageDefaulted, "couple", req.IsCouple())

	tier, err := d.tiers.Resolve(ctx)
	if err != nil {
		log.Error("tier resolution failed", "err", err)
		return d.finish(in.Operation, domain.RemoteError("probe_failed", err.Error()))
	}
	if tier == domain.TierInvalid {
		return d.finish(in.Operation, domain.RemoteError("unauthorized",
			"the configured API key is invalid"))
	}
	if rejected := gate.Check(req, tier); rejected != nil {
		log.Info("invocation rejected", "stage", StageGated, "feature", rejected.Feature)
		return d.finish(in.Operation, *rejected)
	}
	log.Debug("entitlement check passed", "stage", StageGated, "tier", tier)

	built, err := remote.Build(req)
	if err != nil {
		// Build failures are programmer errors: the scenario was already
		// validated. Surface them without crashing the transport.
		log.Error("request build invariant violated", "stage", StageBuilt, "err", err)
		return d.finish(in.Operation, domain.RemoteError("internal", err.Error()))
	}

	resp, err := d.send(ctx, log, built)
	log.Debug("remote exchange finished", "stage", StageSent, "err", err)

	result := remote.Normalize(req.Operation, resp, err)
	if result.Status == domain.StatusOK && req.Operation == domain.OpSustainableSpend {
		result.Payload = decorateSpend(req, result.Payload)
	}
	log.Info("invocation finished", "stage", StageNormalized, "status", result.Status)
	return d.finish(in.Operation, result)
}

// send performs the remote exchange. On an authentication failure it
// re-probes the tier exactly once — the key may have been rotated since the
// cache was filled — and repeats the request when the new tier is usable.
func (d *Dispatcher) send(ctx context.Context, log *slog.Logger, built *remote.Request) (*remote.Response, error) {
	resp, err := d.sender.Do(ctx, built)

	var authErr *remote.AuthError
	if err != nil && errors.As(err, &authErr) {
		log.Warn("auth failure, re-probing tier", "status", authErr.StatusCode)
		tier, probeErr := d.tiers.Reprobe(ctx)
		if probeErr != nil || tier == domain.TierInvalid || tier == domain.TierUnknown {
			return resp, err
		}
		return d.sender.Do(ctx, built)
	}
	return resp, err
}

func (d *Dispatcher) finish(op domain.Operation, res domain.InvocationResult) domain.InvocationResult {
	metrics.Collector.Counter("planbridge_invocations_total",
		"Tool invocations by operation and outcome",
		`operation="`+string(op)+`",status="`+string(res.Status)+`"`).Inc()
	return res
}
