package service

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/ghostrelay/internal/adapters/keystore"
	"github.com/okian/ghostrelay/internal/adapters/ledger"
	eventqueue "github.com/okian/ghostrelay/internal/adapters/mq/queue"
	"github.com/okian/ghostrelay/internal/adapters/repository"
	"github.com/okian/ghostrelay/internal/domain/dedupe"
	"github.com/okian/ghostrelay/internal/domain/health"
	"github.com/okian/ghostrelay/internal/domain/model"
	"github.com/okian/ghostrelay/internal/domain/signature"
	"github.com/okian/ghostrelay/internal/domain/types"
	"github.com/okian/ghostrelay/pkg/logger"
	"github.com/okian/ghostrelay/pkg/metrics"
	"github.com/okian/ghostrelay/pkg/units"
)

// Pipeline stage names, used as metric labels.
const (
	stageVerify     = "verify"
	stageDedupe     = "dedupe"
	stageLock       = "lock"
	stageCredits    = "credits"
	stageOracle     = "oracle"
	stageEvaluate   = "evaluate"
	stageCommit     = "commit"
	stagePostCommit = "post_commit"
	stageTotal      = "total"

	callKeyLookup   ledger.Call = "key_lookup"
	callKeyRegister ledger.Call = "key_register"
)

// outcome is what the locked section of the pipeline produces.
type outcome struct {
	state         model.CreditState
	grid          model.GridStatus
	alphaMilli    int
	snapshot      health.Snapshot
	oldHealth     int
	txHash        string
	gameLogicHash string
}

func observe(stage string, start time.Time) {
	metrics.RecordStageLatency(stage, float64(time.Since(start).Microseconds())/1000)
}

// SubmitReading verifies a signed reading, applies its credit, commits the
// derived ghost state to the ledger and reports the result.
//
// Readings of one device are serialised from the credit lookup to the
// commit; readings of different devices proceed in parallel.
func (s *Service) SubmitReading(ctx context.Context, r model.DeviceReading) (resp types.ReadingResponse, err error) { //nolint:gocritic // hugeParam: readings are immutable values
	start := time.Now()
	cache, deduper, queue, err := s.components()
	if err != nil {
		return resp, err
	}

	r, err = s.normalizeReading(ctx, r)
	if err != nil {
		s.reject(ctx, r, err)
		return resp, err
	}
	defer func() {
		if err != nil {
			s.reject(ctx, r, err)
			return
		}
		observe(stageTotal, start)
		metrics.RecordReadingProcessed()
	}()

	payload := signature.CanonicalPayload(r.Timestamp, r.PowerUsageWatts)

	stageStart := time.Now()
	err = s.verify(ctx, r, payload)
	observe(stageVerify, stageStart)
	if err != nil {
		return resp, err
	}

	stageStart = time.Now()
	replayKey := dedupe.Key(r.DeviceAddress, payload)
	seen := deduper.SeenAndRecord(ctx, replayKey)
	observe(stageDedupe, stageStart)
	if seen {
		return resp, fmt.Errorf("%w: device %s already submitted this reading", ErrDuplicateReading, r.DeviceAddress)
	}
	// The guard keeps the key once the ledger has counted the reading.
	ledgerWritten := false
	defer func() {
		if !ledgerWritten {
			deduper.Unrecord(ctx, replayKey)
		}
	}()

	stageStart = time.Now()
	lockCtx, cancelLock := context.WithTimeout(ctx, s.lockTimeout)
	unlock, err := cache.Lock(lockCtx, r.DeviceAddress)
	cancelLock()
	observe(stageLock, stageStart)
	if err != nil {
		return resp, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	out, written, err := s.applyReading(ctx, cache, r)
	unlock()
	ledgerWritten = written
	if err != nil {
		return resp, err
	}

	resp = types.ReadingResponse{
		Success:         true,
		TransactionHash: out.txHash,
		GameLogicHash:   out.gameLogicHash,
		Health:          out.snapshot.Health,
		OldHealth:       out.oldHealth,
		Appearance:      out.snapshot.Appearance.String(),
		GoodCredits:     out.state.Good,
		BadCredits:      out.state.Bad,
		Alpha:           units.AlphaRatio(out.alphaMilli).InexactFloat64(),
		PowerMW:         units.WattsToMW(r.PowerUsageWatts).InexactFloat64(),
		GridStatus:      string(out.grid.State),
		CarbonIntensity: out.grid.CarbonIntensity,
	}

	stageStart = time.Now()
	s.postCommit(ctx, r.DeviceAddress, &resp)
	observe(stagePostCommit, stageStart)

	metrics.RecordGridReading(string(out.grid.State))
	metrics.RecordHealth(out.snapshot.Health)
	if resp.IntegrationTriggered {
		metrics.RecordIntegrationTriggered()
	}

	s.logger.Info(ctx, "reading committed",
		logger.String("device_address", r.DeviceAddress),
		logger.String("device_id", r.DeviceID),
		logger.Uint64("token_id", out.state.TokenID),
		logger.String("grid_status", resp.GridStatus),
		logger.Int("old_health", resp.OldHealth),
		logger.Int("health", resp.Health),
		logger.String("appearance", resp.Appearance),
		logger.Bool("integration_triggered", resp.IntegrationTriggered),
	)

	s.notify(ctx, queue, r, out, resp)
	return resp, nil
}

// normalizeReading validates the request shape and resolves the protocol
// version. A request without a version is v1 when it carries a hash.
func (s *Service) normalizeReading(ctx context.Context, r model.DeviceReading) (model.DeviceReading, error) { //nolint:gocritic // hugeParam: readings are immutable values
	r.DeviceAddress = keystore.NormalizeAddress(r.DeviceAddress)
	r.Timestamp = strings.TrimSpace(r.Timestamp)
	r.Signature = strings.TrimSpace(r.Signature)

	switch {
	case r.DeviceAddress == "":
		return r, fmt.Errorf("%w: deviceAddress is required", ErrMalformedRequest)
	case r.Timestamp == "":
		return r, fmt.Errorf("%w: timestamp is required", ErrMalformedRequest)
	case r.PowerUsageWatts < 0:
		return r, fmt.Errorf("%w: powerUsage must be non-negative", ErrMalformedRequest)
	case r.Signature == "":
		return r, fmt.Errorf("%w: signature is required", ErrMalformedRequest)
	}

	if r.Protocol == 0 {
		if r.Hash != "" {
			r.Protocol = model.ProtocolV1
			s.logger.Warn(ctx, "unversioned pre-hashed reading treated as protocol v1; set protocolVersion explicitly",
				logger.String("device_address", r.DeviceAddress))
		} else {
			r.Protocol = model.ProtocolV2
		}
	}
	if !r.Protocol.Valid() {
		return r, fmt.Errorf("%w: unsupported protocolVersion %d", ErrMalformedRequest, r.Protocol)
	}
	return r, nil
}

// verify checks the signature against the device's registered key, or the
// key carried by the reading when the device has not registered one.
func (s *Service) verify(ctx context.Context, r model.DeviceReading, payload []byte) error { //nolint:gocritic // hugeParam: readings are immutable values
	var declared crypto.PublicKey
	if strings.TrimSpace(r.PublicKey) != "" {
		pub, err := signature.ParsePublicKey(r.PublicKey)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
		}
		declared = pub
	}

	var binding keystore.Binding
	err := s.backendCall(ctx, callKeyLookup, func(ctx context.Context) (err error) {
		binding, err = s.keys.Lookup(ctx, r.DeviceAddress)
		return err
	})

	var key crypto.PublicKey
	switch {
	case err == nil:
		registered, perr := signature.ParsePublicKey(binding.PublicKeyPEM)
		if perr != nil {
			return fmt.Errorf("registered key for %s: %w", r.DeviceAddress, perr)
		}
		if declared != nil && !signature.SameKey(declared, registered) {
			return fmt.Errorf("%w: %w", ErrInvalidSignature, ErrKeyMismatch)
		}
		key = registered
	case errors.Is(err, keystore.ErrNotFound):
		if declared == nil {
			return fmt.Errorf("%w: no public key supplied and none registered", ErrInvalidSignature)
		}
		key = declared
	default:
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	if err := signature.CheckWithKey(r.Protocol, payload, r.Signature, r.Hash, key); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return nil
}

// applyReading runs the locked section: resolve credits, query the grid,
// apply one credit, derive health and commit. written reports whether the
// ledger already holds the new credit counters.
func (s *Service) applyReading(ctx context.Context, cache repository.CreditCache, r model.DeviceReading) (out outcome, written bool, err error) { //nolint:gocritic // hugeParam: readings are immutable values
	addr := r.DeviceAddress

	stageStart := time.Now()
	before, err := cache.Get(ctx, addr)
	observe(stageCredits, stageStart)
	if errors.Is(err, repository.ErrNotFound) {
		return out, false, fmt.Errorf("%w: %s", ErrUnregisteredDevice, addr)
	}
	if err != nil {
		return out, false, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	stageStart = time.Now()
	err = s.backendCall(ctx, ledger.CallGridStatus, func(ctx context.Context) (err error) {
		out.grid, err = s.oracle.GridStatus(ctx)
		return err
	})
	observe(stageOracle, stageStart)
	if err != nil {
		return out, false, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	if out.grid.State != model.GridClean && out.grid.State != model.GridDirty {
		return out, false, fmt.Errorf("%w: unknown grid status %q", ErrOracleUnavailable, out.grid.State)
	}

	stageStart = time.Now()
	delta := model.DeltaFor(out.grid.State)
	out.state, err = cache.Apply(ctx, addr, delta)
	if err != nil {
		return out, false, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	out.oldHealth = before.Health
	out.alphaMilli, out.snapshot = health.Evaluate(out.state.Good, out.state.Bad, r.PowerUsageWatts)
	observe(stageEvaluate, stageStart)

	stageStart = time.Now()
	defer observe(stageCommit, stageStart)

	err = s.backendCall(ctx, ledger.CallUpdateGhost, func(ctx context.Context) error {
		rcpt, err := s.ledger.UpdateGhost(ctx, model.GhostUpdate{
			TokenID:    out.state.TokenID,
			Appearance: out.snapshot.Appearance.String(),
			Health:     out.snapshot.Health,
			Good:       out.state.Good,
			Bad:        out.state.Bad,
			AlphaMilli: out.alphaMilli,
			PowerMW:    units.WholeMW(r.PowerUsageWatts),
		})
		out.txHash = rcpt.TransactionHash
		return err
	})
	if err != nil {
		if rerr := cache.Revert(ctx, addr, delta); rerr != nil {
			s.logger.Error(ctx, "credit rollback failed, dropping cache entry",
				logger.String("device_address", addr), logger.Error(rerr))
			cache.Invalidate(ctx, addr)
		}
		return out, false, fmt.Errorf("%w: %w", ErrBackendCommitFailed, err)
	}

	err = s.backendCall(ctx, ledger.CallProcessReading, func(ctx context.Context) error {
		rcpt, err := s.ledger.ProcessReading(ctx, addr, out.state.TokenID, out.grid.State, out.snapshot.Health, out.oldHealth)
		out.gameLogicHash = rcpt.TransactionHash
		return err
	})
	if err != nil {
		// The ghost already carries the new counters; rebuild from the ledger.
		cache.Invalidate(ctx, addr)
		return out, true, fmt.Errorf("%w: %w", ErrBackendCommitFailed, err)
	}

	if err := cache.SetHealth(ctx, addr, out.snapshot.Health); err != nil {
		s.logger.Warn(ctx, "could not record committed health", logger.String("device_address", addr), logger.Error(err))
	}
	return out, true, nil
}

// postCommit fills the integration flag and deposit. Failures here do not
// undo the commit; they are reported as warnings.
func (s *Service) postCommit(ctx context.Context, addr string, resp *types.ReadingResponse) {
	err := s.backendCall(ctx, ledger.CallShouldIntegrate, func(ctx context.Context) (err error) {
		resp.IntegrationTriggered, err = s.ledger.ShouldCalculateIntegration(ctx, addr)
		return err
	})
	if err != nil {
		resp.Warnings = append(resp.Warnings, "integration check unavailable: "+err.Error())
	}

	err = s.backendCall(ctx, ledger.CallGetDeposit, func(ctx context.Context) error {
		dep, err := s.ledger.GetDeposit(ctx, addr)
		if err != nil {
			return err
		}
		resp.Deposit = units.FormatEther(dep)
		return nil
	})
	if err != nil {
		resp.Warnings = append(resp.Warnings, "deposit unavailable: "+err.Error())
	}

	if len(resp.Warnings) > 0 {
		s.logger.Warn(ctx, "post-commit query failed",
			logger.String("device_address", addr),
			logger.Any("warnings", resp.Warnings))
	}
}

// notify enqueues the committed reading without blocking the response.
func (s *Service) notify(ctx context.Context, q eventqueue.Queue, r model.DeviceReading, out outcome, resp types.ReadingResponse) { //nolint:gocritic // hugeParam: values are copied into the event
	event := model.CommittedReading{
		EventID:              uuid.NewString(),
		DeviceAddress:        r.DeviceAddress,
		DeviceID:             r.DeviceID,
		TokenID:              out.state.TokenID,
		Timestamp:            r.Timestamp,
		PowerUsageWatts:      r.PowerUsageWatts,
		GridStatus:           out.grid.State,
		CarbonIntensity:      out.grid.CarbonIntensity,
		GoodCredits:          out.state.Good,
		BadCredits:           out.state.Bad,
		AlphaMilli:           out.alphaMilli,
		OldHealth:            out.oldHealth,
		Health:               out.snapshot.Health,
		Appearance:           resp.Appearance,
		TransactionHash:      out.txHash,
		GameLogicHash:        out.gameLogicHash,
		IntegrationTriggered: resp.IntegrationTriggered,
		CommittedAt:          time.Now().UTC(),
	}
	if !q.Enqueue(context.WithoutCancel(ctx), event) {
		metrics.RecordNotificationDropped()
		s.logger.Warn(ctx, "notification queue full, dropping committed reading",
			logger.String("event_id", event.EventID),
			logger.String("device_address", event.DeviceAddress))
	}
}

// reject records a rejected reading.
func (s *Service) reject(ctx context.Context, r model.DeviceReading, err error) { //nolint:gocritic // hugeParam: readings are immutable values
	reason := Reason(err)
	metrics.RecordReadingRejected(reason)

	fields := []logger.Field{
		logger.String("device_address", r.DeviceAddress),
		logger.String("reason", reason),
		logger.Error(err),
	}
	switch reason {
	case ReasonOracleUnavailable, ReasonBackendUnavailable, ReasonCommitFailed, ReasonInternal:
		metrics.RecordErrorByComponent("pipeline", reason)
		s.logger.Error(ctx, "reading rejected", fields...)
	default:
		s.logger.Warn(ctx, "reading rejected", fields...)
	}
}
