package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/okian/ghostrelay/internal/domain/model"
	"github.com/okian/ghostrelay/internal/domain/signature"
	"github.com/okian/ghostrelay/internal/domain/types"
	"github.com/okian/ghostrelay/pkg/logger"
)

// timestampLayout matches JavaScript's Date.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Runner drives one simulated device.
type Runner struct {
	cfg    Config
	client *Client
	rng    *rand.Rand
	now    func() time.Time
	logger logger.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSeed makes power samples reproducible.
func WithSeed(seed uint64) Option {
	return func(r *Runner) {
		r.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithClock overrides the reading timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner validates cfg and returns a runner.
func NewRunner(cfg Config, opts ...Option) (*Runner, error) { //nolint:gocritic // hugeParam: config is copied once
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:    cfg,
		client: NewClient(cfg.RelayURL, cfg.Timeout),
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)), //nolint:gosec // simulated load, not security sensitive
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("simulator")
	}
	return r, nil
}

// Run registers the device key and submits readings until Count is reached
// or ctx ends. The first reading is sent immediately. Rejected readings are
// logged and counted; only a failure to load the key stops the run.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	stats := Stats{StartTime: time.Now()}

	key, created, err := LoadOrCreateKey(r.cfg.KeyDir, r.cfg.DeviceID)
	if err != nil {
		return stats, err
	}
	r.logger.Info(ctx, "device key ready",
		logger.String("device", r.cfg.DeviceID),
		logger.Bool("generated", created),
	)

	if reg, err := r.client.Register(ctx, r.cfg.DeviceAddress, key.PublicPEM); err != nil {
		r.logger.Warn(ctx, "device registration failed", logger.Error(err))
	} else {
		r.logger.Info(ctx, "device registered",
			logger.String("address", reg.DeviceAddress),
			logger.String("fingerprint", reg.Fingerprint),
			logger.Uint64("tokenId", reg.TokenID),
		)
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for n := 0; r.cfg.Count == 0 || n < r.cfg.Count; n++ {
		if n > 0 {
			select {
			case <-ctx.Done():
				stats.Duration = time.Since(stats.StartTime)
				return stats, nil
			case <-ticker.C:
			}
		}
		r.sendOne(ctx, key, n, &stats)
	}

	stats.Duration = time.Since(stats.StartTime)
	r.logger.Info(ctx, "simulation finished",
		logger.Int("sent", stats.Sent),
		logger.Int("accepted", stats.Accepted),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.String("duration", stats.Duration.String()),
	)
	return stats, nil
}

func (r *Runner) sendOne(ctx context.Context, key DeviceKey, n int, stats *Stats) {
	scenario := ScenarioFor(n, r.cfg.Scenario)
	req, err := r.Reading(key, scenario.Sample(r.rng))
	if err != nil {
		stats.Failed++
		r.logger.Error(ctx, "signing reading failed", logger.Error(err))
		return
	}

	stats.Sent++
	resp, err := r.client.Submit(ctx, req)
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		stats.Rejected++
		r.logger.Warn(ctx, "reading rejected",
			logger.Int("status", apiErr.Status),
			logger.String("code", apiErr.Code),
			logger.String("message", apiErr.Message),
		)
	case err != nil:
		stats.Failed++
		r.logger.Error(ctx, "reading not delivered", logger.Error(err))
	default:
		stats.Accepted++
		stats.LastHealth = resp.Health
		if resp.IntegrationTriggered {
			stats.Integrated++
		}
		r.logger.Info(ctx, "reading processed",
			logger.String("scenario", scenario.Name),
			logger.Int64("powerUsage", *req.PowerUsage),
			logger.String("grid", resp.GridStatus),
			logger.Uint64("carbonIntensity", resp.CarbonIntensity),
			logger.Int("oldHealth", resp.OldHealth),
			logger.Int("health", resp.Health),
			logger.String("appearance", resp.Appearance),
			logger.Float64("alpha", resp.Alpha),
			logger.String("deposit", resp.Deposit),
			logger.Bool("integrationTriggered", resp.IntegrationTriggered),
			logger.String("tx", resp.TransactionHash),
		)
	}
}

// Reading signs a reading of watts taken now.
func (r *Runner) Reading(key DeviceKey, watts int64) (types.ReadingRequest, error) {
	ts := r.now().UTC().Format(timestampLayout)
	signed, err := signature.Sign(r.cfg.Protocol, ts, watts, key.Private)
	if err != nil {
		return types.ReadingRequest{}, fmt.Errorf("sign reading: %w", err)
	}
	req := types.ReadingRequest{
		ProtocolVersion: int(r.cfg.Protocol),
		DeviceID:        r.cfg.DeviceID,
		DeviceAddress:   r.cfg.DeviceAddress,
		Timestamp:       ts,
		PowerUsage:      &watts,
		Signature:       signed.Signature,
		PublicKey:       key.PublicPEM,
	}
	if r.cfg.Protocol == model.ProtocolV1 {
		req.Hash = signed.Hash
	}
	return req, nil
}
