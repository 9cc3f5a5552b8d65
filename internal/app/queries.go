package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/okian/ghostrelay/internal/adapters/keystore"
	"github.com/okian/ghostrelay/internal/adapters/ledger"
	"github.com/okian/ghostrelay/internal/domain/model"
	"github.com/okian/ghostrelay/internal/domain/types"
	"github.com/okian/ghostrelay/pkg/logger"
	"github.com/okian/ghostrelay/pkg/metrics"
	"github.com/okian/ghostrelay/pkg/units"
)

// Ghost returns the ledger's view of a device's ghost, plus the relay's
// cached credits when the device is in the cache.
func (s *Service) Ghost(ctx context.Context, deviceAddress string) (types.GhostResponse, error) {
	cache, _, _, err := s.components()
	if err != nil {
		return types.GhostResponse{}, err
	}
	addr := keystore.NormalizeAddress(deviceAddress)
	if addr == "" {
		return types.GhostResponse{}, fmt.Errorf("%w: deviceAddress is required", ErrMalformedRequest)
	}

	var token uint64
	err = s.backendCall(ctx, ledger.CallDeviceToToken, func(ctx context.Context) (err error) {
		token, err = s.ledger.DeviceToToken(ctx, addr)
		return err
	})
	if err != nil {
		return types.GhostResponse{}, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	if token == 0 {
		return types.GhostResponse{}, fmt.Errorf("%w: %s", ErrUnregisteredDevice, addr)
	}

	var (
		g       model.Ghost
		deposit *big.Int
		stats   model.LifetimeStats
	)
	err = s.backendCall(ctx, ledger.CallGetGhost, func(ctx context.Context) (err error) {
		g, err = s.ledger.GetGhost(ctx, token)
		return err
	})
	if errors.Is(err, ledger.ErrTokenNotFound) {
		return types.GhostResponse{}, fmt.Errorf("%w: %s", ErrUnregisteredDevice, addr)
	}
	if err == nil {
		err = s.backendCall(ctx, ledger.CallGetDeposit, func(ctx context.Context) (err error) {
			deposit, err = s.ledger.GetDeposit(ctx, addr)
			return err
		})
	}
	if err == nil {
		err = s.backendCall(ctx, ledger.CallGetLifetimeStats, func(ctx context.Context) (err error) {
			stats, err = s.ledger.GetLifetimeStats(ctx, addr)
			return err
		})
	}
	if err != nil {
		return types.GhostResponse{}, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	resp := types.GhostResponse{
		TokenID:           token,
		Health:            g.Health,
		Appearance:        g.Appearance,
		GoodCredits:       g.GoodCredits,
		BadCredits:        g.BadCredits,
		Alpha:             units.AlphaRatio(g.CurrentAlpha).InexactFloat64(),
		PowerMW:           g.CurrentPowerMW,
		Deposit:           units.FormatEther(deposit),
		LifetimeRewards:   units.FormatEther(stats.TotalRewards),
		LifetimePenalties: units.FormatEther(stats.TotalPenalties),
		NetChange:         units.FormatEther(stats.NetChange),
	}
	if !g.LastUpdate.IsZero() {
		resp.LastUpdate = g.LastUpdate.Unix()
	}
	if st, ok := cache.Peek(ctx, addr); ok {
		resp.Cached = &types.CachedCredits{
			GoodCredits: st.Good,
			BadCredits:  st.Bad,
			Health:      st.Health,
		}
	}
	return resp, nil
}

// GridStatus returns the oracle's current answer. It is never cached.
func (s *Service) GridStatus(ctx context.Context) (types.GridStatusResponse, error) {
	if _, _, _, err := s.components(); err != nil {
		return types.GridStatusResponse{}, err
	}
	var st model.GridStatus
	err := s.backendCall(ctx, ledger.CallGridStatus, func(ctx context.Context) (err error) {
		st, err = s.oracle.GridStatus(ctx)
		return err
	})
	if err != nil {
		return types.GridStatusResponse{}, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	return types.GridStatusResponse{Status: string(st.State), CarbonIntensity: st.CarbonIntensity}, nil
}

// RegisterDevice binds a public key to a device address, replacing any
// previous binding. With auto-mint enabled, a device without a ghost gets one.
func (s *Service) RegisterDevice(ctx context.Context, deviceAddress, publicKeyPEM string) (types.RegisterDeviceResponse, error) {
	if _, _, _, err := s.components(); err != nil {
		return types.RegisterDeviceResponse{}, err
	}

	var (
		b       keystore.Binding
		created bool
	)
	err := s.backendCall(ctx, callKeyRegister, func(ctx context.Context) (err error) {
		b, created, err = s.keys.Register(ctx, deviceAddress, publicKeyPEM)
		return err
	})
	switch {
	case errors.Is(err, keystore.ErrInvalidKey), errors.Is(err, keystore.ErrInvalidDevice):
		return types.RegisterDeviceResponse{}, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	case err != nil:
		return types.RegisterDeviceResponse{}, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	metrics.RecordDeviceRegistration()

	resp := types.RegisterDeviceResponse{
		Success:       true,
		DeviceAddress: b.DeviceAddress,
		KeyType:       b.KeyType,
		Fingerprint:   b.Fingerprint,
		Created:       created,
	}

	if s.autoMint {
		token, err := s.ensureGhost(ctx, b)
		if err != nil {
			return types.RegisterDeviceResponse{}, err
		}
		resp.TokenID = token
	}

	s.logger.Info(ctx, "device key registered",
		logger.String("device_address", b.DeviceAddress),
		logger.String("key_type", b.KeyType),
		logger.String("fingerprint", b.Fingerprint),
		logger.Bool("created", created),
		logger.Uint64("token_id", resp.TokenID),
	)
	return resp, nil
}

// ensureGhost mints and funds a ghost for a device that has none.
func (s *Service) ensureGhost(ctx context.Context, b keystore.Binding) (uint64, error) {
	minter, ok := s.ledger.(Minter)
	if !ok {
		return 0, nil
	}

	var token uint64
	err := s.backendCall(ctx, ledger.CallDeviceToToken, func(ctx context.Context) (err error) {
		token, err = s.ledger.DeviceToToken(ctx, b.DeviceAddress)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	if token != 0 {
		return token, nil
	}

	hardwareID := b.Fingerprint
	if len(hardwareID) > 16 {
		hardwareID = hardwareID[:16]
	}
	token, err = minter.Mint(b.DeviceAddress, b.DeviceAddress, "hw-"+hardwareID)
	if errors.Is(err, ledger.ErrAlreadyMinted) {
		// A concurrent registration won the race.
		token, err = s.ledger.DeviceToToken(ctx, b.DeviceAddress)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: mint ghost: %w", ErrBackendUnavailable, err)
	}
	if s.initialDeposit != nil {
		if err := minter.Deposit(b.DeviceAddress, s.initialDeposit); err != nil {
			return 0, fmt.Errorf("%w: fund ghost: %w", ErrBackendUnavailable, err)
		}
	}
	s.logger.Info(ctx, "ghost minted",
		logger.String("device_address", b.DeviceAddress),
		logger.Uint64("token_id", token),
		logger.String("deposit", units.FormatEther(s.initialDeposit)),
	)
	return token, nil
}
