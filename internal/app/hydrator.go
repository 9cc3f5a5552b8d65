package service

import (
	"context"
	"errors"

	"github.com/okian/ghostrelay/internal/adapters/ledger"
	"github.com/okian/ghostrelay/internal/adapters/repository"
	"github.com/okian/ghostrelay/internal/domain/model"
)

// ledgerHydrator seeds the credit cache from DeviceToToken + GetGhost.
type ledgerHydrator struct {
	svc *Service
}

func (h *ledgerHydrator) Hydrate(ctx context.Context, deviceAddress string) (model.CreditState, error) {
	var token uint64
	err := h.svc.backendCall(ctx, ledger.CallDeviceToToken, func(ctx context.Context) (err error) {
		token, err = h.svc.ledger.DeviceToToken(ctx, deviceAddress)
		return err
	})
	if err != nil {
		return model.CreditState{}, err
	}
	if token == 0 {
		return model.CreditState{}, repository.ErrNotFound
	}

	var g model.Ghost
	err = h.svc.backendCall(ctx, ledger.CallGetGhost, func(ctx context.Context) (err error) {
		g, err = h.svc.ledger.GetGhost(ctx, token)
		return err
	})
	if errors.Is(err, ledger.ErrTokenNotFound) {
		return model.CreditState{}, repository.ErrNotFound
	}
	if err != nil {
		return model.CreditState{}, err
	}

	return model.CreditState{
		TokenID: token,
		Good:    g.GoodCredits,
		Bad:     g.BadCredits,
		Health:  g.Health,
	}, nil
}
