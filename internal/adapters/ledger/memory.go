package ledger

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/ghostrelay/internal/domain/model"
)

const (
	defaultLedgerSeed          = 42
	defaultIntegrationInterval = 10
	neutralHealth              = 50
	neutralAppearance          = "Neutral"
)

// defaultRewardPerReading is 0.001 ether.
var defaultRewardPerReading = big.NewInt(1_000_000_000_000_000)

type account struct {
	deposit   *big.Int
	rewards   *big.Int
	penalties *big.Int
	readings  uint64
}

func newAccount() *account {
	return &account{deposit: new(big.Int), rewards: new(big.Int), penalties: new(big.Int)}
}

// InMemoryLedger simulates the ghost NFT and game logic contracts.
// Device addresses are compared case-insensitively.
type InMemoryLedger struct {
	mu                  sync.RWMutex
	tokens              map[string]uint64 // device -> token
	ghosts              map[uint64]model.Ghost
	accounts            map[string]*account
	nextToken           uint64
	integrationInterval uint64
	rewardPerReading    *big.Int

	latency  *latencySim
	failures failures
}

var _ Ledger = (*InMemoryLedger)(nil)

// NewInMemoryLedger creates an empty simulated ledger.
func NewInMemoryLedger(opts ...Option) *InMemoryLedger {
	l := &InMemoryLedger{
		tokens:              make(map[string]uint64),
		ghosts:              make(map[uint64]model.Ghost),
		accounts:            make(map[string]*account),
		nextToken:           1,
		integrationInterval: defaultIntegrationInterval,
		rewardPerReading:    new(big.Int).Set(defaultRewardPerReading),
		latency:             newLatencySim(defaultLedgerSeed, 0, 0),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func norm(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// txHash returns a random 32-byte hex transaction hash.
func txHash() string {
	a, b := uuid.New(), uuid.New()
	return "0x" + hex.EncodeToString(a[:]) + hex.EncodeToString(b[:])
}

// InjectFailure makes every subsequent call of the given kind fail with err.
// A nil err clears the injection.
func (l *InMemoryLedger) InjectFailure(call Call, err error) {
	l.failures.set(call, err)
}

// ClearFailures removes all injected failures.
func (l *InMemoryLedger) ClearFailures() {
	l.failures.clear()
}

func (l *InMemoryLedger) enter(ctx context.Context, call Call) error {
	if err := l.latency.wait(ctx); err != nil {
		return err
	}
	return l.failures.get(call)
}

// Mint creates a ghost for a device, as the mint script does. Returns the token id.
func (l *InMemoryLedger) Mint(owner, deviceAddress string, hardwareID string) (uint64, error) {
	dev := norm(deviceAddress)
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.tokens[dev]; ok {
		return 0, ErrAlreadyMinted
	}
	id := l.nextToken
	l.nextToken++
	l.tokens[dev] = id
	l.ghosts[id] = model.Ghost{
		TokenID:     id,
		Health:      neutralHealth,
		Appearance:  neutralAppearance,
		LastUpdate:  time.Now().UTC(),
		DeviceOwner: owner,
		HardwareID:  hardwareID,
		Soulbound:   true,
	}
	if _, ok := l.accounts[dev]; !ok {
		l.accounts[dev] = newAccount()
	}
	return id, nil
}

// Seed overwrites a ghost's counters and health. Intended for tests and demos.
func (l *InMemoryLedger) Seed(tokenID uint64, good, bad uint64, health int, appearance string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.ghosts[tokenID]
	if !ok {
		return ErrTokenNotFound
	}
	g.GoodCredits, g.BadCredits, g.Health, g.Appearance = good, bad, health, appearance
	l.ghosts[tokenID] = g
	return nil
}

// Deposit credits wei to the device's deposit balance.
func (l *InMemoryLedger) Deposit(deviceAddress string, wei *big.Int) error {
	if wei == nil || wei.Sign() <= 0 {
		return ErrInvalidAmount
	}
	dev := norm(deviceAddress)
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[dev]
	if !ok {
		acc = newAccount()
		l.accounts[dev] = acc
	}
	acc.deposit.Add(acc.deposit, wei)
	return nil
}

func (l *InMemoryLedger) DeviceToToken(ctx context.Context, deviceAddress string) (uint64, error) {
	if err := l.enter(ctx, CallDeviceToToken); err != nil {
		return 0, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tokens[norm(deviceAddress)], nil
}

func (l *InMemoryLedger) GetGhost(ctx context.Context, tokenID uint64) (model.Ghost, error) {
	if err := l.enter(ctx, CallGetGhost); err != nil {
		return model.Ghost{}, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	g, ok := l.ghosts[tokenID]
	if !ok {
		return model.Ghost{}, ErrTokenNotFound
	}
	return g, nil
}

func (l *InMemoryLedger) UpdateGhost(ctx context.Context, u model.GhostUpdate) (model.Receipt, error) {
	if err := l.enter(ctx, CallUpdateGhost); err != nil {
		return model.Receipt{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.ghosts[u.TokenID]
	if !ok {
		return model.Receipt{}, ErrTokenNotFound
	}
	g.Appearance = u.Appearance
	g.Health = u.Health
	g.GoodCredits = u.Good
	g.BadCredits = u.Bad
	g.CurrentAlpha = u.AlphaMilli
	g.CurrentPowerMW = u.PowerMW
	g.LastUpdate = time.Now().UTC()
	l.ghosts[u.TokenID] = g
	return model.Receipt{TransactionHash: txHash()}, nil
}

// ProcessReading rewards a clean reading and penalises a dirty one by the
// configured amount. Penalties never take the deposit below zero.
func (l *InMemoryLedger) ProcessReading(ctx context.Context, deviceAddress string, tokenID uint64, grid model.GridState, newHealth, oldHealth int) (model.Receipt, error) {
	if err := l.enter(ctx, CallProcessReading); err != nil {
		return model.Receipt{}, err
	}
	dev := norm(deviceAddress)
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tokens[dev] != tokenID || tokenID == 0 {
		return model.Receipt{}, ErrTokenNotFound
	}
	acc, ok := l.accounts[dev]
	if !ok {
		acc = newAccount()
		l.accounts[dev] = acc
	}

	if grid == model.GridClean {
		acc.deposit.Add(acc.deposit, l.rewardPerReading)
		acc.rewards.Add(acc.rewards, l.rewardPerReading)
	} else {
		penalty := new(big.Int).Set(l.rewardPerReading)
		if penalty.Cmp(acc.deposit) > 0 {
			penalty.Set(acc.deposit)
		}
		acc.deposit.Sub(acc.deposit, penalty)
		acc.penalties.Add(acc.penalties, penalty)
	}
	acc.readings++
	return model.Receipt{TransactionHash: txHash()}, nil
}

func (l *InMemoryLedger) GetDeposit(ctx context.Context, deviceAddress string) (*big.Int, error) {
	if err := l.enter(ctx, CallGetDeposit); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[norm(deviceAddress)]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(acc.deposit), nil
}

func (l *InMemoryLedger) GetLifetimeStats(ctx context.Context, deviceAddress string) (model.LifetimeStats, error) {
	if err := l.enter(ctx, CallGetLifetimeStats); err != nil {
		return model.LifetimeStats{}, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[norm(deviceAddress)]
	if !ok {
		acc = newAccount()
	}
	return model.LifetimeStats{
		TotalRewards:   new(big.Int).Set(acc.rewards),
		TotalPenalties: new(big.Int).Set(acc.penalties),
		NetChange:      new(big.Int).Sub(acc.rewards, acc.penalties),
	}, nil
}

// ShouldCalculateIntegration is true once every integrationInterval processed
// readings of the device.
func (l *InMemoryLedger) ShouldCalculateIntegration(ctx context.Context, deviceAddress string) (bool, error) {
	if err := l.enter(ctx, CallShouldIntegrate); err != nil {
		return false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[norm(deviceAddress)]
	if !ok || acc.readings == 0 {
		return false, nil
	}
	return acc.readings%l.integrationInterval == 0, nil
}
