package service_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ghostrelay/internal/adapters/keystore"
	"github.com/okian/ghostrelay/internal/adapters/ledger"
	service "github.com/okian/ghostrelay/internal/app"
	"github.com/okian/ghostrelay/internal/domain/model"
	"github.com/okian/ghostrelay/internal/domain/signature"
	"github.com/okian/ghostrelay/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const device = "0xAbC0000000000000000000000000000000000001"

// rsaKey is shared across tests; generating 2048-bit keys is slow.
var (
	keyOnce sync.Once
	rsaKey  *rsa.PrivateKey
)

func deviceKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		rsaKey = k
	})
	return rsaKey
}

type capturePublisher struct {
	mu     sync.Mutex
	events []model.CommittedReading
}

func (c *capturePublisher) Publish(ctx context.Context, e model.CommittedReading) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *capturePublisher) snapshot() []model.CommittedReading {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.CommittedReading(nil), c.events...)
}

type fixture struct {
	svc    *service.Service
	ledger *ledger.InMemoryLedger
	oracle *ledger.InMemoryOracle
	keys   *keystore.Memory
	pub    *capturePublisher
}

func newFixture(opts ...service.Option) *fixture {
	f := &fixture{
		ledger: ledger.NewInMemoryLedger(ledger.WithIntegrationInterval(2)),
		oracle: ledger.NewInMemoryOracle(),
		keys:   keystore.NewMemory(),
		pub:    &capturePublisher{},
	}
	all := append([]service.Option{
		service.WithLedger(f.ledger),
		service.WithOracle(f.oracle),
		service.WithKeyRegistry(f.keys),
		service.WithPublisher(f.pub),
		service.WithWorkerCount(2),
		service.WithBackendTimeout(time.Second),
		service.WithLogger(logger.Nop()),
	}, opts...)
	f.svc = service.New(all...)
	if err := f.svc.Start(context.Background()); err != nil {
		panic(err)
	}
	return f
}

func signedReading(t *testing.T, version model.ProtocolVersion, ts string, watts int64) model.DeviceReading {
	t.Helper()
	key := deviceKey(t)
	signed, err := signature.Sign(version, ts, watts, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	pem, err := signature.EncodePublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("encode key: %v", err)
	}
	r := model.DeviceReading{
		Protocol:        version,
		DeviceID:        "DC-TEST",
		DeviceAddress:   device,
		Timestamp:       ts,
		PowerUsageWatts: watts,
		Signature:       signed.Signature,
		PublicKey:       pem,
	}
	if version == model.ProtocolV1 {
		r.Hash = signed.Hash
	}
	return r
}

func ts(i int) string {
	return time.Date(2025, 1, 1, 0, 0, i, 0, time.UTC).Format(time.RFC3339)
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("When it has not been started", func() {
			_, err := svc.SubmitReading(context.Background(), model.DeviceReading{})

			Convey("Then operations should report it", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(service.Reason(err), ShouldEqual, service.ReasonNotStarted)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})

		Convey("When started and stopped", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["cachedDevices"], ShouldEqual, 0)
			So(stats["queueLength"], ShouldEqual, 0)

			svc.Stop()
			svc.Stop()
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})
}

func TestSubmitReading(t *testing.T) {
	ctx := context.Background()

	Convey("Given a ghost with 9 good and 1 bad credits on a clean grid", t, func() {
		f := newFixture()
		defer f.svc.Stop()
		token, err := f.ledger.Mint("0xowner", device, "hw-1")
		So(err, ShouldBeNil)
		So(f.ledger.Seed(token, 9, 1, 81, "VeryHealthy"), ShouldBeNil)
		So(f.ledger.Deposit(device, big.NewInt(100_000_000_000_000_000)), ShouldBeNil)

		Convey("When a 70 MW reading arrives", func() {
			resp, err := f.svc.SubmitReading(ctx, signedReading(t, model.ProtocolV2, ts(1), 70_000_000))

			Convey("Then health should be 90 and VeryHealthy", func() {
				So(err, ShouldBeNil)
				So(resp.Success, ShouldBeTrue)
				So(resp.GoodCredits, ShouldEqual, 10)
				So(resp.BadCredits, ShouldEqual, 1)
				So(resp.Alpha, ShouldEqual, 1.0)
				So(resp.PowerMW, ShouldEqual, 70.0)
				So(resp.Health, ShouldEqual, 90)
				So(resp.OldHealth, ShouldEqual, 81)
				So(resp.Appearance, ShouldEqual, "VeryHealthy")
				So(resp.GridStatus, ShouldEqual, "CLEAN")
				So(resp.CarbonIntensity, ShouldEqual, 250)
				So(resp.Deposit, ShouldEqual, "0.101")
				So(resp.TransactionHash, ShouldStartWith, "0x")
				So(resp.GameLogicHash, ShouldStartWith, "0x")
				So(resp.TransactionHash, ShouldNotEqual, resp.GameLogicHash)
				So(resp.Warnings, ShouldBeEmpty)
			})

			Convey("And the ledger should hold the committed state", func() {
				g, err := f.ledger.GetGhost(ctx, token)
				So(err, ShouldBeNil)
				So(g.Health, ShouldEqual, 90)
				So(g.GoodCredits, ShouldEqual, 10)
				So(g.CurrentAlpha, ShouldEqual, 1000)
				So(g.CurrentPowerMW, ShouldEqual, 70)
			})

			Convey("And a committed event should be published", func() {
				deadline := time.Now().Add(time.Second)
				for len(f.pub.snapshot()) == 0 && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
				events := f.pub.snapshot()
				So(events, ShouldHaveLength, 1)
				So(events[0].DeviceAddress, ShouldEqual, "0xabc0000000000000000000000000000000000001")
				So(events[0].Health, ShouldEqual, 90)
				So(events[0].EventID, ShouldNotBeEmpty)
			})
		})
	})

	Convey("Given a fresh ghost on a dirty grid", t, func() {
		f := newFixture()
		defer f.svc.Stop()
		_, err := f.ledger.Mint("0xowner", device, "hw-1")
		So(err, ShouldBeNil)
		f.oracle.SetCarbonIntensity(450)

		Convey("When a 2 MW reading arrives", func() {
			resp, err := f.svc.SubmitReading(ctx, signedReading(t, model.ProtocolV2, ts(1), 2_000_000))

			Convey("Then the ghost should be Dead", func() {
				So(err, ShouldBeNil)
				So(resp.GoodCredits, ShouldEqual, 0)
				So(resp.BadCredits, ShouldEqual, 1)
				So(resp.Alpha, ShouldEqual, 0.2)
				So(resp.PowerMW, ShouldEqual, 2.0)
				So(resp.OldHealth, ShouldEqual, 50)
				So(resp.Health, ShouldEqual, 0)
				So(resp.Appearance, ShouldEqual, "Dead")
				So(resp.GridStatus, ShouldEqual, "DIRTY")
				So(resp.Deposit, ShouldEqual, "0.0")
			})
		})
	})

	Convey("Given a device without a ghost", t, func() {
		f := newFixture()
		defer f.svc.Stop()
		r := signedReading(t, model.ProtocolV2, ts(1), 10_000_000)

		Convey("When it submits a reading", func() {
			_, err := f.svc.SubmitReading(ctx, r)

			Convey("Then it should be rejected without touching any state", func() {
				So(errors.Is(err, service.ErrUnregisteredDevice), ShouldBeTrue)
				So(service.Reason(err), ShouldEqual, service.ReasonNoGhost)
				So(f.svc.GetStats()["cachedDevices"], ShouldEqual, 0)
			})

			Convey("And the same reading should be accepted once a ghost exists", func() {
				_, err := f.ledger.Mint("0xowner", device, "hw-1")
				So(err, ShouldBeNil)
				resp, err := f.svc.SubmitReading(ctx, r)
				So(err, ShouldBeNil)
				So(resp.GoodCredits, ShouldEqual, 1)
			})
		})
	})
}

func TestSubmitReadingRejections(t *testing.T) {
	ctx := context.Background()

	Convey("Given a registered ghost", t, func() {
		f := newFixture()
		defer f.svc.Stop()
		token, err := f.ledger.Mint("0xowner", device, "hw-1")
		So(err, ShouldBeNil)

		Convey("When the power value is tampered with after signing", func() {
			r := signedReading(t, model.ProtocolV2, ts(1), 10_000_000)
			r.PowerUsageWatts = 1_000_000
			_, err := f.svc.SubmitReading(ctx, r)

			Convey("Then the signature should be invalid", func() {
				So(errors.Is(err, service.ErrInvalidSignature), ShouldBeTrue)
				So(service.Reason(err), ShouldEqual, service.ReasonInvalidSignature)
				g, _ := f.ledger.GetGhost(ctx, token)
				So(g.GoodCredits+g.BadCredits, ShouldEqual, 0)
			})
		})

		Convey("When the same reading is submitted twice", func() {
			r := signedReading(t, model.ProtocolV2, ts(1), 10_000_000)
			_, err1 := f.svc.SubmitReading(ctx, r)
			_, err2 := f.svc.SubmitReading(ctx, r)

			Convey("Then the replay should be refused", func() {
				So(err1, ShouldBeNil)
				So(errors.Is(err2, service.ErrDuplicateReading), ShouldBeTrue)
				g, _ := f.ledger.GetGhost(ctx, token)
				So(g.GoodCredits, ShouldEqual, 1)
			})
		})

		Convey("When the power usage is negative", func() {
			r := signedReading(t, model.ProtocolV2, ts(1), 0)
			r.PowerUsageWatts = -5
			_, err := f.svc.SubmitReading(ctx, r)
			So(errors.Is(err, service.ErrMalformedRequest), ShouldBeTrue)
		})

		Convey("When required fields are missing", func() {
			r := signedReading(t, model.ProtocolV2, ts(1), 1)
			r.Signature = ""
			_, err := f.svc.SubmitReading(ctx, r)
			So(errors.Is(err, service.ErrMalformedRequest), ShouldBeTrue)

			r = signedReading(t, model.ProtocolV2, ts(1), 1)
			r.DeviceAddress = "  "
			_, err = f.svc.SubmitReading(ctx, r)
			So(errors.Is(err, service.ErrMalformedRequest), ShouldBeTrue)
		})

		Convey("When the protocol version is unknown", func() {
			r := signedReading(t, model.ProtocolV2, ts(1), 1)
			r.Protocol = 7
			_, err := f.svc.SubmitReading(ctx, r)
			So(errors.Is(err, service.ErrMalformedRequest), ShouldBeTrue)
		})

		Convey("When the oracle is down", func() {
			f.oracle.InjectFailure(errors.New("rpc timeout"))
			_, err := f.svc.SubmitReading(ctx, signedReading(t, model.ProtocolV2, ts(1), 1))

			Convey("Then no credit should be applied", func() {
				So(errors.Is(err, service.ErrOracleUnavailable), ShouldBeTrue)
				ghost, err := f.svc.Ghost(ctx, device)
				So(err, ShouldBeNil)
				So(ghost.Cached, ShouldNotBeNil)
				So(ghost.Cached.GoodCredits+ghost.Cached.BadCredits, ShouldEqual, 0)
			})
		})

		Convey("When the ledger is unreachable on first contact", func() {
			f.ledger.InjectFailure(ledger.CallDeviceToToken, errors.New("connection refused"))
			_, err := f.svc.SubmitReading(ctx, signedReading(t, model.ProtocolV2, ts(1), 1))
			So(errors.Is(err, service.ErrBackendUnavailable), ShouldBeTrue)
			So(service.Reason(err), ShouldEqual, service.ReasonBackendUnavailable)
		})
	})
}

func TestSubmitReadingCommitFailures(t *testing.T) {
	ctx := context.Background()

	Convey("Given a ghost with some history", t, func() {
		f := newFixture()
		defer f.svc.Stop()
		token, err := f.ledger.Mint("0xowner", device, "hw-1")
		So(err, ShouldBeNil)
		So(f.ledger.Seed(token, 3, 1, 75, "Healthy"), ShouldBeNil)

		Convey("When UpdateGhost fails", func() {
			f.ledger.InjectFailure(ledger.CallUpdateGhost, errors.New("reverted"))
			r := signedReading(t, model.ProtocolV2, ts(1), 70_000_000)
			_, err := f.svc.SubmitReading(ctx, r)

			Convey("Then the cached increment should be rolled back", func() {
				So(errors.Is(err, service.ErrBackendCommitFailed), ShouldBeTrue)
				ghost, err := f.svc.Ghost(ctx, device)
				So(err, ShouldBeNil)
				So(ghost.GoodCredits, ShouldEqual, 3)
				So(ghost.Cached, ShouldNotBeNil)
				So(ghost.Cached.GoodCredits, ShouldEqual, 3)
				So(ghost.Cached.BadCredits, ShouldEqual, 1)
			})

			Convey("And the reading may be retried", func() {
				f.ledger.ClearFailures()
				resp, err := f.svc.SubmitReading(ctx, r)
				So(err, ShouldBeNil)
				So(resp.GoodCredits, ShouldEqual, 4)
			})
		})

		Convey("When ProcessReading fails after the ghost was updated", func() {
			f.ledger.InjectFailure(ledger.CallProcessReading, errors.New("out of gas"))
			r := signedReading(t, model.ProtocolV2, ts(1), 70_000_000)
			_, err := f.svc.SubmitReading(ctx, r)

			Convey("Then the cache entry should be dropped and rebuilt from the ledger", func() {
				So(errors.Is(err, service.ErrBackendCommitFailed), ShouldBeTrue)
				So(service.Reason(err), ShouldEqual, service.ReasonCommitFailed)
				ghost, err := f.svc.Ghost(ctx, device)
				So(err, ShouldBeNil)
				So(ghost.Cached, ShouldBeNil)
				So(ghost.GoodCredits, ShouldEqual, 4)
			})

			Convey("And the reading should not be counted twice", func() {
				f.ledger.ClearFailures()
				_, err := f.svc.SubmitReading(ctx, r)
				So(errors.Is(err, service.ErrDuplicateReading), ShouldBeTrue)
			})
		})

		Convey("When a post-commit query fails", func() {
			f.ledger.InjectFailure(ledger.CallGetDeposit, errors.New("rpc down"))
			resp, err := f.svc.SubmitReading(ctx, signedReading(t, model.ProtocolV2, ts(1), 70_000_000))

			Convey("Then the reading should still succeed with a warning", func() {
				So(err, ShouldBeNil)
				So(resp.Success, ShouldBeTrue)
				So(resp.Warnings, ShouldHaveLength, 1)
				So(resp.Warnings[0], ShouldContainSubstring, "deposit")
			})
		})
	})
}

func TestKeyPinningAndProtocols(t *testing.T) {
	ctx := context.Background()

	Convey("Given a device whose RSA key is registered", t, func() {
		f := newFixture()
		defer f.svc.Stop()
		_, err := f.ledger.Mint("0xowner", device, "hw-1")
		So(err, ShouldBeNil)
		pem, err := signature.EncodePublicKey(&deviceKey(t).PublicKey)
		So(err, ShouldBeNil)
		reg, err := f.svc.RegisterDevice(ctx, device, pem)
		So(err, ShouldBeNil)
		So(reg.Created, ShouldBeTrue)
		So(reg.KeyType, ShouldEqual, "rsa")

		Convey("When a reading omits its public key", func() {
			r := signedReading(t, model.ProtocolV2, ts(1), 1)
			r.PublicKey = ""
			_, err := f.svc.SubmitReading(ctx, r)
			So(err, ShouldBeNil)
		})

		Convey("When a reading is signed by a different key", func() {
			other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
			So(err, ShouldBeNil)
			signed, err := signature.Sign(model.ProtocolV2, ts(2), 1, other)
			So(err, ShouldBeNil)
			otherPEM, err := signature.EncodePublicKey(&other.PublicKey)
			So(err, ShouldBeNil)

			_, err = f.svc.SubmitReading(ctx, model.DeviceReading{
				Protocol: model.ProtocolV2, DeviceAddress: device, Timestamp: ts(2),
				PowerUsageWatts: 1, Signature: signed.Signature, PublicKey: otherPEM,
			})

			Convey("Then it should be refused as a key mismatch", func() {
				So(errors.Is(err, service.ErrKeyMismatch), ShouldBeTrue)
				So(errors.Is(err, service.ErrInvalidSignature), ShouldBeTrue)
				So(service.Reason(err), ShouldEqual, service.ReasonKeyMismatch)
			})
		})

		Convey("When a legacy v1 reading arrives without a version", func() {
			r := signedReading(t, model.ProtocolV1, ts(3), 25_000_000)
			r.Protocol = 0
			resp, err := f.svc.SubmitReading(ctx, r)

			Convey("Then it should be verified as v1", func() {
				So(err, ShouldBeNil)
				So(resp.Alpha, ShouldEqual, 0.8)
			})
		})

		Convey("When a v1 reading declares the wrong hash", func() {
			r := signedReading(t, model.ProtocolV1, ts(4), 25_000_000)
			r.Hash = strings.Repeat("0", 64)
			_, err := f.svc.SubmitReading(ctx, r)
			So(errors.Is(err, service.ErrInvalidSignature), ShouldBeTrue)
		})

		Convey("When the key is registered again", func() {
			again, err := f.svc.RegisterDevice(ctx, device, pem)
			So(err, ShouldBeNil)
			So(again.Created, ShouldBeFalse)
		})

		Convey("When an unparsable key is registered", func() {
			_, err := f.svc.RegisterDevice(ctx, device, "not a key")
			So(errors.Is(err, service.ErrMalformedRequest), ShouldBeTrue)
		})
	})
}

func TestRegisterDeviceAutoMint(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service that mints ghosts on registration", t, func() {
		f := newFixture(service.WithAutoMint(true, big.NewInt(100_000_000_000_000_000)))
		defer f.svc.Stop()
		pem, err := signature.EncodePublicKey(&deviceKey(t).PublicKey)
		So(err, ShouldBeNil)

		Convey("When a new device registers twice", func() {
			first, err1 := f.svc.RegisterDevice(ctx, device, pem)
			second, err2 := f.svc.RegisterDevice(ctx, device, pem)

			Convey("Then exactly one funded ghost should exist", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first.TokenID, ShouldEqual, 1)
				So(second.TokenID, ShouldEqual, 1)

				ghost, err := f.svc.Ghost(ctx, device)
				So(err, ShouldBeNil)
				So(ghost.TokenID, ShouldEqual, 1)
				So(ghost.Health, ShouldEqual, 50)
				So(ghost.Deposit, ShouldEqual, "0.1")
				So(ghost.Cached, ShouldBeNil)
			})
		})
	})
}

func TestQueries(t *testing.T) {
	ctx := context.Background()

	Convey("Given a ghost after two clean readings", t, func() {
		f := newFixture()
		defer f.svc.Stop()
		_, err := f.ledger.Mint("0xowner", device, "hw-1")
		So(err, ShouldBeNil)

		first, err := f.svc.SubmitReading(ctx, signedReading(t, model.ProtocolV2, ts(1), 15_000_000))
		So(err, ShouldBeNil)
		second, err := f.svc.SubmitReading(ctx, signedReading(t, model.ProtocolV2, ts(2), 15_000_000))
		So(err, ShouldBeNil)

		Convey("Then integration should trigger on the configured interval", func() {
			So(first.IntegrationTriggered, ShouldBeFalse)
			So(second.IntegrationTriggered, ShouldBeTrue)
		})

		Convey("When the ghost is queried", func() {
			ghost, err := f.svc.Ghost(ctx, device)

			Convey("Then ledger and cache views should agree", func() {
				So(err, ShouldBeNil)
				So(ghost.GoodCredits, ShouldEqual, 2)
				So(ghost.Alpha, ShouldEqual, 0.6)
				So(ghost.PowerMW, ShouldEqual, 15)
				So(ghost.Health, ShouldEqual, 60)
				So(ghost.Appearance, ShouldEqual, "Healthy")
				So(ghost.LifetimeRewards, ShouldEqual, "0.002")
				So(ghost.NetChange, ShouldEqual, "0.002")
				So(ghost.LastUpdate, ShouldBeGreaterThan, 0)
				So(ghost.Cached, ShouldNotBeNil)
				So(ghost.Cached.GoodCredits, ShouldEqual, 2)
				So(ghost.Cached.Health, ShouldEqual, 60)
			})
		})

		Convey("When an unknown device is queried", func() {
			_, err := f.svc.Ghost(ctx, "0xnobody")
			So(errors.Is(err, service.ErrUnregisteredDevice), ShouldBeTrue)
		})

		Convey("When the grid status is queried", func() {
			st, err := f.svc.GridStatus(ctx)
			So(err, ShouldBeNil)
			So(st.Status, ShouldEqual, "CLEAN")
			So(st.CarbonIntensity, ShouldEqual, 250)
		})
	})
}

func TestConcurrentReadings(t *testing.T) {
	ctx := context.Background()

	Convey("Given one ghost receiving many readings at once", t, func() {
		f := newFixture()
		defer f.svc.Stop()
		token, err := f.ledger.Mint("0xowner", device, "hw-1")
		So(err, ShouldBeNil)

		const n = 40
		readings := make([]model.DeviceReading, n)
		for i := range readings {
			readings[i] = signedReading(t, model.ProtocolV2, ts(i), int64(i)*1_000_000)
		}

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := range readings {
			wg.Add(1)
			go func(r model.DeviceReading) {
				defer wg.Done()
				if _, err := f.svc.SubmitReading(ctx, r); err != nil {
					errs <- fmt.Errorf("%s: %w", r.Timestamp, err)
				}
			}(readings[i])
		}
		wg.Wait()
		close(errs)

		Convey("Then every reading should count exactly once", func() {
			for err := range errs {
				So(err, ShouldBeNil)
			}
			g, err := f.ledger.GetGhost(ctx, token)
			So(err, ShouldBeNil)
			So(g.GoodCredits, ShouldEqual, n)
			So(g.BadCredits, ShouldEqual, 0)
			So(f.svc.GetStats()["replayGuardSize"], ShouldEqual, int64(n))
		})
	})
}

// alternatingOracle answers CLEAN and DIRTY in turn.
type alternatingOracle struct {
	calls atomic.Int64
}

func (o *alternatingOracle) GridStatus(ctx context.Context) (model.GridStatus, error) {
	if o.calls.Add(1)%2 == 1 {
		return model.GridStatus{State: model.GridClean, CarbonIntensity: 250}, nil
	}
	return model.GridStatus{State: model.GridDirty, CarbonIntensity: 450}, nil
}

func TestConcurrentMixedGridReadings(t *testing.T) {
	ctx := context.Background()

	Convey("Given one ghost and a grid flipping between CLEAN and DIRTY", t, func() {
		oracle := &alternatingOracle{}
		f := newFixture(service.WithOracle(oracle))
		defer f.svc.Stop()
		token, err := f.ledger.Mint("0xowner", device, "hw-1")
		So(err, ShouldBeNil)

		const pairs = 20
		readings := make([]model.DeviceReading, 2*pairs)
		for i := range readings {
			readings[i] = signedReading(t, model.ProtocolV2, ts(i), 1_000_000)
		}

		var (
			wg    sync.WaitGroup
			clean atomic.Int64
			dirty atomic.Int64
		)
		errs := make(chan error, len(readings))
		for i := range readings {
			wg.Add(1)
			go func(r model.DeviceReading) {
				defer wg.Done()
				resp, err := f.svc.SubmitReading(ctx, r)
				if err != nil {
					errs <- fmt.Errorf("%s: %w", r.Timestamp, err)
					return
				}
				if resp.GridStatus == string(model.GridClean) {
					clean.Add(1)
				} else {
					dirty.Add(1)
				}
			}(readings[i])
		}
		wg.Wait()
		close(errs)

		Convey("Then each CLEAN reading adds one good and each DIRTY one bad", func() {
			for err := range errs {
				So(err, ShouldBeNil)
			}
			So(clean.Load(), ShouldEqual, pairs)
			So(dirty.Load(), ShouldEqual, pairs)

			g, err := f.ledger.GetGhost(ctx, token)
			So(err, ShouldBeNil)
			So(g.GoodCredits, ShouldEqual, pairs)
			So(g.BadCredits, ShouldEqual, pairs)
		})
	})
}
