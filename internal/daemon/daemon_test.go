package daemon

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/messenger"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/profile"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/matheus3301/chatsync/internal/transport/transporttest"
	"github.com/matheus3301/chatsync/internal/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func signedToken(t *testing.T, subject string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: subject}).SignedString([]byte("k"))
	require.NoError(t, err)
	return tok
}

type fixture struct {
	fake  *transporttest.Fake
	store *messenger.Store
	reg   *prometheus.Registry
	cfg   *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := transporttest.NewFake(42)
	fake.Reply(transport.MethodGetMessengerInfo, wire.MessengerInfo{
		Conversations: []wire.RosterEntry{{ID: 5, Name: "ana", Type: "conversation"}},
		Groups:        []wire.RosterEntry{{ID: 9, Name: "team", Type: "chat-group"}},
	})
	dialer := transport.DialerFunc(func(context.Context, string, int64, string) (transport.Transport, error) {
		return fake, nil
	})

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Socket.URL = "ws://chat.test/socket"
	cfg.Metrics.Addr = "127.0.0.1:0"

	b := bus.New()
	t.Cleanup(b.Close)
	store := messenger.New(dialer, auth.NewHolder(signedToken(t, "42")), messenger.Options{Bus: b, Metrics: m, Logger: zap.NewNop()})
	return &fixture{fake: fake, store: store, reg: reg, cfg: cfg}
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServerReportsHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	srv, err := NewServer(f.cfg, f.reg, f.store, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, srv)

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
		assert.NoError(t, <-done)
	})
	base := "http://" + srv.Addr()

	code, body := get(t, base+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "DISCONNECTED")

	require.NoError(t, connect(context.Background(), f.store, f.cfg, auth.NewHolder(signedToken(t, "42"))))

	code, body = get(t, base+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "CONNECTED")

	_, body = get(t, base+"/metrics")
	assert.Contains(t, body, `chatsync_requests_total{method="getMessengerInfo"} 1`)
}

func TestNewServerWithoutAddrIsDisabled(t *testing.T) {
	f := newFixture(t)
	f.cfg.Metrics.Addr = ""
	srv, err := NewServer(f.cfg, f.reg, f.store, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, srv)
}

func TestConnectLoadsRoster(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, connect(context.Background(), f.store, f.cfg, auth.NewHolder(signedToken(t, "42"))))

	assert.Len(t, f.store.Conversations(), 1)
	assert.Len(t, f.store.Groups(), 1)
	assert.Equal(t, 1, f.fake.CallCount(transport.MethodGetMessengerInfo))
}

func TestUserID(t *testing.T) {
	cfg := config.Default()

	id, err := userID(cfg, auth.NewHolder(signedToken(t, "77")))
	require.NoError(t, err)
	assert.EqualValues(t, 77, id)

	cfg.Socket.UserID = 5
	id, err = userID(cfg, auth.NewHolder("not a token"))
	require.NoError(t, err)
	assert.EqualValues(t, 5, id, "configured id wins over the token")

	cfg.Socket.UserID = 0
	_, err = userID(cfg, auth.NewHolder(signedToken(t, "ana")))
	assert.ErrorIs(t, err, auth.ErrNoSubject)
}

func TestProvideDialerRejectsUnknownTransport(t *testing.T) {
	cfg := config.Default()
	cfg.Socket.Transport = "carrier-pigeon"
	_, err := provideDialer(cfg, zap.NewNop())
	assert.Error(t, err)

	for _, tr := range []string{"ws", "grpc"} {
		cfg.Socket.Transport = tr
		d, err := provideDialer(cfg, zap.NewNop())
		require.NoError(t, err, tr)
		assert.NotNil(t, d, tr)
	}
}

func TestModuleLifecycle(t *testing.T) {
	t.Setenv(profile.HomeEnv, t.TempDir())

	cfg := config.Default()
	// Nothing listens here, so the background connect fails and is logged.
	cfg.Socket.URL = "ws://127.0.0.1:1/socket"
	cfg.Socket.UserID = 7
	cfg.Metrics.Addr = "127.0.0.1:0"

	app := fxtest.New(t, Module(Params{ProfileName: "test", Config: cfg}))
	app.RequireStart()

	info, err := lock.Inspect(profile.Dir("test"))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), info.PID)
	assert.Equal(t, "test", info.Profile)

	app.RequireStop()

	_, err = lock.Inspect(profile.Dir("test"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "lock released on stop, got %v", err)
}

func TestModuleRefusesSecondInstance(t *testing.T) {
	t.Setenv(profile.HomeEnv, t.TempDir())
	require.NoError(t, profile.EnsureDir("busy"))
	held, err := lock.Acquire(profile.Dir("busy"), "busy")
	require.NoError(t, err)
	defer func() { _ = held.Release() }()

	cfg := config.Default()
	cfg.Socket.UserID = 7
	app := fx.New(fx.NopLogger, Module(Params{ProfileName: "busy", Config: cfg}))
	err = app.Err()
	require.Error(t, err)
	assert.True(t, lock.IsHeld(err), "want a held-lock error, got %v", err)
}
