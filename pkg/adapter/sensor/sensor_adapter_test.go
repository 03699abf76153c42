package sensor

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	proto "github.com/marmos91/sensord/pkg/protocol/sensor"
	"github.com/marmos91/sensord/pkg/auth"
	"github.com/marmos91/sensord/pkg/client"
	"github.com/marmos91/sensord/pkg/datastore"
	"github.com/marmos91/sensord/pkg/registry"
	"github.com/marmos91/sensord/pkg/sensor"
	"github.com/marmos91/sensord/pkg/sensor/simulated"
	"github.com/marmos91/sensord/pkg/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	adapter *SensorAdapter
	reg     *registry.Registry
	addr    string
	cancel  context.CancelFunc
	done    chan error
}

// newUnstartedServer returns an adapter with a registry but neither
// listening nor serving.
func newUnstartedServer(t *testing.T) *testServer {
	t.Helper()

	users, err := auth.New(auth.DefaultUsers())
	require.NoError(t, err)

	state := settings.New(simulated.New(simulated.Config{Seed: 5}), sensor.DefaultSettings(), nil)
	require.NoError(t, state.Init(context.Background()))

	reg, err := registry.NewRegistry(users, state, datastore.New(filepath.Join(t.TempDir(), "meas_data")))
	require.NoError(t, err)

	a := New(SensorConfig{ListenAddress: "127.0.0.1", ShutdownTimeout: time.Second}, nil)
	a.SetRegistry(reg)
	return &testServer{adapter: a, reg: reg}
}

func startServer(t *testing.T, config SensorConfig) *testServer {
	t.Helper()

	users, err := auth.New(auth.DefaultUsers())
	require.NoError(t, err)

	state := settings.New(simulated.New(simulated.Config{Seed: 11}), sensor.DefaultSettings(), nil)
	require.NoError(t, state.Init(context.Background()))

	data := datastore.New(filepath.Join(t.TempDir(), "meas_data"))
	t.Cleanup(func() { _ = data.Close() })

	reg, err := registry.NewRegistry(users, state, data)
	require.NoError(t, err)

	config.ListenAddress = "127.0.0.1"
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 2 * time.Second
	}
	if config.AuthFailLinger == 0 {
		config.AuthFailLinger = 200 * time.Millisecond
	}

	a := New(config, nil)
	a.SetRegistry(reg)
	require.NoError(t, a.Listen())
	require.NotZero(t, a.Port())

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{
		adapter: a,
		reg:     reg,
		addr:    a.Addr().String(),
		cancel:  cancel,
		done:    make(chan error, 1),
	}

	go func() { ts.done <- a.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-ts.done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	return ts
}

func (ts *testServer) dial(t *testing.T, user, pass string) *client.Client {
	t.Helper()
	c, err := client.Dial(context.Background(), ts.addr, user, pass, client.Options{
		DialTimeout:    2 * time.Second,
		RequestTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSetPeriodThenGetConfig(t *testing.T) {
	ts := startServer(t, SensorConfig{})
	c := ts.dial(t, "user1", "pass1")

	require.NoError(t, c.SetPeriod(5))

	report, err := c.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(5), report.Period)
	assert.Equal(t, "OS_2X", report.Temperature)
}

func TestGuestCannotSetConfig(t *testing.T) {
	ts := startServer(t, SensorConfig{})
	c := ts.dial(t, "user2", "pass2")

	err := c.SetPeriod(5)
	assert.ErrorIs(t, err, client.ErrNoPermission)

	// The connection stays usable and nothing changed.
	report, err := c.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(15), report.Period)

	assert.ErrorIs(t, c.RemoveData(), client.ErrNoPermission)
}

func TestUnknownRequestIsInvalid(t *testing.T) {
	ts := startServer(t, SensorConfig{})
	c := ts.dial(t, "user1", "pass1")

	reply, err := c.Request(proto.RequestCode(0xFF))
	require.NoError(t, err)
	assert.Equal(t, proto.ResponseInvalid, reply)

	_, err = c.GetConfig()
	assert.NoError(t, err)
}

func TestReservedSelectorIsInvalid(t *testing.T) {
	ts := startServer(t, SensorConfig{})
	c := ts.dial(t, "user3", "pass3")

	err := c.SetConfig(proto.Selector(0x08), 0)
	assert.ErrorIs(t, err, client.ErrInvalidRequest)

	err = c.SetConfig(proto.NewSelector(proto.ConfigFilter, true, 12), 0)
	assert.ErrorIs(t, err, client.ErrRequestFailed)

	err = c.SetPeriod(-1)
	assert.ErrorIs(t, err, client.ErrRequestFailed)
}

func TestGetDataEmptyAndAfterRemove(t *testing.T) {
	ts := startServer(t, SensorConfig{})
	c := ts.dial(t, "user1", "pass1")

	samples, err := c.GetSamples()
	require.NoError(t, err)
	assert.Empty(t, samples)

	want := []sensor.Sample{
		{Temperature: 20, Humidity: 45, Pressure: 1000},
		{Temperature: 21, Humidity: sensor.DisabledValue, Pressure: 1001},
	}
	for _, s := range want {
		require.NoError(t, ts.reg.Data().Append(s))
	}

	samples, err = c.GetSamples()
	require.NoError(t, err)
	assert.Equal(t, want, samples)

	require.NoError(t, c.RemoveData())

	samples, err = c.GetSamples()
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestAuthenticationFailure(t *testing.T) {
	ts := startServer(t, SensorConfig{})

	for _, creds := range [][2]string{{"user1", "wrong"}, {"nobody", "pass1"}, {"", ""}} {
		_, err := client.Dial(context.Background(), ts.addr, creds[0], creds[1], client.Options{DialTimeout: 2 * time.Second})
		assert.ErrorIs(t, err, client.ErrAuthFailed, "user %q", creds[0])
	}

	// Workers are released once the failed sessions end.
	c := ts.dial(t, "user2", "pass2")
	_, err := c.GetConfig()
	assert.NoError(t, err)
}

func TestDisconnectReleasesSession(t *testing.T) {
	ts := startServer(t, SensorConfig{})
	c := ts.dial(t, "user2", "pass2")

	require.Eventually(t, func() bool { return ts.reg.CountSessions() == 1 }, time.Second, 10*time.Millisecond)

	sessions := ts.reg.ListSessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "user2", sessions[0].Username)
	assert.Equal(t, auth.GroupGuest, sessions[0].Group)

	require.NoError(t, c.Disconnect())

	require.Eventually(t, func() bool {
		return ts.reg.CountSessions() == 0 && ts.adapter.GetActiveConnections() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestPoolBoundsConcurrentClients(t *testing.T) {
	ts := startServer(t, SensorConfig{PoolSize: 2})

	first := ts.dial(t, "user1", "pass1")
	_ = ts.dial(t, "user2", "pass2")

	// Both workers are busy: the third client is accepted by the kernel but
	// never answered.
	_, err := client.Dial(context.Background(), ts.addr, "user3", "pass3", client.Options{DialTimeout: 300 * time.Millisecond})
	require.Error(t, err)
	assert.LessOrEqual(t, ts.adapter.GetActiveConnections(), int32(2))

	require.NoError(t, first.Disconnect())

	c, err := client.Dial(context.Background(), ts.addr, "user3", "pass3", client.Options{DialTimeout: 3 * time.Second})
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	_, err = c.GetConfig()
	assert.NoError(t, err)
}

func TestIdleTimeout(t *testing.T) {
	ts := startServer(t, SensorConfig{IdleTimeout: 100 * time.Millisecond})
	c := ts.dial(t, "user1", "pass1")

	require.Eventually(t, func() bool { return ts.adapter.GetActiveConnections() == 0 }, 2*time.Second, 20*time.Millisecond)

	_, err := c.GetConfig()
	assert.Error(t, err)
}

func TestRateLimitedSessionStillServes(t *testing.T) {
	ts := startServer(t, SensorConfig{RateLimit: RateLimitConfig{RequestsPerSecond: 20, Burst: 1}})
	c := ts.dial(t, "user1", "pass1")

	start := time.Now()
	for i := 0; i < 4; i++ {
		_, err := c.GetConfig()
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestConcurrentClients(t *testing.T) {
	ts := startServer(t, SensorConfig{PoolSize: 4})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			c, err := client.Dial(context.Background(), ts.addr, "user1", "pass1", client.Options{DialTimeout: 2 * time.Second})
			if !assert.NoError(t, err) {
				return
			}
			defer func() { _ = c.Disconnect() }()

			for j := 0; j < 20; j++ {
				assert.NoError(t, c.SetPeriod(int32(i+1)))
				_, err := c.GetConfig()
				assert.NoError(t, err)
				_, err = c.GetSamples()
				assert.NoError(t, err)
				assert.NoError(t, ts.reg.Data().Append(sensor.Sample{Temperature: float32(j)}))
			}
		}(i)
	}
	wg.Wait()

	size, err := ts.reg.Data().Size()
	require.NoError(t, err)
	assert.Equal(t, int64(80*datastore.RecordSize), size)
}

func TestGracefulShutdownWithIdleClient(t *testing.T) {
	ts := startServer(t, SensorConfig{ShutdownTimeout: 3 * time.Second})
	_ = ts.dial(t, "user2", "pass2")

	require.Eventually(t, func() bool { return ts.adapter.GetActiveConnections() == 1 }, time.Second, 10*time.Millisecond)

	start := time.Now()
	ts.cancel()

	select {
	case err := <-ts.done:
		assert.NoError(t, err)
		ts.done <- err // let cleanup observe it too
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestStopBeforeServe(t *testing.T) {
	a := New(SensorConfig{ListenAddress: "127.0.0.1"}, nil)
	assert.NoError(t, a.Stop(context.Background()))
	assert.Equal(t, "SENSOR", a.Protocol())
}

func TestServeAfterStopReturns(t *testing.T) {
	tests := []struct {
		name   string
		listen bool
	}{
		{"not listening", false},
		{"already listening", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newUnstartedServer(t)
			if tt.listen {
				require.NoError(t, ts.adapter.Listen())
			}
			require.NoError(t, ts.adapter.Stop(context.Background()))

			done := make(chan error, 1)
			go func() { done <- ts.adapter.Serve(context.Background()) }()

			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(ts.adapter.config.ShutdownTimeout):
				t.Fatal("Serve did not return after Stop")
			}

			if !tt.listen {
				assert.ErrorIs(t, ts.adapter.Listen(), ErrStopped)
				assert.Nil(t, ts.adapter.Addr())
			}
		})
	}
}

func TestStopRacingServe(t *testing.T) {
	ts := newUnstartedServer(t)

	done := make(chan error, 1)
	go func() { done <- ts.adapter.Serve(context.Background()) }()
	go func() { _ = ts.adapter.Addr() }()
	require.NoError(t, ts.adapter.Stop(context.Background()))

	select {
	case <-done:
	case <-time.After(ts.adapter.config.ShutdownTimeout):
		t.Fatal("Serve did not return after Stop")
	}
}

func TestServeWithoutRegistry(t *testing.T) {
	a := New(SensorConfig{ListenAddress: "127.0.0.1"}, nil)
	assert.Error(t, a.Serve(context.Background()))
}

func TestConfigValidation(t *testing.T) {
	assert.Panics(t, func() { New(SensorConfig{Port: 70000}, nil) })
	assert.Panics(t, func() { New(SensorConfig{PoolSize: -1}, nil) })

	cfg := SensorConfig{}
	cfg.applyDefaults()
	assert.Equal(t, 4, cfg.PoolSize)
	assert.Equal(t, 30*time.Second, cfg.AuthTimeout)
	assert.Equal(t, 5*time.Second, cfg.AuthFailLinger)
	assert.NoError(t, cfg.validate())
}
