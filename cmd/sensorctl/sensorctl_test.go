package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	proto "github.com/marmos91/sensord/pkg/protocol/sensor"
	sensorAdapter "github.com/marmos91/sensord/pkg/adapter/sensor"
	"github.com/marmos91/sensord/pkg/auth"
	"github.com/marmos91/sensord/pkg/datastore"
	"github.com/marmos91/sensord/pkg/registry"
	"github.com/marmos91/sensord/pkg/sensor"
	"github.com/marmos91/sensord/pkg/sensor/simulated"
	"github.com/marmos91/sensord/pkg/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSetConfig(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		sel    proto.Selector
		period int32
	}{
		{"period", []string{"PRD", "10"}, proto.NewSelector(proto.ConfigPeriod, true, 0), 10},
		{"period with status", []string{"PRD", "ON", "3"}, proto.NewSelector(proto.ConfigPeriod, true, 0), 3},
		{"period zero", []string{"prd", "0"}, proto.NewSelector(proto.ConfigPeriod, true, 0), 0},
		{"oversampling short", []string{"TMP", "ON", "4X"}, proto.NewSelector(proto.ConfigTemperature, true, uint8(sensor.Oversampling4x)), 0},
		{"oversampling long", []string{"PRS", "ON", "OS_16X"}, proto.NewSelector(proto.ConfigPressure, true, uint8(sensor.Oversampling16x)), 0},
		{"filter", []string{"IIR", "ON", "COEFF_8"}, proto.NewSelector(proto.ConfigFilter, true, uint8(sensor.Filter8)), 0},
		{"off", []string{"HUM", "off"}, proto.NewSelector(proto.ConfigHumidity, false, 0), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, period, err := parseSetConfig(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.sel, sel)
			assert.Equal(t, tt.period, period)
		})
	}
}

func TestParseSetConfig_Errors(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"XYZ", "ON", "2X"},
		{"PRD"},
		{"PRD", "soon"},
		{"TMP"},
		{"TMP", "MAYBE"},
		{"TMP", "ON"},
		{"TMP", "ON", "3X"},
		{"IIR", "ON", "OS_2X"},
	} {
		_, _, err := parseSetConfig(args)
		assert.Error(t, err, "args %v", args)
	}
}

func TestPrintSamples(t *testing.T) {
	var out bytes.Buffer
	printSamples(&out, []sensor.Sample{
		{Temperature: 21.5, Humidity: sensor.DisabledValue, Pressure: 1013.25},
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"1", "21.50", "X", "1013.25"}, strings.Fields(lines[1]))

	out.Reset()
	printSamples(&out, nil)
	assert.Equal(t, "No measurement data.\n", out.String())
}

func TestPrintReport(t *testing.T) {
	var out bytes.Buffer
	printReport(&out, proto.ReportFromSettings(sensor.DefaultSettings()))

	text := out.String()
	assert.Contains(t, text, "15 [sec]")
	assert.Contains(t, text, "OS_2X")
}

func TestShowFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meas_data")
	store := datastore.New(path)
	require.NoError(t, store.Append(sensor.Sample{Temperature: 20, Humidity: 50, Pressure: sensor.DisabledValue}))
	require.NoError(t, store.Close())

	var out bytes.Buffer
	require.NoError(t, showFile(&out, path))
	assert.Contains(t, out.String(), "20.00")
	assert.Contains(t, out.String(), "X")

	err := showFile(&out, filepath.Join(t.TempDir(), "missing"))
	var lfe *localFileError
	assert.ErrorAs(t, err, &lfe)
}

func startAdapter(t *testing.T) (string, *registry.Registry) {
	t.Helper()

	users, err := auth.New(auth.DefaultUsers())
	require.NoError(t, err)

	state := settings.New(simulated.New(simulated.Config{Seed: 3}), sensor.DefaultSettings(), nil)
	require.NoError(t, state.Init(context.Background()))

	data := datastore.New(filepath.Join(t.TempDir(), "server_data"))
	t.Cleanup(func() { _ = data.Close() })

	reg, err := registry.NewRegistry(users, state, data)
	require.NoError(t, err)

	a := sensorAdapter.New(sensorAdapter.SensorConfig{
		ListenAddress:   "127.0.0.1",
		AuthFailLinger:  100 * time.Millisecond,
		ShutdownTimeout: 2 * time.Second,
	}, nil)
	a.SetRegistry(reg)
	require.NoError(t, a.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("adapter did not stop")
		}
	})

	return a.Addr().String(), reg
}

func runShell(t *testing.T, opts *globalOptions, script ...string) string {
	t.Helper()

	var out bytes.Buffer
	sh := newShell(strings.NewReader(strings.Join(script, "\n")+"\n"), &out, opts)
	require.NoError(t, sh.run(context.Background()))
	return out.String()
}

func TestShell_Session(t *testing.T) {
	addr, reg := startAdapter(t)
	require.NoError(t, reg.Data().Append(sensor.Sample{Temperature: 19.5, Humidity: sensor.DisabledValue, Pressure: 990}))

	local := filepath.Join(t.TempDir(), "meas_data")
	opts := &globalOptions{user: "user1", password: "pass1", timeout: 2 * time.Second}

	out := runShell(t, opts,
		"gconf",
		"conn "+addr,
		"conn "+addr,
		"sconf PRD 7",
		"sconf TMP ON OS_4X",
		"sconf HUM OFF",
		"gconf",
		"gdat "+local,
		"show "+local,
		"rmdat",
		"frobnicate",
		"dconn",
		"dconn",
		"exit",
	)

	assert.Contains(t, out, "[WARNING] There is no active connection with a server.")
	assert.Contains(t, out, "[INFO] Connected to server.")
	assert.Contains(t, out, "[WARNING] Connection to a server already exists.")
	assert.Contains(t, out, "7 [sec]")
	assert.Contains(t, out, "OS_4X")
	assert.Contains(t, out, "[INFO] Saved 12 bytes of measurement data")
	assert.Contains(t, out, "19.50")
	assert.Contains(t, out, "[WARNING] Invalid command.")
	assert.Contains(t, out, "[INFO] Disconnected from server.")
	assert.Contains(t, out, "[INFO] There is no server to disconnect from.")
	assert.Contains(t, out, "[INFO] Exited program.")
	assert.NotContains(t, out, "Server closed connection")

	snap := reg.Settings().Snapshot()
	assert.Equal(t, int32(7), snap.PeriodSeconds)
	assert.False(t, snap.IsEnabled(sensor.ChannelHumidity))

	size, err := reg.Data().Size()
	require.NoError(t, err)
	assert.Zero(t, size)

	info, err := os.Stat(local)
	require.NoError(t, err)
	assert.Equal(t, int64(datastore.RecordSize), info.Size())
}

func TestShell_GuestPromptedCredentials(t *testing.T) {
	addr, reg := startAdapter(t)

	opts := &globalOptions{addr: addr, timeout: 2 * time.Second}
	out := runShell(t, opts,
		"conn",
		"user2",
		"pass2",
		"sconf PRD 3",
		"gconf",
		"gdat "+filepath.Join(t.TempDir(), "meas_data"),
	)

	assert.Contains(t, out, "Username: ")
	assert.Contains(t, out, "Password: ")
	assert.Contains(t, out, "no permission for the issued request")
	assert.Contains(t, out, "15 [sec]")
	assert.Contains(t, out, "[WARNING] Measurement data not available on server.")
	assert.NotContains(t, out, "Server closed connection")
	assert.Contains(t, out, "[INFO] Exited program.")

	assert.Equal(t, int32(15), reg.Settings().Snapshot().PeriodSeconds)
}

func TestShell_BadCredentials(t *testing.T) {
	addr, _ := startAdapter(t)

	opts := &globalOptions{addr: addr, user: "user1", password: "nope", timeout: 2 * time.Second}
	out := runShell(t, opts, "conn", "gconf")

	assert.Contains(t, out, "invalid username or password")
	assert.Contains(t, out, "[WARNING] There is no active connection with a server.")
}
