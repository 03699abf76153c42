package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	proto "github.com/marmos91/sensord/pkg/protocol/sensor"
	"github.com/marmos91/sensord/pkg/client"
	"github.com/marmos91/sensord/pkg/datastore"
	"github.com/marmos91/sensord/pkg/sensor"
	"golang.org/x/term"
)

const defaultDataFile = "meas_data"

const confHint = "Hint: sconf <TMP|PRS|HUM|IIR|PRD> <ON|OFF> [value]"

// session wraps a connected client with the CLI's output conventions.
type session struct {
	client *client.Client
	out    io.Writer
}

func (s *session) getConfig() error {
	report, err := s.client.GetConfig()
	if err != nil {
		return requestError(err)
	}
	printReport(s.out, report)
	return nil
}

func (s *session) setConfig(sel proto.Selector, period int32) error {
	if err := s.client.SetConfig(sel, period); err != nil {
		return requestError(err)
	}
	fmt.Fprintln(s.out, "[INFO] Client request completed.")
	return nil
}

func (s *session) removeData() error {
	if err := s.client.RemoveData(); err != nil {
		return requestError(err)
	}
	fmt.Fprintln(s.out, "[INFO] Client request completed.")
	return nil
}

// getData downloads the data file to path. The file is written under a
// temporary name and renamed once complete.
func (s *session) getData(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return &localFileError{op: "open", err: err}
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := s.client.GetData(tmp)
	cerr := tmp.Close()
	if err != nil {
		return requestError(err)
	}
	if cerr != nil {
		return &localFileError{op: "write into", err: cerr}
	}

	if n == 0 {
		fmt.Fprintln(s.out, "[WARNING] Measurement data not available on server.")
		return nil
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return &localFileError{op: "write into", err: err}
	}

	fmt.Fprintf(s.out, "[INFO] Saved %d bytes of measurement data to %s.\n", n, path)
	return nil
}

// localFileError is a failure on the client's side of a download.
type localFileError struct {
	op  string
	err error
}

func (e *localFileError) Error() string {
	return fmt.Sprintf("failed to %s local measurement data file: %v", e.op, e.err)
}

func (e *localFileError) Unwrap() error { return e.err }

func requestError(err error) error {
	switch {
	case errors.Is(err, client.ErrNoPermission),
		errors.Is(err, client.ErrInvalidRequest),
		errors.Is(err, client.ErrRequestFailed):
		return fmt.Errorf("request failed: %w", err)
	default:
		return fmt.Errorf("request failed: %w (connection may be lost)", err)
	}
}

// dial connects with the flag credentials, prompting for missing ones.
func dial(ctx context.Context, opts *globalOptions, p *prompter) (*client.Client, error) {
	user := opts.user
	if user == "" {
		var err error
		if user, err = p.line("Username: "); err != nil {
			return nil, fmt.Errorf("failed to read username: %w", err)
		}
	}

	pass := opts.password
	if pass == "" {
		var err error
		if pass, err = p.password("Password: "); err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
	}

	c, err := client.Dial(ctx, opts.addr, user, pass, client.Options{
		DialTimeout:    opts.timeout,
		RequestTimeout: opts.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return c, nil
}

// parseSetConfig turns sconf arguments into a selector and, for PRD, a period.
func parseSetConfig(args []string) (proto.Selector, int32, error) {
	if len(args) == 0 {
		return 0, 0, fmt.Errorf("missing config type argument. %s", confHint)
	}

	t, err := proto.ParseConfigType(strings.ToUpper(args[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid config type argument %q. %s", args[0], confHint)
	}

	if t == proto.ConfigPeriod {
		rest := args[1:]
		if len(rest) == 2 && strings.EqualFold(rest[0], "ON") {
			rest = rest[1:]
		}
		if len(rest) != 1 {
			return 0, 0, fmt.Errorf("invalid config period argument. %s", confHint)
		}
		period, err := strconv.ParseInt(rest[0], 10, 32)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid config period argument %q. %s", rest[0], confHint)
		}
		return proto.NewSelector(t, true, 0), int32(period), nil
	}

	if len(args) < 2 {
		return 0, 0, fmt.Errorf("invalid config status argument. %s", confHint)
	}

	switch strings.ToUpper(args[1]) {
	case "OFF":
		return proto.NewSelector(t, false, 0), 0, nil
	case "ON":
		if len(args) < 3 {
			return 0, 0, fmt.Errorf("invalid config value argument. %s", confHint)
		}
		value, err := proto.ParseValue(t, valueToken(args[2]))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid config value argument %q. %s", args[2], confHint)
		}
		return proto.NewSelector(t, true, value), 0, nil
	default:
		return 0, 0, fmt.Errorf("invalid config status argument %q. %s", args[1], confHint)
	}
}

// valueToken accepts the long value names (OS_4X, COEFF_8) as well as the
// short ones.
func valueToken(s string) string {
	u := strings.ToUpper(s)
	for _, prefix := range []string{"OS_", "COEFF_"} {
		if strings.HasPrefix(u, prefix) {
			return strings.TrimPrefix(u, prefix)
		}
	}
	return u
}

func printReport(w io.Writer, r proto.ConfigReport) {
	fmt.Fprintln(w, "----- SENSOR CONFIGURATION -----")
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	fmt.Fprintf(tw, "Period:\t%d [sec]\n", r.Period)
	fmt.Fprintf(tw, "Temperature:\t%s\n", r.Temperature)
	fmt.Fprintf(tw, "Humidity:\t%s\n", r.Humidity)
	fmt.Fprintf(tw, "Pressure:\t%s\n", r.Pressure)
	fmt.Fprintf(tw, "IIR filter:\t%s\n", r.Filter)
	_ = tw.Flush()
	fmt.Fprintln(w, "--------------------------------")
}

func printSamples(w io.Writer, samples []sensor.Sample) {
	if len(samples) == 0 {
		fmt.Fprintln(w, "No measurement data.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tTEMPERATURE [C]\tHUMIDITY [%RH]\tPRESSURE [hPa]\t")
	for i, s := range samples {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", i+1,
			formatReading(s.Temperature), formatReading(s.Humidity), formatReading(s.Pressure))
	}
	_ = tw.Flush()
}

func formatReading(v float32) string {
	if v == sensor.DisabledValue {
		return "X"
	}
	return strconv.FormatFloat(float64(v), 'f', 2, 32)
}

func showFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &localFileError{op: "open", err: err}
	}
	defer func() { _ = f.Close() }()

	samples, err := datastore.DecodeSamples(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	printSamples(w, samples)
	return nil
}

// prompter reads interactive input. Lines and passwords share one buffered
// reader so that piped input is consumed in order.
type prompter struct {
	in  *bufio.Reader
	out io.Writer

	// readPassword, when set, reads a password without echo.
	readPassword func() (string, error)
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// line prints prompt and returns the next input line without its newline.
// io.EOF is returned only when no input is left.
func (p *prompter) line(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)

	s, err := p.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || s == "") {
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

func (p *prompter) password(prompt string) (string, error) {
	if p.readPassword == nil {
		return p.line(prompt)
	}

	fmt.Fprint(p.out, prompt)
	s, err := p.readPassword()
	fmt.Fprintln(p.out)
	return s, err
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func terminalPassword() (string, error) {
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
