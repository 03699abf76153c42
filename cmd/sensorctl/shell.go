package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/marmos91/sensord/pkg/client"
)

const shellHelp = `Commands:
  conn [host:port]                          connect and authenticate
  dconn                                     disconnect
  gconf                                     print the sensor configuration
  sconf <TMP|PRS|HUM|IIR|PRD> <ON|OFF> [v]  change one sensor setting
  rmdat                                     remove measurement data on the server
  gdat [file]                               download measurement data
  show [file]                               print a downloaded data file
  help                                      print this help
  exit                                      disconnect and quit`

// shell is the interactive client: one connection at most, commands read
// line by line.
type shell struct {
	*prompter

	opts *globalOptions
	sess *session
}

func newShell(in io.Reader, out io.Writer, opts *globalOptions) *shell {
	return &shell{prompter: newPrompter(in, out), opts: opts}
}

// run reads commands until exit, end of input or ctx is done.
func (sh *shell) run(ctx context.Context) error {
	defer sh.disconnect(true)

	for {
		line, err := sh.next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				fmt.Fprintln(sh.out)
				fmt.Fprintln(sh.out, "[INFO] Exited program.")
				return nil
			}
			return err
		}

		if !sh.exec(ctx, strings.Fields(line)) {
			return nil
		}
	}
}

// next reads one line; a blocked read is abandoned when ctx is done.
func (sh *shell) next(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}

	ch := make(chan result, 1)
	go func() {
		line, err := sh.line("sensorctl> ")
		ch <- result{line, err}
	}()

	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// exec runs one command and reports whether the shell should keep going.
func (sh *shell) exec(ctx context.Context, args []string) bool {
	if len(args) == 0 {
		return true
	}

	switch args[0] {
	case "conn":
		sh.connect(ctx, args[1:])
	case "dconn":
		sh.disconnect(false)
	case "gconf":
		sh.request(func(s *session) error { return s.getConfig() })
	case "sconf":
		sel, period, err := parseSetConfig(args[1:])
		if err != nil {
			sh.warn(err)
			return true
		}
		sh.request(func(s *session) error { return s.setConfig(sel, period) })
	case "rmdat":
		sh.request(func(s *session) error { return s.removeData() })
	case "gdat":
		path := optionalArg(args, defaultDataFile)
		sh.request(func(s *session) error { return s.getData(path) })
	case "show":
		if err := showFile(sh.out, optionalArg(args, defaultDataFile)); err != nil {
			sh.warn(err)
		}
	case "help":
		fmt.Fprintln(sh.out, shellHelp)
	case "exit", "quit":
		fmt.Fprintln(sh.out, "[INFO] Exited program.")
		return false
	default:
		fmt.Fprintln(sh.out, "[WARNING] Invalid command.")
	}
	return true
}

func (sh *shell) connect(ctx context.Context, args []string) {
	if sh.sess != nil {
		fmt.Fprintln(sh.out, "[WARNING] Connection to a server already exists.")
		return
	}

	opts := *sh.opts
	if len(args) > 0 {
		opts.addr = args[0]
	}

	c, err := dial(ctx, &opts, sh.prompter)
	if err != nil {
		sh.warn(err)
		return
	}

	sh.sess = &session{client: c, out: sh.out}
	fmt.Fprintln(sh.out, "[INFO] Connected to server.")
}

func (sh *shell) disconnect(quiet bool) {
	if sh.sess == nil {
		if !quiet {
			fmt.Fprintln(sh.out, "[INFO] There is no server to disconnect from.")
		}
		return
	}

	err := sh.sess.client.Disconnect()
	sh.sess = nil

	if quiet {
		return
	}
	if err != nil {
		sh.warn(fmt.Errorf("failed to send disconnect request to server: %w", err))
	}
	fmt.Fprintln(sh.out, "[INFO] Disconnected from server.")
}

// request runs fn on the active session. A transport failure drops the
// session; a rejected request keeps it.
func (sh *shell) request(fn func(s *session) error) {
	if sh.sess == nil {
		fmt.Fprintln(sh.out, "[WARNING] There is no active connection with a server.")
		return
	}

	err := fn(sh.sess)
	if err == nil {
		return
	}
	sh.warn(err)

	if !keepsSession(err) {
		_ = sh.sess.client.Close()
		sh.sess = nil
		fmt.Fprintln(sh.out, "[WARNING] Server closed connection.")
	}
}

func (sh *shell) warn(err error) {
	fmt.Fprintf(sh.out, "[WARNING] %v\n", err)
}

// keepsSession reports whether the connection survives err: the server
// rejected the request, or the failure was local.
func keepsSession(err error) bool {
	var lfe *localFileError
	return errors.As(err, &lfe) ||
		errors.Is(err, client.ErrNoPermission) ||
		errors.Is(err, client.ErrInvalidRequest) ||
		errors.Is(err, client.ErrRequestFailed)
}

func optionalArg(args []string, def string) string {
	if len(args) > 1 {
		return args[1]
	}
	return def
}
