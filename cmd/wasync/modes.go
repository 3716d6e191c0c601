package main

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasync"
	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/executor"
	"github.com/wippyai/wasync/file"
	"github.com/wippyai/wasync/stream"
	"github.com/wippyai/wasync/tcp"
)

type mode struct {
	name    string
	minArgs int
	maxArgs int // -1 for no limit
	run     func(ctx context.Context, rt *wasync.Runtime, args []string) (int, error)
}

func (m mode) check(args []string) error {
	if len(args) < m.minArgs || (m.maxArgs >= 0 && len(args) > m.maxArgs) {
		return fmt.Errorf("%s: wrong number of arguments", m.name)
	}
	return nil
}

var modes = map[string]mode{
	"echo":  {name: "echo", maxArgs: 0, run: task(echo)},
	"cat":   {name: "cat", minArgs: 1, maxArgs: -1, run: task(cat)},
	"ls":    {name: "ls", maxArgs: 1, run: task(ls)},
	"serve": {name: "serve", maxArgs: 1, run: task(serveMode)},
	"run":   {name: "run", minArgs: 1, maxArgs: -1, run: runGuest},

	"interfaces": {name: "interfaces", maxArgs: 1, run: task(interfaces)},
}

// task runs fn as the main task of rt.
func task(fn func(ctx context.Context, rt *wasync.Runtime, args []string) error) func(context.Context, *wasync.Runtime, []string) (int, error) {
	return func(ctx context.Context, rt *wasync.Runtime, args []string) (int, error) {
		err := rt.Run(ctx, func(ctx context.Context) error {
			return fn(ctx, rt, args)
		})
		if err != nil && !interrupted(err) {
			return 1, err
		}
		return 0, nil
	}
}

// interrupted reports whether err says nothing more than that the run was
// cancelled, which is how serve stops on Ctrl-C.
func interrupted(err error) bool {
	var multi *errors.MultiError
	if !errors.As(err, &multi) {
		return errors.Is(err, context.Canceled)
	}
	for _, e := range multi.Errors {
		if !errors.Is(e, context.Canceled) {
			return false
		}
	}
	return len(multi.Errors) > 0
}

// echo copies stdin to stdout line by line.
func echo(ctx context.Context, rt *wasync.Runtime, _ []string) error {
	h := rt.Host()
	out := stream.Stdout(h)
	for line, err := range stream.Stdin(h).Lines(ctx) {
		if err != nil {
			return err
		}
		if _, err := out.WriteString(ctx, line+"\n"); err != nil {
			return err
		}
		if err := out.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// cat writes each file to stdout in order.
func cat(ctx context.Context, rt *wasync.Runtime, paths []string) error {
	h := rt.Host()
	out := stream.Stdout(h)
	for _, path := range paths {
		f, err := file.Open(ctx, h, path)
		if err != nil {
			return err
		}
		_, err = stream.Copy(ctx, out, f)
		_ = f.Close()
		if err != nil {
			return err
		}
	}
	return out.Flush(ctx)
}

// ls prints the entries of a directory, directories with a trailing slash.
func ls(ctx context.Context, rt *wasync.Runtime, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	h := rt.Host()
	entries, err := file.ReadDir(ctx, h, path)
	if err != nil {
		return err
	}
	out := stream.Stdout(h)
	for _, e := range entries {
		name := e.Name
		if e.IsDir() {
			name += "/"
		}
		if _, err := out.WriteString(ctx, name+"\n"); err != nil {
			return err
		}
	}
	return out.Flush(ctx)
}

func serveMode(ctx context.Context, rt *wasync.Runtime, args []string) error {
	addr, err := netip.ParseAddrPort(listenAddr(args))
	if err != nil {
		return errors.New(errors.PhaseNetwork, errors.KindInvalidInput).
			Op("serve").Cause(err).Build()
	}
	return serve(ctx, rt, addr, func(ctx context.Context, l netip.AddrPort) error {
		out := stream.Stderr(rt.Host())
		if _, err := out.WriteString(ctx, "listening on "+l.String()+"\n"); err != nil {
			return err
		}
		return out.Flush(ctx)
	})
}

// serve runs a TCP echo server, one task per connection, until ctx ends.
func serve(ctx context.Context, rt *wasync.Runtime, addr netip.AddrPort, ready func(context.Context, netip.AddrPort) error) error {
	log := rt.Logger().Named("serve")

	l, err := tcp.NewStack(rt.Host()).Bind(ctx, addr)
	if err != nil {
		return err
	}
	defer l.Close()
	log.Info("listening", zap.Stringer("addr", l.Addr()))
	if ready != nil {
		if err := ready(ctx, l.Addr()); err != nil {
			return err
		}
	}

	for {
		conn, peer, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		log.Debug("accepted", zap.Stringer("peer", peer))

		err = executor.Spawn(ctx, "conn "+peer.String(), func(ctx context.Context) error {
			defer conn.Close()
			n, err := stream.Copy(ctx, conn, conn)
			if err != nil && ctx.Err() == nil {
				log.Warn("connection failed", zap.Stringer("peer", peer), zap.Error(err))
			}
			log.Debug("closed", zap.Stringer("peer", peer), zap.Int64("bytes", n))
			return nil
		})
		if err != nil {
			_ = conn.Abort()
			return err
		}
	}
}

// interfaces prints the host's WASI namespaces, with their functions when
// a namespace prefix is given.
func interfaces(ctx context.Context, rt *wasync.Runtime, args []string) error {
	reg, err := rt.Registry()
	if err != nil {
		return err
	}
	out := stream.Stdout(rt.Host())
	for _, ns := range reg.Namespaces() {
		if len(args) > 0 && !strings.HasPrefix(ns, args[0]) {
			continue
		}
		if _, err := out.WriteString(ctx, ns+"\n"); err != nil {
			return err
		}
		if len(args) == 0 {
			continue
		}
		for _, fn := range reg.Functions(ns) {
			if _, err := out.WriteString(ctx, "  "+fn+"\n"); err != nil {
				return err
			}
		}
	}
	return out.Flush(ctx)
}

// runGuest runs a WASI preview1 module and exits with its code.
func runGuest(ctx context.Context, rt *wasync.Runtime, args []string) (int, error) {
	wasm, err := os.ReadFile(args[0])
	if err != nil {
		return 1, fmt.Errorf("read file: %w", err)
	}
	code, err := rt.RunGuest(ctx, wasm)
	return int(code), err
}

func listenAddr(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	if addr := strings.TrimSpace(os.Getenv(envAddr)); addr != "" {
		return addr
	}
	return defaultAddr
}
