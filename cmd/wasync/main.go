package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wippyai/wasync"
	"github.com/wippyai/wasync/engine"
	"github.com/wippyai/wasync/logging"
	"github.com/wippyai/wasync/stream"
	"github.com/wippyai/wasync/tcp"
)

func main() {
	var (
		envVars     = flag.String("env", "", "Environment variables (KEY=VAL,KEY2=VAL2)")
		preopens    = flag.String("preopens", os.Getenv(envPreopens), "Preopened directories (/host:/guest,/host2:/guest2)")
		logLevel    = flag.String("log", "", "Log level: error, warn, info, debug, trace or off (default $"+envLog+")")
		logJSON     = flag.Bool("log-json", false, "Write JSON logs directly to stderr")
		interactive = flag.Bool("i", false, "Interactive monitor for serve")
		threads     = flag.Bool("threads", false, "Enable the threads proposal for run")
	)
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := options{
		env:         parseEnv(*envVars),
		preopens:    parsePreopens(*preopens),
		logLevel:    *logLevel,
		logJSON:     *logJSON,
		interactive: *interactive,
		threads:     *threads,
	}
	code, err := run(ctx, opts, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	stop()
	os.Exit(code)
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "Usage: wasync [flags] echo")
	fmt.Fprintln(out, "       wasync [flags] cat <path>...")
	fmt.Fprintln(out, "       wasync [flags] ls [path]")
	fmt.Fprintln(out, "       wasync [flags] serve [addr]      (default $"+envAddr+" or "+defaultAddr+")")
	fmt.Fprintln(out, "       wasync [flags] -i serve [addr]  (interactive monitor)")
	fmt.Fprintln(out, "       wasync [flags] run <file.wasm> [args...]")
	fmt.Fprintln(out, "       wasync [flags] interfaces [namespace-prefix]")
	fmt.Fprintln(out)
	flag.PrintDefaults()
}

type options struct {
	env         map[string]string
	preopens    map[string]string
	logLevel    string
	logJSON     bool
	interactive bool
	threads     bool
}

// run executes one mode and returns the process exit code.
func run(ctx context.Context, opts options, args []string) (int, error) {
	m, ok := modes[args[0]]
	if !ok {
		return 2, fmt.Errorf("unknown mode %q", args[0])
	}
	args = args[1:]
	if err := m.check(args); err != nil {
		return 2, err
	}
	if opts.interactive && m.name != "serve" {
		return 2, fmt.Errorf("-i is only supported by serve")
	}

	cfg := wasync.Config{
		Env:          opts.env,
		Preopens:     opts.preopens,
		LogLevel:     opts.logLevel,
		InheritStdio: !opts.interactive,
	}
	if m.name == "run" {
		cfg.Args = args
		cfg.GuestThreads = opts.threads
	}
	if opts.interactive && cfg.LogLevel == "" {
		// the monitor shows captured log lines, so keep them on by default
		if _, ok := logging.LevelFromEnv(); !ok {
			cfg.LogLevel = "info"
		}
	}
	if opts.logJSON {
		logger, err := jsonLogger(opts.logLevel)
		if err != nil {
			return 1, err
		}
		cfg.Logger = logger
	}

	rt := wasync.New(cfg)
	defer rt.Close()

	log := rt.Logger()
	stream.SetLogger(log.Named("stream"))
	tcp.SetLogger(log.Named("tcp"))
	engine.SetLogger(log.Named("engine"))

	if opts.interactive {
		return 0, runMonitor(ctx, rt, listenAddr(args))
	}
	return m.run(ctx, rt, args)
}
