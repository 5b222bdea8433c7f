// Package main implements the ipcctl CLI tool.
//
// ipcctl creates, inspects, operates on and removes System V semaphore sets,
// shared memory segments and message queues. It is the command line face of
// the sysvipc package and talks to the kernel directly.
//
// Usage:
//
//	ipcctl ftok /var/run/app 1           # Print the key for a path
//	ipcctl sem create -n 2 -values 1,0   # Create a semaphore set
//	ipcctl sem op 32769 0:-1:u 1:1       # Apply operations in order
//	ipcctl msg recv -nowait 5 1          # Receive a message of type 1
//
// Global flags come before the command:
//
//	ipcctl -config ipcctl.toml -metrics-addr :9102 sem op 32769 0:-1
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/richinsley/sysvipc"
	"github.com/richinsley/sysvipc/internal/config"
	"github.com/richinsley/sysvipc/internal/logging"
)

const version = "0.1.0"

// app carries what every subcommand needs.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	backend sysvipc.Backend
	opts    []sysvipc.ExecutorOption
	stdout  io.Writer
}

type command func(a *app, args []string) error

var commands = map[string]command{
	"ftok": ftokCommand,
	"sem":  semCommand,
	"shm":  shmCommand,
	"msg":  msgCommand,
}

func main() {
	configPath := flag.String("config", "", "TOML configuration file")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	name := flag.Arg(0)
	switch name {
	case "version", "--version", "-v":
		fmt.Printf("ipcctl version %s\n", version)
		return
	case "help", "--help", "-h":
		printUsage()
		return
	}

	run, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	a, err := newApp(cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.logger.Sync() //nolint:errcheck

	if err := run(a, flag.Args()[1:]); err != nil {
		a.logger.Debug("command failed", zap.String("command", name), zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// newApp builds the logger and, when configured, starts the metrics listener.
func newApp(cfg *config.Config, stdout io.Writer) (*app, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		backend: sysvipc.DefaultBackend(),
		opts:    []sysvipc.ExecutorOption{sysvipc.WithLogger(logger)},
		stdout:  stdout,
	}

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		a.opts = append(a.opts, sysvipc.WithMetrics(sysvipc.NewMetrics(reg)))
		serveMetrics(logger, cfg.Metrics.Addr, reg)
	}
	return a, nil
}

func serveMetrics(logger *zap.Logger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener stopped", zap.Error(err))
		}
	}()
}

// exitCode maps an error kind to a process exit status. 2 means the operation
// would have blocked.
func exitCode(err error) int {
	switch {
	case errors.Is(err, errUsage):
		return 64
	case errors.Is(err, sysvipc.ErrResourceUnavailable):
		return 2
	case errors.Is(err, sysvipc.ErrNotFound):
		return 3
	default:
		return 1
	}
}

func printUsage() {
	fmt.Print(`ipcctl - System V IPC control tool

USAGE:
    ipcctl [-config FILE] [-metrics-addr ADDR] <command> [arguments]

COMMANDS:
    ftok PATH [ID]                      Print the IPC key for a path
    sem create [-key K] [-n N] [-values V,...]
                                        Create a semaphore set
    sem op [-nowait] ID OP...           Apply operations NUM:DELTA[:FLAGS]
    sem get ID [NUM]                    Print semaphore values
    sem set ID NUM VALUE                Set one semaphore
    sem rm ID                           Remove a semaphore set
    shm create [-key K] -size BYTES     Create a shared memory segment
    shm stat ID                         Print segment information
    shm rm ID                           Remove a segment
    msg create [-key K]                 Create a message queue
    msg send [-nowait] ID TYPE TEXT     Send a message
    msg recv [-nowait] ID [TYPE]        Receive a message
    msg rm ID                           Remove a message queue
    version                             Show version information
    help                                Show this help message

OPERATION FLAGS:
    n    do not wait (IPC_NOWAIT)
    u    undo on exit (SEM_UNDO)

KEYS:
    -key accepts a number (0x1234, 4660), "private", or "PATH:ID". Without
    -key the key is derived from ipc.key_path and ipc.project_id, or is
    private when no key path is configured.

CONFIGURATION:
    Settings are read from the -config TOML file, then from IPCCTL_*
    environment variables (IPCCTL_LOG_LEVEL, IPCCTL_IPC_PERM,
    IPCCTL_IPC_KEY_PATH, IPCCTL_METRICS_ADDR, ...).

EXIT STATUS:
    0 success, 1 failure, 2 would block (including an empty queue with
    msg recv -nowait), 3 not found, 64 usage error

`)
}
