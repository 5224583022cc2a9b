// cmd/novatel-logger/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"novatel-logger/internal/config"
	serialdiscovery "novatel-logger/internal/discovery/serial"
	"novatel-logger/internal/protocol"
	"novatel-logger/internal/service"
	"novatel-logger/internal/utils"
)

// Application represents the main application
type Application struct {
	config    *config.Config
	logger    *zap.Logger
	transport *protocol.SerialConnection
	session   *service.SessionService
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run parses args and drives one session, returning the process exit code
func run(args []string, stdout io.Writer) int {
	fs := pflag.NewFlagSet("novatel-logger", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	listPorts := fs.Bool("list-ports", false, "list serial ports and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *listPorts {
		if err := printPorts(stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list serial ports: %v\n", err)
			return 1
		}
		return 0
	}

	app, err := NewApplication(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		utils.LogError(app.logger, "Session failed", err, zap.String("device", app.config.Session.Device))
		app.shutdown()
		return 1
	}

	app.shutdown()
	return 0
}

// NewApplication creates a new application instance
func NewApplication(fs *pflag.FlagSet) (*Application, error) {
	cfg, err := config.Load(fs)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeTransport(); err != nil {
		return nil, fmt.Errorf("failed to initialize transport: %w", err)
	}

	if err := app.initializeSession(); err != nil {
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	return app, nil
}

// initializeTransport creates the serial transport; the port is opened by the session
func (app *Application) initializeTransport() error {
	transport, err := protocol.CreateSerialTransport(app.config, app.logger)
	if err != nil {
		return err
	}

	app.transport = transport
	return nil
}

// initializeSession validates the INS parameters and prepares the command sequence
func (app *Application) initializeSession() error {
	session, err := service.NewSessionService(app.config, app.transport, app.logger)
	if err != nil {
		return err
	}

	app.session = session

	app.logger.Info("Session initialized",
		zap.String("session_id", session.ID().String()),
		zap.String("device", app.config.Session.Device),
		zap.String("output", app.config.Session.Output),
		zap.Int("baud_rate", app.config.Session.BaudRate),
		zap.Bool("ins_configured", app.config.INS.Enabled()),
		zap.Int("commands", session.Sequence().Len()),
	)
	return nil
}

// Start runs the session until ctx is cancelled by an interrupt
func (app *Application) Start(ctx context.Context) error {
	return app.session.Run(ctx)
}

// shutdown flushes the logger
func (app *Application) shutdown() {
	app.logger.Info("Program terminated")

	if err := utils.CloseLogger(app.logger); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
		fmt.Fprintf(os.Stderr, "Logger close error: %v\n", err)
	}
}

// printPorts writes one line per detected serial port
func printPorts(w io.Writer) error {
	logger, err := utils.NewLogger(&config.LoggingConfig{Level: "warn", Format: "console", Output: "stderr"})
	if err != nil {
		return err
	}

	ports, err := serialdiscovery.NewScanner(logger).Scan(context.Background())
	if err != nil {
		return err
	}

	if len(ports) == 0 {
		fmt.Fprintln(w, "No serial ports found")
		return nil
	}
	for _, port := range ports {
		fmt.Fprintln(w, port.String())
	}
	return nil
}
