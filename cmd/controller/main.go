package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/adapters/console"
	grpcAdapter "github.com/quentinrf/plant-monitor/services/vehicle-service/internal/adapters/grpc"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/adapters/memory"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/adapters/mock"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/adapters/periph"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/config"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/motor"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/ports"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/sensors"
	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/supervisor"
)

func main() {
	// Initialize logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(exitCode(err))
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Error().Str("log_level", cfg.LogLevel).Msg("invalid log level")
		os.Exit(exitCode(domain.ErrInvalidConfig))
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, os.Stdin, os.Stdout, newPinDriver)
	stop()

	if err != nil {
		log.Error().Err(err).Msg("controller stopped with error")
		os.Exit(exitCode(err))
	}
	log.Info().Msg("controller stopped")
}

// exitCode maps the result of run to the process exit status
func exitCode(err error) int {
	if err != nil {
		return 1
	}
	return 0
}

// pinDriverFunc opens the GPIO backend once the operator has answered
type pinDriverFunc func(ctx context.Context, cfg *config.Config) (ports.PinDriver, error)

// newPinDriver opens real GPIO or a simulated bank, depending on config
func newPinDriver(ctx context.Context, cfg *config.Config) (ports.PinDriver, error) {
	if cfg.PinDriver == config.DriverPeriph {
		p, err := periph.NewPins()
		if err != nil {
			return nil, err
		}
		log.Info().Msg("initialized periph.io GPIO")
		return p, nil
	}

	bank := mock.NewPinBank(nil)
	simulateVehicle(ctx, bank, cfg.Pins)
	log.Info().Int("pid", os.Getpid()).Msg("initialized simulated GPIO; send SIGUSR1 to press the power button")
	return bank, nil
}

// run asks for the motor speed, opens the pins and drives the control loop
// until ctx is done. Pins are released on every path after they are opened.
func run(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout io.Writer, openPins pinDriverFunc) (err error) {
	log.Info().
		Str("pin_driver", cfg.PinDriver).
		Bool("motor", cfg.Motor.Enabled).
		Msg("starting vehicle controller")

	// The speed is settled before any hardware is touched
	speed := 0
	if cfg.Motor.Enabled {
		if cfg.Motor.Speed != nil {
			speed = *cfg.Motor.Speed
		} else if speed, err = motor.PromptSpeed(ctx, stdin, stdout); err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("interrupted before start")
				return nil
			}
			return err
		}
		log.Info().Int("speed", speed).Msg("motor speed set")
	}

	pins, err := openPins(ctx, cfg)
	if err != nil {
		return err
	}

	// Pins are released however the controller stops
	defer func() {
		if cleanupErr := pins.Cleanup(); cleanupErr != nil {
			log.Error().Err(cleanupErr).Msg("failed to release pins")
			err = errors.Join(err, cleanupErr)
		}
	}()

	power := domain.NewPowerState()
	store := memory.NewSnapshotStore()
	reporter := ports.MultiReporter{console.NewReporter(stdout), store}

	// Every session gets fresh workers. The motor goes last so it is never
	// engaged when a sensor fails to start.
	factory := func() ([]ports.Worker, error) {
		light := sensors.NewLightSensor(pins, cfg.Pins.LightSensor, nil, cfg.Light)
		ranger := sensors.NewRanger(pins, cfg.Pins.Trigger, cfg.Pins.Echo, nil, cfg.Ranger)

		workers := []ports.Worker{
			sensors.NewLuminosityWorker(light, pins, power, reporter, cfg.PollInterval),
			sensors.NewDistanceWorker(ranger, pins, power, reporter, cfg.PollInterval, cfg.Breaker),
		}
		if cfg.Motor.Enabled {
			m, err := motor.NewController(pins, cfg.Pins, power, speed, cfg.Motor.Config)
			if err != nil {
				return nil, err
			}
			workers = append(workers, m)
		}
		return workers, nil
	}

	sup := supervisor.New(power, factory)
	button := supervisor.NewButtonWatcher(pins, cfg.Pins.Button, power, cfg.Button.Poll, cfg.Button.Debounce)

	if cfg.Telemetry.Addr != "" {
		handler := grpcAdapter.NewTelemetryHandler(store, power, sup)
		grpcServer, err := startTelemetry(cfg.Telemetry, handler)
		if err != nil {
			return err
		}
		defer grpcServer.GracefulStop()
	}

	return supervisor.NewLoop(sup, button, cfg.LoopInterval, cfg.ShutdownTimeout).Run(ctx)
}

// startTelemetry serves the read-only telemetry endpoint in the background
func startTelemetry(cfg config.TelemetryConfig, handler *grpcAdapter.TelemetryHandler) (*grpc.Server, error) {
	// Configure TLS if certificates are provided
	var serverOpts []grpc.ServerOption
	if cfg.TLSCert != "" {
		creds, err := grpcAdapter.ServerCredentials(cfg.TLSCert, cfg.TLSKey, cfg.TLSCA)
		if err != nil {
			return nil, fmt.Errorf("load TLS config: %w", err)
		}
		serverOpts = append(serverOpts, creds)
		log.Info().Bool("mtls", cfg.TLSCA != "").Msg("telemetry TLS enabled")
	} else {
		log.Warn().Msg("TLS_CERT not set, serving telemetry without TLS")
	}

	grpcServer := grpc.NewServer(serverOpts...)
	grpcAdapter.RegisterTelemetryServer(grpcServer, handler)

	// Enable gRPC reflection for grpcurl testing
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	log.Info().Str("addr", listener.Addr().String()).Msg("telemetry server listening")

	go func() {
		if err := grpcServer.Serve(listener); err != nil {
			log.Error().Err(err).Msg("telemetry server failed")
		}
	}()
	return grpcServer, nil
}

// simulateVehicle wires fake sensor signals into the bank and presses the
// power button on every SIGUSR1 until ctx is done.
func simulateVehicle(ctx context.Context, bank *mock.PinBank, pins domain.PinMap) {
	bank.SimulateCharge(pins.LightSensor, 50000, 20000)
	bank.SimulateEcho(pins.Trigger, pins.Echo, 200*time.Microsecond, 42, 5)

	presses := make(chan os.Signal, 1)
	signal.Notify(presses, syscall.SIGUSR1)
	go func() {
		defer signal.Stop(presses)
		for {
			select {
			case <-ctx.Done():
				return
			case <-presses:
				log.Debug().Msg("simulated button press")
				bank.PressButton(pins.Button, 20*time.Millisecond)
			}
		}
	}()
}
