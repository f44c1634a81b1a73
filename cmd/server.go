package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/niktheblak/esp32-sensor-api/internal/publish"
	"github.com/niktheblak/esp32-sensor-api/internal/publish/mqtt"
	"github.com/niktheblak/esp32-sensor-api/internal/reader"
	"github.com/niktheblak/esp32-sensor-api/internal/serialport"
	"github.com/niktheblak/esp32-sensor-api/internal/server"
	"github.com/niktheblak/esp32-sensor-api/pkg/state"
)

const (
	readerStopTimeout = 2 * time.Second
	shutdownTimeout   = 5 * time.Second
)

type runConfig struct {
	Serial       serialport.Config
	PollInterval time.Duration
	// MQTT mirroring is disabled when MQTT.Server is empty
	MQTT   mqtt.Config
	Logger *slog.Logger
}

var serverCmd = &cobra.Command{
	Use:          "server",
	Short:        "Read the serial device and serve its latest reading over HTTP",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := runConfig{
			Serial: serialport.Config{
				Device:     viper.GetString("serial.device"),
				BaudRate:   viper.GetInt("serial.baud"),
				Settle:     viper.GetDuration("serial.settle"),
				ResetPulse: viper.GetDuration("serial.reset_pulse"),
			},
			PollInterval: viper.GetDuration("reader.poll_interval"),
			MQTT: mqtt.Config{
				Server:   viper.GetString("mqtt.server"),
				Username: viper.GetString("mqtt.username"),
				Password: viper.GetString("mqtt.password"),
				ClientID: viper.GetString("mqtt.client_id"),
				Topic:    viper.GetString("mqtt.topic"),
			},
			Logger: logger,
		}
		port := viper.GetInt("server.port")
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return run(ctx, cfg, ln)
	},
}

// run bridges the serial device to HTTP clients on ln until ctx is done. It
// owns ln and closes it on every return path. Shutdown happens in order: the
// reader stops, the device is reset and its port closed, then the HTTP server
// drains and finally publishers disconnect.
func run(ctx context.Context, cfg runConfig, ln net.Listener) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.LogAttrs(
		ctx,
		slog.LevelInfo,
		"Opening serial port",
		slog.String("device", cfg.Serial.Device),
		slog.Int("baud", cfg.Serial.BaudRate),
		slog.Duration("settle", cfg.Serial.Settle),
	)
	serialPort, err := serialport.Open(ctx, cfg.Serial)
	if err != nil {
		ln.Close()
		return err
	}
	var publishers []publish.Publisher
	if cfg.MQTT.Server != "" {
		logger.LogAttrs(ctx, slog.LevelInfo, "Connecting to MQTT broker", slog.String("server", cfg.MQTT.Server), slog.String("topic", cfg.MQTT.Topic))
		pub, err := mqtt.New(ctx, cfg.MQTT)
		if err != nil {
			if closeErr := serialPort.ResetAndClose(); closeErr != nil {
				logger.Error("Failed to reset serial device", "err", closeErr)
			}
			ln.Close()
			return err
		}
		publishers = append(publishers, pub)
	} else {
		logger.Info("Not publishing to MQTT")
	}

	holder := state.New()
	loop := &reader.Loop{
		Source:       serialPort,
		State:        holder,
		Publishers:   publishers,
		PollInterval: cfg.PollInterval,
		Logger:       logger,
	}
	readerCtx, stopReader := context.WithCancel(ctx)
	defer stopReader()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := loop.Run(readerCtx); err != nil {
			logger.Error("Serial reader failed", "err", err)
		}
	}()

	httpServer := &http.Server{
		Handler: server.New(holder, logger),
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.LogAttrs(ctx, slog.LevelInfo, "Starting server", slog.String("addr", ln.Addr().String()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start HTTP server", "err", err)
			serveErr <- err
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down service")
	stopReader()
	// a reader blocked inside a partial line only notices cancellation once
	// its read returns
	if err := serialPort.Interrupt(); err != nil {
		logger.Warn("Failed to interrupt serial read", "err", err)
	}
	readerStopped := false
	select {
	case <-loopDone:
		readerStopped = true
		logger.Info("Serial reader stopped")
	case <-time.After(readerStopTimeout):
		logger.Warn("Serial reader did not stop, closing port underneath it")
	}
	if err := serialPort.ResetAndClose(); err != nil {
		logger.Error("Failed to reset serial device", "err", err)
	}
	logger.LogAttrs(context.Background(), slog.LevelInfo, "Serial port closed", slog.Time("last_reading", holder.Updated()))
	if !readerStopped {
		<-loopDone
		logger.Info("Serial reader stopped")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down HTTP server", "err", err)
	}
	logger.Info("HTTP server stopped")
	for _, p := range publishers {
		if err := p.Close(); err != nil {
			logger.Error("Failed to close publisher", "err", err)
		}
	}
	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

func init() {
	serverCmd.Flags().String("serial.device", "", "serial device path")
	serverCmd.Flags().Int("serial.baud", 0, "serial baud rate")
	serverCmd.Flags().Duration("serial.settle", 0, "time to wait for the device to reboot after opening the port")
	serverCmd.Flags().Duration("serial.reset_pulse", 0, "how long DTR is held low when resetting the device on shutdown")
	serverCmd.Flags().Duration("reader.poll_interval", 0, "sleep between polls when no serial data is available")
	serverCmd.Flags().Int("server.port", 0, "Server port")
	serverCmd.Flags().String("mqtt.server", "", "MQTT broker to mirror readings to (tcp://host:port), disabled if empty")
	serverCmd.Flags().String("mqtt.topic", "", "MQTT topic")
	serverCmd.Flags().String("mqtt.client_id", "", "MQTT client ID")
	serverCmd.Flags().String("mqtt.username", "", "MQTT username")
	serverCmd.Flags().String("mqtt.password", "", "MQTT password")

	cobra.CheckErr(viper.BindPFlags(serverCmd.Flags()))

	viper.SetDefault("serial.device", "/dev/ttyUSB0")
	viper.SetDefault("serial.baud", serialport.DefaultBaudRate)
	viper.SetDefault("serial.settle", serialport.DefaultSettle)
	viper.SetDefault("serial.reset_pulse", serialport.DefaultResetPulse)
	viper.SetDefault("reader.poll_interval", reader.DefaultPollInterval)
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("mqtt.topic", mqtt.DefaultTopic)
	viper.SetDefault("mqtt.client_id", mqtt.DefaultClientID)

	rootCmd.AddCommand(serverCmd)
}
