package main

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

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/soypat/netstack"
	"github.com/soypat/netstack/internal/config"
	"github.com/soypat/netstack/internal/device"
	"github.com/soypat/netstack/internal/metrics"
	"github.com/soypat/netstack/internal/stack"
)

var (
	configPath    string
	interfaceFlag string
	backendFlag   string
	logLevelFlag  string
)

var rootCmd = &cobra.Command{
	Use:           "netstackd",
	Short:         "Run the user-space IPv4 network stack daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to netstackd configuration file (key=value or .yaml)")
	rootCmd.Flags().StringVar(&interfaceFlag, "interface", "", "override device.interface from the config file")
	rootCmd.Flags().StringVar(&backendFlag, "backend", "", "override device.backend (pcap or rawsocket)")
	rootCmd.Flags().StringVar(&logLevelFlag, "log-level", "", "override log.level (debug, info, warn, error)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil && configPath == "" {
		// No file was requested; Load's own validation failure (missing
		// interface/ip) is expected until flags supply them below.
		cfg = config.DefaultConfig()
		err = nil
	}
	if err != nil {
		return nil, err
	}
	if interfaceFlag != "" {
		cfg.Device.Interface = interfaceFlag
	}
	if backendFlag != "" {
		cfg.Device.Backend = backendFlag
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	return cfg, config.Validate(cfg)
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := config.ParseLogLevel(cfg.Level)
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: level}))
}

// openDevice opens the configured raw-frame backend, retrying with
// exponential backoff since the interface may not be up yet (e.g. when
// netstackd starts before a TAP device is provisioned by another unit).
func openDevice(ctx context.Context, cfg config.DeviceConfig, logger *slog.Logger) (device.Device, error) {
	var dev device.Device
	open := func() error {
		var err error
		switch cfg.Backend {
		case "rawsocket":
			dev, err = device.OpenRawSocket(cfg.Interface)
		default:
			var hw [6]byte
			if iface, ierr := net.InterfaceByName(cfg.Interface); ierr == nil {
				copy(hw[:], iface.HardwareAddr)
			}
			dev, err = device.OpenLive(cfg.Interface, int32(cfg.Snaplen), cfg.Promisc, 100*time.Millisecond, hw)
		}
		if err != nil {
			logger.Warn("opening device failed, retrying", "backend", cfg.Backend, "interface", cfg.Interface, "err", err)
		}
		return err
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(open, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("open device: %w", err)
	}
	return dev, nil
}

func runDaemon(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Log)
	logger.Info("netstackd starting", "interface", cfg.Device.Interface, "backend", cfg.Device.Backend)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dev, err := openDevice(ctx, cfg.Device, logger)
	if err != nil {
		return err
	}
	defer dev.Close()

	hwAddr := netstack.MacAddr(dev.HardwareAddr())
	if cfg.Stack.HardwareAddr != "" {
		hwAddr, err = netstack.ParseMAC(cfg.Stack.HardwareAddr)
		if err != nil {
			return fmt.Errorf("parse stack.hardware_addr: %w", err)
		}
	}
	ip, err := netstack.ParseIPv4(cfg.Stack.IP)
	if err != nil {
		return fmt.Errorf("parse stack.ip: %w", err)
	}
	var gateway netstack.Ipv4Addr
	if cfg.Stack.Gateway != "" {
		gateway, err = netstack.ParseIPv4(cfg.Stack.Gateway)
		if err != nil {
			return fmt.Errorf("parse stack.gateway: %w", err)
		}
	}

	reg := prometheus.NewRegistry()
	collectors := metrics.NewCollectors(reg)

	st := stack.New(stack.Config{
		HardwareAddr:   hwAddr,
		IP:             ip,
		Gateway:        gateway,
		ArpTTL:         cfg.Stack.ArpTTL,
		PendingTimeout: cfg.Stack.PendingTimeout,
		Logger:         logger,
		Clock:          clockwork.NewRealClock(),
	}, dev)
	st.Metrics = collectors

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			logger.Info("metrics server listening", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		err := st.Run(gCtx, stack.EventLoopConfig{
			PollTimeout:     cfg.Stack.PollTimeout,
			CleanupInterval: cfg.Stack.CleanupInterval,
		})
		if err != nil && gCtx.Err() != nil {
			return nil // context canceled, expected on shutdown.
		}
		return err
	})

	logger.Info("netstackd ready", "hardware_addr", hwAddr.String(), "ip", ip.String())
	if err := g.Wait(); err != nil {
		return fmt.Errorf("daemon stopped with error: %w", err)
	}
	logger.Info("netstackd stopped")
	return nil
}
