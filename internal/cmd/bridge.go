package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Alia5/joybridge/internal/calstore"
	"github.com/Alia5/joybridge/internal/configpaths"
	"github.com/Alia5/joybridge/internal/dsu"
	"github.com/Alia5/joybridge/internal/hidio"
	"github.com/Alia5/joybridge/internal/joycon"
	"github.com/Alia5/joybridge/internal/log"
	"github.com/Alia5/joybridge/internal/manager"
	"github.com/Alia5/joybridge/internal/sink"
	"github.com/Alia5/joybridge/internal/util"
)

type Bridge struct {
	Manager     manager.Config `embed:""`
	Viiper      sink.Config    `embed:"" prefix:"viiper."`
	DSU         dsu.Config     `embed:"" prefix:"dsu."`
	Calibration string         `help:"Stick calibration file (defaults to calibration.yaml in the config dir)" env:"JOYBRIDGE_CALIBRATION"`
}

// Run is called by Kong when the run command is executed.
func (b *Bridge) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enum, err := hidio.NewHIDAPI(joycon.VendorNintendo, supported)
	if err != nil {
		return err
	}
	defer enum.Close()
	return b.StartBridge(ctx, enum, logger, rawLogger)
}

func supported(info hidio.Info) bool { return joycon.IsSupportedProduct(info.ProductID) }

// openStore opens the calibration file at path, or the default one.
func openStore(path string, logger *slog.Logger) (*calstore.Store, error) {
	if path == "" {
		p, err := configpaths.DefaultCalibrationPath()
		if err != nil {
			logger.Warn("No config dir, calibration is not persisted", "error", err)
		}
		path = p
	}
	store, err := calstore.Open(path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load calibration: %w", err)
	}
	return store, nil
}

// StartBridge runs the bridge on enum until ctx is done.
func (b *Bridge) StartBridge(ctx context.Context, enum hidio.Enumerator, logger *slog.Logger, rawLogger log.RawLogger) error {
	store, err := openStore(b.Calibration, logger)
	if err != nil {
		return err
	}

	deps := manager.Deps{
		Enumerator: enum,
		Store:      store,
		Logger:     logger,
		Raw:        rawLogger,
		Registry:   manager.NewRegistry(),
	}
	if b.Viiper.Output != sink.KindNone {
		logger.Info("Emulating virtual pads over VIIPER", "type", b.Viiper.Output, "addr", b.Viiper.Addr)
		deps.Output = manager.ViiperOutput(sink.NewProvider(b.Viiper, logger))
	} else {
		logger.Info("Virtual pad output disabled")
	}

	if b.DSU.Enabled {
		srv := dsu.New(b.DSU, deps.Registry, logger)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start DSU server: %w", err)
		}
		defer srv.Close()
		deps.Motion = srv
	}

	if util.IsRunFromGUI() {
		go (func() {
			time.Sleep(250 * time.Millisecond)
			util.HideConsoleWindow()
		})()
	}

	return manager.New(b.Manager, deps).Run(ctx)
}
