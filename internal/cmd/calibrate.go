package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Alia5/joybridge/internal/hidio"
	"github.com/Alia5/joybridge/internal/joycon"
	"github.com/Alia5/joybridge/internal/log"
)

var ErrNoController = errors.New("no matching controller found")

// Calibrate recenters the sticks of one controller from the median of a
// short capture and stores the result as a calibration override.
type Calibrate struct {
	Device      string        `arg:"" optional:"" help:"Serial or HID path of the controller (default: first found)"`
	Duration    time.Duration `help:"Capture length" default:"3s"`
	Calibration string        `help:"Stick calibration file (defaults to calibration.yaml in the config dir)" env:"JOYBRIDGE_CALIBRATION"`
	Yes         bool          `short:"y" help:"Start capturing without waiting for Enter"`
}

// Run is called by Kong when the calibrate command is executed.
func (c *Calibrate) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enum, err := hidio.NewHIDAPI(joycon.VendorNintendo, supported)
	if err != nil {
		return err
	}
	defer enum.Close()

	store, err := openStore(c.Calibration, logger)
	if err != nil {
		return err
	}
	prompt := !c.Yes && term.IsTerminal(int(os.Stdin.Fd()))
	_, err = c.calibrate(ctx, enum, store, logger, rawLogger, prompt, os.Stdin, os.Stdout)
	return err
}

func (c *Calibrate) pick(enum hidio.Enumerator) (hidio.Info, error) {
	infos, err := enum.Enumerate()
	if err != nil {
		return hidio.Info{}, fmt.Errorf("enumerate: %w", err)
	}
	for _, info := range infos {
		if !joycon.IsSupportedProduct(info.ProductID) {
			continue
		}
		if c.Device == "" || c.Device == info.Serial || c.Device == info.Path {
			return info, nil
		}
	}
	if c.Device != "" {
		return hidio.Info{}, fmt.Errorf("%w: %s", ErrNoController, c.Device)
	}
	return hidio.Info{}, ErrNoController
}

func (c *Calibrate) calibrate(
	ctx context.Context,
	enum hidio.Enumerator,
	store joycon.OverrideStore,
	logger *slog.Logger,
	rawLogger log.RawLogger,
	prompt bool,
	in io.Reader,
	out io.Writer,
) (joycon.CaptureResult, error) {
	var res joycon.CaptureResult
	info, err := c.pick(enum)
	if err != nil {
		return res, err
	}
	dev, err := enum.Open(info.Path)
	if err != nil {
		return res, fmt.Errorf("open %s: %w", info.Path, err)
	}
	s := joycon.NewSession(1, dev, info, joycon.DefaultOptions(), logger, rawLogger, store, nil)
	s.SetSlot(0)
	if err := s.Attach(ctx); err != nil {
		_ = dev.Close()
		return res, err
	}
	defer func() {
		s.Stop()
		s.Wait(time.Second)
		s.Detach()
	}()
	if err := s.Start(nil); err != nil {
		return res, err
	}

	fmt.Fprintf(out, "Calibrating %s (%s)\n", s.Type(), s.Key())
	if prompt {
		fmt.Fprint(out, "Leave the sticks centered and press Enter... ")
		if _, err := bufio.NewReader(in).ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
			return res, err
		}
	}

	s.StartCapture()
	select {
	case <-ctx.Done():
		return res, ctx.Err()
	case <-time.After(c.Duration):
	}
	res, err = s.StopCapture()
	if err != nil {
		return res, err
	}
	fmt.Fprintf(out, "Captured %d samples: left center %d,%d right center %d,%d\n",
		res.Samples, res.Left.X, res.Left.Y, res.Right.X, res.Right.Y)
	return res, nil
}
