package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/Alia5/joybridge/internal/hidio"
	"github.com/Alia5/joybridge/internal/joycon"
)

type List struct {
	All bool `help:"Also show Nintendo HID devices that are not supported controllers"`
}

// Run is called by Kong when the list command is executed.
func (l *List) Run(logger *slog.Logger) error {
	enum, err := hidio.NewHIDAPI(joycon.VendorNintendo, nil)
	if err != nil {
		return err
	}
	defer enum.Close()
	n, err := l.list(enum, os.Stdout)
	if err != nil {
		return err
	}
	logger.Debug("Enumeration done", "devices", n)
	return nil
}

func (l *List) list(enum hidio.Enumerator, w io.Writer) (int, error) {
	infos, err := enum.Enumerate()
	if err != nil {
		return 0, fmt.Errorf("enumerate: %w", err)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tTRANSPORT\tSERIAL\tPATH")
	n := 0
	for _, info := range infos {
		if !l.All && !joycon.IsSupportedProduct(info.ProductID) {
			continue
		}
		transport := "usb"
		if info.Bluetooth {
			transport = "bluetooth"
		}
		name := joycon.TypeFromProduct(info.ProductID).String()
		if info.ProductID == joycon.ProductChargingGrip {
			name = "charging-grip"
		}
		serial := info.Serial
		if serial == "" {
			serial = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, transport, serial, info.Path)
		n++
	}
	if n == 0 {
		fmt.Fprintln(w, "No controllers found")
		return 0, nil
	}
	return n, tw.Flush()
}
