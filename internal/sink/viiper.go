package sink

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Alia5/joybridge/apiclient"
	"github.com/Alia5/joybridge/apitypes"
	"github.com/Alia5/joybridge/device/dualshock4"
	"github.com/Alia5/joybridge/device/xbox360"
)

// Kind is the emulated controller type.
type Kind string

const (
	KindNone       Kind = "none"
	KindXbox360    Kind = xbox360.TypeName
	KindDualShock4 Kind = dualshock4.TypeName
)

// Config selects the VIIPER server and the emulated controller.
type Config struct {
	Output       Kind          `help:"Virtual controller type (xbox360, dualshock4, none)" default:"xbox360" enum:"xbox360,dualshock4,none" env:"JOYBRIDGE_OUTPUT"`
	Addr         string        `help:"VIIPER API server address" default:"localhost:3242" env:"JOYBRIDGE_VIIPER_ADDR"`
	Password     string        `help:"VIIPER API password" env:"JOYBRIDGE_VIIPER_PASSWORD"`
	BusID        uint32        `help:"VIIPER bus to attach devices to (0 = first existing or new)" default:"0" env:"JOYBRIDGE_VIIPER_BUS"`
	Timeout      time.Duration `help:"VIIPER request timeout" default:"5s" env:"JOYBRIDGE_VIIPER_TIMEOUT"`
	RetryDelay   time.Duration `help:"Delay before retrying a failed virtual pad connect" default:"5s" env:"JOYBRIDGE_VIIPER_RETRY_DELAY"`
	WriteTimeout time.Duration `help:"Input write timeout" default:"250ms" env:"JOYBRIDGE_VIIPER_WRITE_TIMEOUT"`
}

// Provider creates virtual pads on one VIIPER server and shares the bus
// between them.
type Provider struct {
	config Config
	client *apiclient.Client
	logger *slog.Logger

	mu    sync.Mutex
	busID uint32
}

func NewProvider(config Config, logger *slog.Logger) *Provider {
	client := apiclient.NewWithConfig(config.Addr, &apiclient.Config{
		DialTimeout:  config.Timeout,
		ReadTimeout:  config.Timeout,
		WriteTimeout: config.Timeout,
		Password:     config.Password,
	})
	return NewProviderWithClient(config, client, logger)
}

func NewProviderWithClient(config Config, client *apiclient.Client, logger *slog.Logger) *Provider {
	return &Provider{config: config, client: client, logger: logger}
}

func (p *Provider) Config() Config { return p.config }

// bus returns the configured bus, the first existing one or a new one.
func (p *Provider) bus(ctx context.Context) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busID != 0 {
		return p.busID, nil
	}
	if p.config.BusID != 0 {
		p.busID = p.config.BusID
		return p.busID, nil
	}
	list, err := p.client.BusListCtx(ctx)
	if err != nil {
		return 0, fmt.Errorf("list buses: %w", err)
	}
	if len(list.Buses) > 0 {
		p.busID = list.Buses[0]
		return p.busID, nil
	}
	created, err := p.client.BusCreateCtx(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("create bus: %w", err)
	}
	p.busID = created.BusID
	p.logger.Info("Created VIIPER bus", "bus", p.busID)
	return p.busID, nil
}

func (p *Provider) forgetBus() {
	p.mu.Lock()
	p.busID = 0
	p.mu.Unlock()
}

// NewPad returns an unconnected pad of the configured kind.
func (p *Provider) NewPad(logger *slog.Logger) *ViiperPad {
	return &ViiperPad{provider: p, kind: p.config.Output, logger: logger}
}

// ViiperPad is a virtual gamepad on a VIIPER bus.
type ViiperPad struct {
	provider *Provider
	kind     Kind
	logger   *slog.Logger
	dedup    Dedup

	mu         sync.Mutex
	stream     *apiclient.DeviceStream
	dev        *apitypes.Device
	onFeedback FeedbackFunc
}

func (v *ViiperPad) Kind() Kind { return v.kind }

func (v *ViiperPad) SetFeedbackHandler(f FeedbackFunc) {
	v.mu.Lock()
	v.onFeedback = f
	v.mu.Unlock()
}

func (v *ViiperPad) IsConnected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stream != nil
}

// Connect adds the device to the bus and opens its stream.
func (v *ViiperPad) Connect(ctx context.Context) error {
	if v.IsConnected() {
		return nil
	}
	busID, err := v.provider.bus(ctx)
	if err != nil {
		return err
	}
	stream, dev, err := v.provider.client.AddDeviceAndConnect(ctx, busID, string(v.kind), nil)
	if err != nil {
		var apiErr *apitypes.Problem
		if errors.As(err, &apiErr) && apiErr.NotFound() {
			v.provider.forgetBus()
		}
		if dev != nil {
			v.remove(dev)
		}
		return fmt.Errorf("add %s: %w", v.kind, err)
	}

	v.mu.Lock()
	v.stream, v.dev = stream, dev
	v.mu.Unlock()
	v.dedup.Reset()
	v.logger.Info("Virtual pad connected", "type", v.kind, "bus", dev.BusID, "device", dev.DevID)

	go v.readFeedback(stream)
	return nil
}

func (v *ViiperPad) feedbackSize() int {
	if v.kind == KindDualShock4 {
		return dualshock4.FeedbackSize
	}
	return xbox360.RumbleSize
}

func (v *ViiperPad) decodeFeedback(buf []byte) (Feedback, error) {
	if v.kind == KindDualShock4 {
		var out dualshock4.OutputState
		if err := out.UnmarshalBinary(buf); err != nil {
			return Feedback{}, err
		}
		return Feedback{Large: out.RumbleLarge, Small: out.RumbleSmall}, nil
	}
	var r xbox360.XRumbleState
	if err := r.UnmarshalBinary(buf); err != nil {
		return Feedback{}, err
	}
	return Feedback{Large: r.LeftMotor, Small: r.RightMotor}, nil
}

func (v *ViiperPad) readFeedback(stream *apiclient.DeviceStream) {
	buf := make([]byte, v.feedbackSize())
	for {
		if err := stream.ReadFeedback(buf); err != nil {
			if !errors.Is(err, apiclient.ErrStreamClosed) {
				v.logger.Warn("Virtual pad stream lost", "error", err)
				v.drop(stream)
			}
			return
		}
		fb, err := v.decodeFeedback(buf)
		if err != nil {
			continue
		}
		v.mu.Lock()
		f := v.onFeedback
		v.mu.Unlock()
		if f != nil {
			f(fb)
		}
	}
}

// drop forgets a broken stream; the next Connect starts over.
func (v *ViiperPad) drop(stream *apiclient.DeviceStream) {
	v.mu.Lock()
	if v.stream != stream {
		v.mu.Unlock()
		return
	}
	dev := v.dev
	v.stream, v.dev = nil, nil
	v.mu.Unlock()
	_ = stream.Close()
	if dev != nil {
		v.remove(dev)
	}
}

func (v *ViiperPad) remove(dev *apitypes.Device) {
	ctx, cancel := context.WithTimeout(context.Background(), v.provider.config.Timeout)
	defer cancel()
	if _, err := v.provider.client.DeviceRemoveCtx(ctx, dev.BusID, dev.DevID); err != nil {
		v.logger.Debug("Remove virtual pad failed", "bus", dev.BusID, "device", dev.DevID, "error", err)
	}
}

// Disconnect closes the stream and removes the device from the bus.
func (v *ViiperPad) Disconnect() error {
	v.mu.Lock()
	stream := v.stream
	v.mu.Unlock()
	if stream == nil {
		return nil
	}
	v.drop(stream)
	v.logger.Info("Virtual pad disconnected", "type", v.kind)
	return nil
}

// Update sends state unless it equals the previous one.
func (v *ViiperPad) Update(state encoding.BinaryMarshaler) (bool, error) {
	v.mu.Lock()
	stream := v.stream
	v.mu.Unlock()
	if stream == nil {
		return false, ErrNotConnected
	}
	b, err := state.MarshalBinary()
	if err != nil {
		return false, fmt.Errorf("marshal: %w", err)
	}
	if !v.dedup.Changed(b) {
		return false, nil
	}
	if t := v.provider.config.WriteTimeout; t > 0 {
		_ = stream.SetWriteDeadline(time.Now().Add(t))
	}
	if err := stream.WriteBinary(rawState(b)); err != nil {
		v.dedup.Reset()
		v.drop(stream)
		return false, fmt.Errorf("write: %w", err)
	}
	return true, nil
}

type rawState []byte

func (r rawState) MarshalBinary() ([]byte, error) { return r, nil }
