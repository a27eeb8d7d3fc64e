package manager

import (
	"context"
	"encoding"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/joybridge/device/xbox360"
	"github.com/Alia5/joybridge/internal/dsu"
	"github.com/Alia5/joybridge/internal/hidio"
	"github.com/Alia5/joybridge/internal/joycon"
	"github.com/Alia5/joybridge/internal/sink"
	th "github.com/Alia5/joybridge/internal/testing"
)

type fakePad struct {
	mu        sync.Mutex
	connected bool
	failures  int
	connects  int
	updates   []encoding.BinaryMarshaler
	feedback  sink.FeedbackFunc
}

func (p *fakePad) Connect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects++
	if p.failures > 0 {
		p.failures--
		return errors.New("viiper unreachable")
	}
	p.connected = true
	return nil
}

func (p *fakePad) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

func (p *fakePad) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakePad) Update(state encoding.BinaryMarshaler) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return false, sink.ErrNotConnected
	}
	p.updates = append(p.updates, state)
	return true, nil
}

func (p *fakePad) SetFeedbackHandler(f sink.FeedbackFunc) { p.feedback = f }

func (p *fakePad) last() encoding.BinaryMarshaler {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.updates) == 0 {
		return nil
	}
	return p.updates[len(p.updates)-1]
}

type fakePublisher struct {
	mu     sync.Mutex
	frames []dsu.Frame
}

func (f *fakePublisher) Publish(fr dsu.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
}

func (f *fakePublisher) last() (dsu.Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return dsu.Frame{}, false
	}
	return f.frames[len(f.frames)-1], true
}

var (
	leftInfo  = hidio.Info{Path: "bt-left", VendorID: joycon.VendorNintendo, ProductID: joycon.ProductJoyconLeft, Serial: "L1", Bluetooth: true}
	rightInfo = hidio.Info{Path: "bt-right", VendorID: joycon.VendorNintendo, ProductID: joycon.ProductJoyconRight, Serial: "R1", Bluetooth: true}
	proInfo   = hidio.Info{Path: "bt-pro", VendorID: joycon.VendorNintendo, ProductID: joycon.ProductPro, Serial: "P1", Bluetooth: true}
)

func controllerFor(info hidio.Info) *th.Controller {
	switch info.ProductID {
	case joycon.ProductJoyconLeft:
		return &th.Controller{DeviceType: 0x01, MAC: [6]byte{1, 1, 1, 1, 1, 1}}
	case joycon.ProductJoyconRight:
		return &th.Controller{DeviceType: 0x02, MAC: [6]byte{2, 2, 2, 2, 2, 2}}
	}
	return &th.Controller{DeviceType: 0x03, MAC: [6]byte{3, 3, 3, 3, 3, 3}}
}

type harness struct {
	m    *Manager
	enum *th.FakeEnumerator
	pub  *fakePublisher

	cancel   context.CancelFunc
	done     chan error
	stopOnce sync.Once

	mu   sync.Mutex
	pads []*fakePad
	// failures is applied to every new pad.
	failures int
}

func newHarness(t *testing.T, autoJoin bool, infos ...hidio.Info) *harness {
	t.Helper()
	return newHarnessConfig(t, func(c *Config) { c.AutoJoin = autoJoin }, infos...)
}

func newHarnessConfig(t *testing.T, tweak func(*Config), infos ...hidio.Info) *harness {
	t.Helper()
	h := &harness{enum: &th.FakeEnumerator{}, pub: &fakePublisher{}, done: make(chan error, 1)}
	h.enum.OpenFn = func(info hidio.Info) (hidio.Device, error) {
		return th.NewFakeDevice(controllerFor(info).Respond), nil
	}
	h.enum.Set(infos...)

	cfg := Config{
		PollInterval:   10 * time.Millisecond,
		AttachTimeout:  2 * time.Second,
		ShutdownBudget: time.Second,
		Session:        SessionConfig{ReadTimeout: 5 * time.Millisecond},
	}
	tweak(&cfg)
	h.m = New(cfg, Deps{
		Enumerator: h.enum,
		Output: Output{
			Kind:       sink.KindXbox360,
			RetryDelay: 10 * time.Millisecond,
			NewPad: func(*slog.Logger) sink.Pad {
				h.mu.Lock()
				defer h.mu.Unlock()
				p := &fakePad{failures: h.failures}
				h.pads = append(h.pads, p)
				return p
			},
		},
		Motion: h.pub,
		Logger: slog.New(slog.DiscardHandler),
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.m.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.stopOnce.Do(func() {
		h.cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
		}
	})
}

func (h *harness) session(t *testing.T, path string) *controller {
	t.Helper()
	var c *controller
	require.Eventually(t, func() bool {
		var ok bool
		c, ok = h.m.registry.byDevicePath(path)
		return ok && c.session.State().Operational()
	}, 3*time.Second, 5*time.Millisecond, "controller %s not attached", path)
	return c
}

func (h *harness) device(t *testing.T, path string) *th.FakeDevice {
	t.Helper()
	d, ok := h.enum.Opened(path)
	require.True(t, ok)
	return d.(*th.FakeDevice)
}

func neutralIMU() [3][6]int16 {
	s := [6]int16{0, 0, joycon.DefaultAccelSensitivity / 4, 0, 0, 0}
	return [3][6]int16{s, s, s}
}

func TestJoyconsAreJoinedAndMerged(t *testing.T) {
	h := newHarness(t, true, leftInfo, rightInfo)
	left := h.session(t, leftInfo.Path)
	right := h.session(t, rightInfo.Path)

	require.Eventually(t, func() bool { return h.m.pairing.IsJoined(left.session.ID) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, right.session.ID, h.m.pairing.State(left.session.ID).Peer)

	leftPad := left.pad.(*fakePad)
	rightPad := right.pad.(*fakePad)
	require.Eventually(t, leftPad.IsConnected, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return !rightPad.IsConnected() }, 2*time.Second, 5*time.Millisecond, "only the primary half emits")

	// ZL on the left half.
	h.device(t, leftInfo.Path).Push(th.FullReport(1, [3]byte{0, 0, 0x80}, 0x800, 0x800, 0x800, 0x800, neutralIMU()))
	require.Eventually(t, func() bool {
		st, ok := leftPad.last().(*xbox360.InputState)
		return ok && st.LT == 255
	}, 2*time.Second, 5*time.Millisecond)

	frame, ok := h.pub.last()
	require.True(t, ok)
	assert.Equal(t, uint8(left.session.Slot()), frame.Info.Slot)
	assert.Equal(t, dsu.StateConnected, frame.Info.State)

	// Unplugging the right half splits the pair.
	h.enum.Set(leftInfo)
	require.Eventually(t, func() bool { return h.m.registry.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, h.m.pairing.IsJoined(left.session.ID))
	assert.False(t, h.device(t, rightInfo.Path).Valid(), "handle released")
}

func TestNoAutoJoin(t *testing.T) {
	h := newHarness(t, false, leftInfo, rightInfo)
	left := h.session(t, leftInfo.Path)
	right := h.session(t, rightInfo.Path)
	assert.False(t, h.m.pairing.IsJoined(left.session.ID))

	require.True(t, h.m.Join(right.session.ID, left.session.ID))
	assert.True(t, h.m.pairing.IsJoined(left.session.ID))
	assert.True(t, h.m.Split(left.session.ID))

	rightPad := right.pad.(*fakePad)
	assert.Eventually(t, rightPad.IsConnected, 2*time.Second, 5*time.Millisecond, "split reconnects the right half")
}

// lightWrites counts player LED subcommands written to a device.
func lightWrites(d *th.FakeDevice) int {
	n := 0
	for _, w := range d.Writes() {
		if len(w) > 10 && w[0] == 0x01 && w[10] == 0x30 {
			n++
		}
	}
	return n
}

func TestSoloVerticalRefreshesLights(t *testing.T) {
	h := newHarness(t, false, leftInfo)
	left := h.session(t, leftInfo.Path)
	dev := h.device(t, leftInfo.Path)
	before := lightWrites(dev)

	require.True(t, h.m.Join(left.session.ID, left.session.ID))
	require.Eventually(t, func() bool { return lightWrites(dev) > before }, 2*time.Second, 5*time.Millisecond)

	before = lightWrites(dev)
	require.True(t, h.m.Split(left.session.ID))
	assert.Eventually(t, func() bool { return lightWrites(dev) > before }, 2*time.Second, 5*time.Millisecond)
}

func TestPadConnectIsRetried(t *testing.T) {
	h := newHarnessWithFailures(t, 2, proInfo)
	c := h.session(t, proInfo.Path)
	pad := c.pad.(*fakePad)
	require.Eventually(t, pad.IsConnected, 2*time.Second, 5*time.Millisecond)
	pad.mu.Lock()
	assert.Equal(t, 3, pad.connects)
	pad.mu.Unlock()
}

func newHarnessWithFailures(t *testing.T, failures int, infos ...hidio.Info) *harness {
	h := newHarness(t, false)
	h.mu.Lock()
	h.failures = failures
	h.mu.Unlock()
	h.enum.Set(infos...)
	return h
}

func TestDroppedControllerIsRemoved(t *testing.T) {
	h := newHarness(t, false, proInfo)
	h.session(t, proInfo.Path)
	h.device(t, proInfo.Path).FailReads(hidio.ErrDisconnected)
	assert.Eventually(t, func() bool { return h.m.registry.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestShutdownReleasesDevices(t *testing.T) {
	h := newHarness(t, true, leftInfo, proInfo)
	h.session(t, leftInfo.Path)
	h.session(t, proInfo.Path)

	start := time.Now()
	h.stop()
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Zero(t, h.m.registry.Len())
	assert.False(t, h.device(t, leftInfo.Path).Valid())
	assert.False(t, h.device(t, proInfo.Path).Valid())
}

func TestUnsupportedDevicesAreIgnored(t *testing.T) {
	other := hidio.Info{Path: "kbd", VendorID: 0x046D, ProductID: 0xC31C}
	h := newHarness(t, false, other)
	time.Sleep(50 * time.Millisecond)
	_, opened := h.enum.Opened(other.Path)
	assert.False(t, opened)
	assert.Zero(t, h.m.registry.Len())
}

func TestRegistrySlotInfo(t *testing.T) {
	r := NewRegistry()
	dev := th.NewFakeDevice(nil)
	s := joycon.NewSession(7, dev, leftInfo, joycon.DefaultOptions(), slog.New(slog.DiscardHandler), nil, nil, nil)
	s.SetSlot(2)
	r.add(&controller{session: s, path: leftInfo.Path})

	info, ok := r.SlotInfo(2)
	require.True(t, ok)
	assert.Equal(t, uint8(2), info.Slot)
	assert.Equal(t, dsu.StateReserved, info.State, "not attached yet")
	assert.Equal(t, dsu.ConnBT, info.Connection)
	assert.Equal(t, dsu.BatteryNone, info.Battery)

	_, ok = r.SlotInfo(3)
	assert.False(t, ok)

	_, ok = r.remove(7)
	assert.True(t, ok)
	_, ok = r.byDevicePath(leftInfo.Path)
	assert.False(t, ok)
}

func TestSessionConfigOptions(t *testing.T) {
	assert.Equal(t, joycon.DefaultOptions(), SessionConfig{}.Options())

	o := SessionConfig{Beta: 0.2, SquareSticks: true, HomeLight: true, RumbleLowFreq: 100}.Options()
	assert.Equal(t, 0.2, o.Beta)
	assert.True(t, o.SquareSticks)
	assert.True(t, o.HomeLightOn)
	assert.Equal(t, 100.0, o.RumbleLowFreq)
	assert.Equal(t, joycon.DefaultOptions().RumbleHighFreq, o.RumbleHighFreq)
}

func TestGyroSlidersFollowSessionOption(t *testing.T) {
	tests := []struct {
		name    string
		session bool
		mapping bool
		want    bool
	}{
		{"off", false, false, false},
		{"session on", true, false, true},
		{"mapping alone", false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{Session: SessionConfig{GyroSliders: tt.session}}
			c.Mapping.GyroAnalogSliders = tt.mapping
			assert.Equal(t, tt.want, c.mappingOptions().GyroAnalogSliders)
		})
	}
}

func TestTriggersStayDigitalWithoutGyroSliders(t *testing.T) {
	h := newHarnessConfig(t, func(c *Config) { c.Mapping.GyroAnalogSliders = true }, proInfo)
	c := h.session(t, proInfo.Path)
	pad := c.pad.(*fakePad)
	require.Eventually(t, pad.IsConnected, 2*time.Second, 5*time.Millisecond)

	// ZL and ZR held.
	h.device(t, proInfo.Path).Push(th.FullReport(1, [3]byte{0x80, 0, 0x80}, 0x800, 0x800, 0x800, 0x800, neutralIMU()))
	require.Eventually(t, func() bool {
		st, ok := pad.last().(*xbox360.InputState)
		return ok && st.LT == 255 && st.RT == 255
	}, 2*time.Second, 5*time.Millisecond)
}
