// Package manager runs the bridge: it attaches controllers as they appear,
// keeps their player slots and pairs, and forwards every input frame to the
// virtual pad and the motion server.
package manager

import (
	"context"
	"encoding"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Alia5/joybridge/internal/dsu"
	"github.com/Alia5/joybridge/internal/hidio"
	"github.com/Alia5/joybridge/internal/joycon"
	"github.com/Alia5/joybridge/internal/log"
	"github.com/Alia5/joybridge/internal/mapping"
	"github.com/Alia5/joybridge/internal/pairing"
	"github.com/Alia5/joybridge/internal/sink"
)

// SessionConfig tunes every controller session.
type SessionConfig struct {
	ReadTimeout           time.Duration `help:"HID read timeout" default:"100ms" env:"JOYBRIDGE_READ_TIMEOUT"`
	Beta                  float64       `help:"Madgwick filter gain" default:"0.05" env:"JOYBRIDGE_FILTER_BETA"`
	SquareSticks          bool          `help:"Map the round stick gate onto a square" default:"false" env:"JOYBRIDGE_SQUARE_STICKS"`
	GyroSliders           bool          `help:"Integrate gyro motion into ZL/ZR while held" default:"false" env:"JOYBRIDGE_GYRO_SLIDERS"`
	GyroSliderSensitivity float64       `help:"Gyro slider gain" default:"0.1" env:"JOYBRIDGE_GYRO_SLIDER_SENSITIVITY"`
	GyroSliderOrientation bool          `help:"Drive gyro sliders from the filtered pitch instead of the raw rate" default:"false" env:"JOYBRIDGE_GYRO_SLIDER_ORIENTATION"`
	HomeLight             bool          `help:"Turn the home button LED on while attached" default:"true" env:"JOYBRIDGE_HOME_LIGHT"`
	RumbleLowFreq         float64       `help:"Low rumble frequency in Hz" default:"160" env:"JOYBRIDGE_RUMBLE_LOW_FREQ"`
	RumbleHighFreq        float64       `help:"High rumble frequency in Hz" default:"320" env:"JOYBRIDGE_RUMBLE_HIGH_FREQ"`
	LightRefresh          time.Duration `help:"Interval for rewriting player LEDs" default:"10s" env:"JOYBRIDGE_LIGHT_REFRESH"`
}

// Options converts the config, filling zero values with session defaults.
func (c SessionConfig) Options() joycon.Options {
	o := joycon.DefaultOptions()
	if c.ReadTimeout > 0 {
		o.ReadTimeout = c.ReadTimeout
	}
	if c.Beta > 0 {
		o.Beta = c.Beta
	}
	if c.GyroSliderSensitivity > 0 {
		o.GyroSliderSensitivity = c.GyroSliderSensitivity
	}
	if c.RumbleLowFreq > 0 {
		o.RumbleLowFreq = c.RumbleLowFreq
	}
	if c.RumbleHighFreq > 0 {
		o.RumbleHighFreq = c.RumbleHighFreq
	}
	if c.LightRefresh > 0 {
		o.LightRefresh = c.LightRefresh
	}
	o.SquareSticks = c.SquareSticks
	o.GyroSliders = c.GyroSliders
	o.GyroSliderOrientation = c.GyroSliderOrientation
	o.HomeLightOn = c.HomeLight
	return o
}

// Config configures the manager.
type Config struct {
	PollInterval   time.Duration `help:"Controller enumeration interval" default:"1s" env:"JOYBRIDGE_POLL_INTERVAL"`
	AttachTimeout  time.Duration `help:"Time limit for the controller handshake" default:"10s" env:"JOYBRIDGE_ATTACH_TIMEOUT"`
	ShutdownBudget time.Duration `help:"Shared time limit for stopping all controllers on exit" default:"1.8s" env:"JOYBRIDGE_SHUTDOWN_BUDGET"`
	AutoJoin       bool          `help:"Join a left and a right Joy-Con automatically" default:"true" env:"JOYBRIDGE_AUTO_JOIN"`
	PowerOffOnExit bool          `help:"Turn Bluetooth controllers off on exit" default:"false" env:"JOYBRIDGE_POWER_OFF"`

	Session SessionConfig   `embed:"" prefix:"session."`
	Mapping mapping.Options `embed:"" prefix:"mapping."`
}

// mappingOptions ties analog triggers to the sessions that integrate them.
func (c Config) mappingOptions() mapping.Options {
	o := c.Mapping
	o.GyroAnalogSliders = c.Session.GyroSliders
	return o
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.AttachTimeout <= 0 {
		c.AttachTimeout = 10 * time.Second
	}
	if c.ShutdownBudget <= 0 {
		c.ShutdownBudget = 1800 * time.Millisecond
	}
}

// Output creates the virtual pads. A nil NewPad disables virtual output.
type Output struct {
	Kind       sink.Kind
	NewPad     func(logger *slog.Logger) sink.Pad
	RetryDelay time.Duration
}

// ViiperOutput creates pads through p.
func ViiperOutput(p *sink.Provider) Output {
	cfg := p.Config()
	out := Output{Kind: cfg.Output, RetryDelay: cfg.RetryDelay}
	if cfg.Output != sink.KindNone {
		out.NewPad = func(logger *slog.Logger) sink.Pad { return p.NewPad(logger) }
	}
	return out
}

// Publisher receives a frame per input report for the motion server.
type Publisher interface {
	Publish(f dsu.Frame)
}

// Deps are the collaborators of a Manager. Only Enumerator is required.
type Deps struct {
	Enumerator hidio.Enumerator
	Output     Output
	Motion     Publisher
	Store      joycon.OverrideStore
	Logger     *slog.Logger
	Raw        log.RawLogger
	// Registry is created when nil. Pass one to share it with the motion
	// server before the manager exists.
	Registry *Registry
}

type Manager struct {
	config   Config
	deps     Deps
	logger   *slog.Logger
	mapper   mapping.Mapper
	registry *Registry
	pairing  *pairing.Coordinator
	events   chan joycon.Event
	nextID   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	stopping bool
	pending  map[string]struct{}
	wg       sync.WaitGroup
}

func New(config Config, deps Deps) *Manager {
	config.setDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Output.RetryDelay <= 0 {
		deps.Output.RetryDelay = 5 * time.Second
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:   config,
		deps:     deps,
		logger:   deps.Logger,
		mapper:   mapping.Mapper{Options: config.mappingOptions()},
		registry: deps.Registry,
		events:   make(chan joycon.Event, 64),
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[string]struct{}),
	}
	m.pairing = pairing.New(deps.Logger, pairing.Hooks{Joined: m.joined, Split: m.split, Solo: m.solo})
	return m
}

// Registry exposes the live controllers; it implements dsu.PadSource.
func (m *Manager) Registry() *Registry { return m.registry }

// Join pairs two Joy-Cons, or marks a single one as held vertically when
// a == b.
func (m *Manager) Join(a, b int) bool { return m.pairing.Join(a, b) }

// Split dissolves the pair or vertical mode of id.
func (m *Manager) Split(id int) bool { return m.pairing.Split(id) }

// Run attaches controllers until ctx is done, then shuts every session down
// within the shutdown budget.
func (m *Manager) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, m.cancel)
	defer stop()

	hotplug := make(chan hidio.Event, 16)
	go hidio.NewMonitor(m.deps.Enumerator, m.config.PollInterval, m.logger).Run(m.ctx, hotplug)
	defer func() {
		go func() {
			for range hotplug {
			}
		}()
	}()
	defer m.shutdown()

	m.logger.Info("Controller manager started", "output", m.deps.Output.Kind, "autoJoin", m.config.AutoJoin)
	for {
		select {
		case <-m.ctx.Done():
			return nil
		case ev, ok := <-hotplug:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case hidio.Arrived:
				m.arrive(ev.Info)
			case hidio.Departed:
				if c, ok := m.registry.byDevicePath(ev.Info.Path); ok {
					c.session.Logger().Info("Controller unplugged")
					m.drop(c.session.ID)
				}
			}
		case ev := <-m.events:
			m.handleEvent(ev)
		}
	}
}

// spawn runs fn on a tracked goroutine unless shutdown has begun.
func (m *Manager) spawn(fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopping {
		return false
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
	return true
}

func (m *Manager) arrive(info hidio.Info) {
	if info.VendorID != joycon.VendorNintendo || !joycon.IsSupportedProduct(info.ProductID) {
		return
	}
	if _, ok := m.registry.byDevicePath(info.Path); ok {
		return
	}
	m.mu.Lock()
	if _, ok := m.pending[info.Path]; ok {
		m.mu.Unlock()
		return
	}
	m.pending[info.Path] = struct{}{}
	m.mu.Unlock()

	started := m.spawn(func() {
		defer func() {
			m.mu.Lock()
			delete(m.pending, info.Path)
			m.mu.Unlock()
		}()
		m.attach(info)
	})
	if !started {
		m.mu.Lock()
		delete(m.pending, info.Path)
		m.mu.Unlock()
	}
}

// attach opens, attaches and starts one controller.
func (m *Manager) attach(info hidio.Info) {
	logger := m.logger.With("path", info.Path)
	dev, err := m.deps.Enumerator.Open(info.Path)
	if err != nil {
		logger.Warn("Failed to open controller", "error", err)
		return
	}
	id := int(m.nextID.Add(1))
	s := joycon.NewSession(id, dev, info, m.config.Session.Options(), m.logger, m.deps.Raw, m.deps.Store, m.events)
	s.SetSlot(m.pairing.Add(id, s))

	ctx, cancel := context.WithTimeout(m.ctx, m.config.AttachTimeout)
	err = s.Attach(ctx)
	cancel()
	if err != nil {
		s.Logger().Error("Failed to attach controller", "error", err)
		m.pairing.Remove(id)
		s.Detach()
		return
	}

	c := &controller{session: s, path: info.Path}
	if m.deps.Output.NewPad != nil {
		c.pad = m.deps.Output.NewPad(s.Logger())
		c.pad.SetFeedbackHandler(m.feedback(id))
	}
	m.registry.add(c)
	if err := s.Start(m.onFrame); err != nil {
		s.Logger().Error("Failed to start controller", "error", err)
		m.drop(id)
		return
	}

	lightCtx, cancel := context.WithTimeout(m.ctx, time.Second)
	if err := s.SetHomeLight(lightCtx, m.config.Session.HomeLight); err != nil {
		s.Logger().Debug("Home light not set", "error", err)
	}
	cancel()

	if m.config.AutoJoin && s.Type().IsJoycon() {
		if peer, ok := m.pairing.FindPartner(id); ok {
			m.pairing.Join(id, peer)
		}
	}
	m.connectPad(c)
}

// emits reports whether id should drive its own virtual pad: it is live and
// not the right half of a pair.
func (m *Manager) emits(id int) bool {
	c, ok := m.registry.get(id)
	if !ok {
		return false
	}
	return m.pairing.State(id).Kind != pairing.Paired || c.session.Type().IsLeft()
}

// connectPad connects c's virtual pad, retrying until it succeeds, the
// controller stops emitting or the manager stops.
func (m *Manager) connectPad(c *controller) {
	if c.pad == nil || !c.connecting.CompareAndSwap(false, true) {
		return
	}
	started := m.spawn(func() {
		defer c.connecting.Store(false)
		logger := c.session.Logger()
		for m.emits(c.session.ID) {
			err := c.pad.Connect(m.ctx)
			if err == nil {
				if !m.emits(c.session.ID) {
					_ = c.pad.Disconnect()
				}
				return
			}
			if m.ctx.Err() != nil {
				return
			}
			logger.Warn("Virtual pad connect failed, retrying", "error", err, "retryIn", m.deps.Output.RetryDelay)
			select {
			case <-m.ctx.Done():
				return
			case <-time.After(m.deps.Output.RetryDelay):
			}
		}
	})
	if !started {
		c.connecting.Store(false)
	}
}

// drop removes id and releases its device.
func (m *Manager) drop(id int) {
	c, ok := m.registry.remove(id)
	if !ok {
		return
	}
	m.pairing.Remove(id)
	c.session.Stop()
	if !c.session.Wait(m.config.ShutdownBudget) {
		c.session.Logger().Warn("Controller loops did not stop in time")
	}
	c.session.Detach()
	if c.pad != nil {
		_ = c.pad.Disconnect()
	}
	c.session.Logger().Info("Controller removed")
}

func (m *Manager) handleEvent(ev joycon.Event) {
	s := ev.Session
	switch ev.Kind {
	case joycon.EventCalibrated:
		s.Logger().Info("Controller calibration updated")
	case joycon.EventState:
		switch {
		case ev.State == joycon.StateDropped:
			m.drop(s.ID)
		case ev.State == joycon.StateErrored:
			s.Logger().Warn("Controller is not responding", "error", ev.Err)
		case ev.Prev == joycon.StateErrored && ev.State.Operational():
			s.Logger().Info("Controller recovered")
		}
	}
}

func (m *Manager) refreshLights(ids ...int) {
	for _, id := range ids {
		c, ok := m.registry.get(id)
		if !ok {
			continue
		}
		m.spawn(func() {
			ctx, cancel := context.WithTimeout(m.ctx, time.Second)
			defer cancel()
			if err := c.session.RefreshLights(ctx); err != nil {
				c.session.Logger().Debug("Player lights not set", "error", err)
			}
		})
	}
}

// joined hands output over to the primary half.
func (m *Manager) joined(primary, secondary int) {
	if c, ok := m.registry.get(secondary); ok && c.pad != nil {
		_ = c.pad.Disconnect()
	}
	m.refreshLights(primary, secondary)
}

func (m *Manager) solo(id int, vertical bool) {
	m.logger.Info("Joy-Con orientation changed", "id", id, "vertical", vertical)
	m.refreshLights(id)
}

// split gives both halves their own output again.
func (m *Manager) split(a, b int) {
	m.refreshLights(a, b)
	for _, id := range []int{a, b} {
		if c, ok := m.registry.get(id); ok {
			m.connectPad(c)
		}
	}
}

// feedback routes motor requests of id's virtual pad to the controller and
// its paired half.
func (m *Manager) feedback(id int) sink.FeedbackFunc {
	return func(fb sink.Feedback) {
		c, ok := m.registry.get(id)
		if !ok {
			return
		}
		c.session.SetMotors(fb.Large, fb.Small)
		if peer, ok := m.pairing.Peer(id); ok {
			if pc, ok := m.registry.get(peer); ok {
				pc.session.SetMotors(fb.Large, fb.Small)
			}
		}
	}
}

// onFrame runs on the receive goroutine of s.
func (m *Manager) onFrame(s *joycon.Session, snap *joycon.Snapshot) {
	st := m.pairing.State(s.ID)
	if st.Kind == pairing.Paired && !s.Type().IsLeft() {
		return
	}
	c, ok := m.registry.get(s.ID)
	if !ok {
		return
	}

	var pad mapping.Pad
	if st.Kind == pairing.Paired {
		var right *joycon.Snapshot
		if peer, ok := m.registry.get(st.Peer); ok {
			right = peer.session.Snapshot()
		}
		pad = mapping.Joined(snap, right)
	} else {
		pad = mapping.Single(s.Type(), snap, st.Kind == pairing.SoloVertical)
	}

	m.push(c, pad)
	if m.deps.Motion != nil {
		m.deps.Motion.Publish(m.motionFrame(s, snap, pad))
	}
}

func (m *Manager) push(c *controller, pad mapping.Pad) {
	if c.pad == nil || !c.pad.IsConnected() {
		return
	}
	var state encoding.BinaryMarshaler
	if m.deps.Output.Kind == sink.KindDualShock4 {
		ds4 := m.mapper.ToDS4(pad)
		state = &ds4
	} else {
		x := m.mapper.ToXbox360(pad)
		state = &x
	}
	if _, err := c.pad.Update(state); err != nil {
		c.session.Logger().Warn("Virtual pad update failed", "error", err)
		m.connectPad(c)
	}
}

func (m *Manager) motionFrame(s *joycon.Session, snap *joycon.Snapshot, pad mapping.Pad) dsu.Frame {
	info := slotInfo(s, snap)
	info.Battery = dsu.BatteryStatus(pad.Battery, pad.Charging)
	motion := make([]dsu.Motion, 0, len(pad.Motion))
	for _, sample := range pad.Motion {
		accel, gyro := mapping.PadMotion(pad, sample)
		motion = append(motion, dsu.Motion{
			Timestamp: uint64(sample.Timestamp.Microseconds()),
			Accel:     float32s(accel),
			Gyro:      float32s(gyro),
		})
	}
	return dsu.FromDS4(info, m.mapper.ToDS4(pad), motion)
}

func float32s(v [3]float64) [3]float32 {
	return [3]float32{float32(v[0]), float32(v[1]), float32(v[2])}
}

// shutdown stops every session under one shared budget, then powers off or
// detaches the controllers.
func (m *Manager) shutdown() {
	m.mu.Lock()
	m.stopping = true
	m.mu.Unlock()
	m.cancel()

	cs := m.registry.all()
	for _, c := range cs {
		c.session.Stop()
	}
	deadline := time.Now().Add(m.config.ShutdownBudget)
	for _, c := range cs {
		if !c.session.Wait(time.Until(deadline)) {
			c.session.Logger().Warn("Controller loops did not stop in time")
		}
	}
	for _, c := range cs {
		if m.config.PowerOffOnExit && !c.session.IsUSB() {
			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			if err := c.session.PowerOff(ctx); err != nil {
				c.session.Logger().Debug("Power off failed", "error", err)
			}
			cancel()
		}
		c.session.Detach()
		if c.pad != nil {
			_ = c.pad.Disconnect()
		}
		m.registry.remove(c.session.ID)
	}
	m.wg.Wait()
	// Attaches that finished while the budget ran.
	for _, c := range m.registry.all() {
		c.session.Stop()
		c.session.Wait(100 * time.Millisecond)
		c.session.Detach()
		if c.pad != nil {
			_ = c.pad.Disconnect()
		}
		m.registry.remove(c.session.ID)
	}
	m.pairing.Close()
	m.logger.Info("Controller manager stopped", "controllers", len(cs))
}
