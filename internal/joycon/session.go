package joycon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Alia5/joybridge/internal/ahrs"
	"github.com/Alia5/joybridge/internal/hidio"
	"github.com/Alia5/joybridge/internal/log"
)

// Error streak thresholds before a soft reconnect is attempted.
const (
	USBErrorThreshold = 1500 * time.Millisecond
	BTErrorThreshold  = 3 * time.Second
	// MaxUSBReconnects is the number of failed soft reconnects after which a
	// wired session is dropped.
	MaxUSBReconnects = 3

	sendIdle = 5 * time.Millisecond
)

// Options tune a session.
type Options struct {
	ReadTimeout time.Duration
	// Beta is the Madgwick filter gain.
	Beta float64
	// SquareSticks maps the circular stick gate onto a square.
	SquareSticks bool
	// GyroSliders integrates gyro motion into ZL/ZR analog values while the
	// trigger is held.
	GyroSliders           bool
	GyroSliderSensitivity float64
	// GyroSliderOrientation uses the filtered pitch delta instead of the raw
	// gyro rate.
	GyroSliderOrientation bool
	HomeLightOn           bool
	RumbleLowFreq         float64
	RumbleHighFreq        float64
	// LightRefresh is how often the send loop rewrites the player LEDs.
	// Zero disables it.
	LightRefresh time.Duration
}

func DefaultOptions() Options {
	return Options{
		ReadTimeout:           100 * time.Millisecond,
		Beta:                  0.05,
		GyroSliderSensitivity: 0.1,
		RumbleLowFreq:         160,
		RumbleHighFreq:        320,
		LightRefresh:          10 * time.Second,
	}
}

// FrameFunc is called on the receive goroutine after every published
// snapshot.
type FrameFunc func(*Session, *Snapshot)

// Session owns one controller's HID handle.
type Session struct {
	ID      int
	Created time.Time

	dev    hidio.Device
	info   hidio.Info
	usb    bool
	serial string
	opts   Options
	logger *slog.Logger
	raw    log.RawLogger
	store  OverrideStore
	events chan<- Event

	ctype atomic.Int32
	slot  atomic.Int32
	state atomic.Int32

	stateMu sync.Mutex
	infoMu  sync.RWMutex
	mac     net.HardwareAddr
	profile Profile

	ioMu    sync.Mutex
	counter atomic.Uint32

	capture Capture
	clock   *ReceiveClock
	filter  *ahrs.Madgwick
	rumble  RumbleQueue

	snap     atomic.Pointer[Snapshot]
	seq      uint64
	sliders  [2]float64
	errSince time.Time
	retries  int

	runMu    sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	requests chan request
}

type request struct {
	fn   func(context.Context) error
	done chan error
}

// NewSession wraps an open device. events receives state changes; it may be
// nil. store may be nil.
func NewSession(
	id int,
	dev hidio.Device,
	info hidio.Info,
	opts Options,
	logger *slog.Logger,
	raw log.RawLogger,
	store OverrideStore,
	events chan<- Event,
) *Session {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultOptions().ReadTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if raw == nil {
		raw = log.NewRaw(nil)
	}
	s := &Session{
		ID:       id,
		Created:  time.Now(),
		dev:      dev,
		info:     info,
		usb:      !info.Bluetooth,
		serial:   info.Serial,
		opts:     opts,
		raw:      raw,
		store:    store,
		events:   events,
		profile:  DefaultProfile(),
		clock:    NewReceiveClock(),
		filter:   ahrs.NewMadgwick(0.005, opts.Beta),
		requests: make(chan request),
	}
	s.ctype.Store(int32(TypeFromProduct(info.ProductID)))
	s.slot.Store(-1)
	s.logger = logger.With("session", id, "serial", info.Serial)
	return s
}

func (s *Session) Type() ControllerType { return ControllerType(s.ctype.Load()) }
func (s *Session) setType(t ControllerType) { s.ctype.Store(int32(t)) }
func (s *Session) Info() hidio.Info { return s.info }
func (s *Session) Serial() string { return s.serial }
func (s *Session) IsUSB() bool { return s.usb }
func (s *Session) State() State { return State(s.state.Load()) }
func (s *Session) Slot() int { return int(s.slot.Load()) }
func (s *Session) SetSlot(slot int) { s.slot.Store(int32(slot)) }
func (s *Session) Logger() *slog.Logger { return s.logger }

// Key identifies the controller for calibration overrides: the serial if
// the transport reports one, else the MAC.
func (s *Session) Key() string {
	if s.serial != "" {
		return s.serial
	}
	return s.MAC().String()
}

func (s *Session) MAC() net.HardwareAddr {
	s.infoMu.RLock()
	defer s.infoMu.RUnlock()
	return s.mac
}

func (s *Session) setMAC(mac net.HardwareAddr) {
	s.infoMu.Lock()
	s.mac = mac
	s.infoMu.Unlock()
}

// Profile returns a copy of the active calibration.
func (s *Session) Profile() Profile {
	s.infoMu.RLock()
	defer s.infoMu.RUnlock()
	return s.profile
}

func (s *Session) setProfile(p Profile) {
	s.infoMu.Lock()
	s.profile = p
	s.infoMu.Unlock()
}

// Snapshot returns the latest published state, or nil before the first
// report.
func (s *Session) Snapshot() *Snapshot { return s.snap.Load() }

func (s *Session) setState(st State, err error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	prev := State(s.state.Swap(int32(st)))
	if prev == st {
		return
	}
	if err != nil {
		s.logger.Warn("controller state changed", "from", prev, "to", st, "error", err)
	} else {
		s.logger.Debug("controller state changed", "from", prev, "to", st)
	}
	s.emit(Event{Kind: EventState, Session: s, State: st, Prev: prev, Err: err})
}

func (s *Session) emit(ev Event) {
	if s.events == nil {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("event channel full, dropping event", "kind", ev.Kind, "state", ev.State)
	}
}

// Start launches the receive and send loops. onFrame may be nil.
func (s *Session) Start(onFrame FrameFunc) error {
	if !s.State().Operational() {
		return ErrNotRunning
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.receiveLoop(ctx, onFrame)
	}()
	go func() {
		defer wg.Done()
		s.sendLoop(ctx)
	}()
	go func() {
		wg.Wait()
		close(s.done)
	}()
	return nil
}

// Stop cancels the loops without waiting for them.
func (s *Session) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait blocks until both loops exit or timeout elapses. It reports whether
// the loops exited.
func (s *Session) Wait(timeout time.Duration) bool {
	s.runMu.Lock()
	done := s.done
	s.runMu.Unlock()
	if done == nil {
		return true
	}
	if timeout <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

func (s *Session) running() (chan struct{}, bool) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.done == nil {
		return nil, false
	}
	select {
	case <-s.done:
		return nil, false
	default:
		return s.done, true
	}
}

// exclusive runs fn on the receive goroutine so its reply reads cannot race
// the input stream. Without running loops fn runs on the caller.
func (s *Session) exclusive(ctx context.Context, fn func(context.Context) error) error {
	done, ok := s.running()
	if !ok {
		return fn(ctx)
	}
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) serveRequests(ctx context.Context) {
	for {
		select {
		case req := <-s.requests:
			req.done <- req.fn(ctx)
		default:
			return
		}
	}
}

// readErrorBackoff paces the receive loop while reads fail outright.
const readErrorBackoff = 10 * time.Millisecond

func (s *Session) errorThreshold() time.Duration {
	if s.usb {
		return USBErrorThreshold
	}
	return BTErrorThreshold
}

func (s *Session) receiveLoop(ctx context.Context, onFrame FrameFunc) {
	buf := make([]byte, usbPacketLen)
	for ctx.Err() == nil {
		s.serveRequests(ctx)
		if s.State() == StateDropped {
			return
		}

		n, err := s.dev.Read(buf, s.opts.ReadTimeout)
		now := time.Now()
		switch {
		case errors.Is(err, hidio.ErrTimeout), err == nil && n == 0:
			err = ErrNoData
		case err == nil:
			s.raw.Log(true, buf[:n])
			var rep Report
			rep, err = DecodeReport(buf[:n], s.Type())
			if err == nil {
				s.errSince = time.Time{}
				s.process(rep, now, onFrame)
				continue
			}
		}
		if !s.handleError(ctx, err, now) {
			return
		}
		if !errors.Is(err, ErrNoData) && !errors.Is(err, ErrInvalidPacket) {
			sleepCtx(ctx, readErrorBackoff)
		}
	}
}

// handleError tracks the error streak. It returns false when the session
// has been dropped.
func (s *Session) handleError(ctx context.Context, err error, now time.Time) bool {
	if errors.Is(err, hidio.ErrDisconnected) || errors.Is(err, hidio.ErrClosed) {
		s.setState(StateDropped, err)
		return false
	}
	if s.errSince.IsZero() {
		s.errSince = now
		return true
	}
	if now.Sub(s.errSince) < s.errorThreshold() {
		return true
	}

	s.setState(StateErrored, err)
	rerr := s.reconnect(ctx)
	if rerr == nil {
		s.logger.Info("controller reconnected")
		s.errSince = time.Time{}
		s.retries = 0
		s.clock.Reset()
		s.setState(StateAttached, nil)
		return true
	}
	s.retries++
	if s.usb && s.retries >= MaxUSBReconnects {
		s.setState(StateDropped, fmt.Errorf("reconnect failed %d times: %w", s.retries, rerr))
		return false
	}
	s.logger.Debug("reconnect failed", "attempt", s.retries, "error", rerr)
	s.errSince = now
	return true
}

func (s *Session) reconnect(ctx context.Context) error {
	if s.usb {
		if err := s.usbHandshake(ctx, false); err != nil {
			return err
		}
	}
	_, err := s.subcommandRetry(ctx, subReportMode, ReportFull)
	return err
}

func (s *Session) process(rep Report, now time.Time, onFrame FrameFunc) {
	start := s.clock.Observe(now)
	delta := s.clock.SubSampleDelta()
	s.capture.Add(rep.Left, rep.Right)

	prof := s.Profile()
	t := s.Type()
	prev := s.snap.Load()

	snap := &Snapshot{
		Time:     now,
		Buttons:  rep.Buttons,
		Battery:  rep.Battery,
		Charging: rep.Charging,
		Delta:    delta,
	}
	s.seq++
	snap.Seq = s.seq
	if prev != nil {
		snap.Previous = prev.Buttons
		snap.DownSince = prev.DownSince
	}
	snap.Down = snap.Buttons &^ snap.Previous
	snap.Up = snap.Previous &^ snap.Buttons
	for b := range NumButtons {
		switch {
		case snap.Down.Has(b):
			snap.DownSince[b] = now
		case !snap.Buttons.Has(b):
			snap.DownSince[b] = time.Time{}
		}
	}

	if t.HasLeftStick() {
		snap.Left.X, snap.Left.Y = prof.Left.Normalize(rep.Left, s.opts.SquareSticks)
	}
	if t.HasRightStick() {
		snap.Right.X, snap.Right.Y = prof.Right.Normalize(rep.Right, s.opts.SquareSticks)
	}

	if rep.HasIMU && t.HasIMU() {
		if delta > 0 {
			s.filter.SetSamplePeriod(delta.Seconds())
		}
		snap.Motion = make([]MotionSample, IMUSamples)
		for i, raw := range rep.IMU {
			accel, gyro := orientIMU(t, prof.IMU.Accel(raw.Accel), prof.IMU.Gyro(raw.Gyro))
			s.filter.UpdateIMU(
				gyro[0]*math.Pi/180, gyro[1]*math.Pi/180, gyro[2]*math.Pi/180,
				accel[0], accel[1], accel[2],
			)
			snap.Motion[i] = MotionSample{
				Timestamp: start + time.Duration(i)*delta,
				Accel:     accel,
				Gyro:      gyro,
			}
		}
		snap.HasMotion = true
		snap.Orientation = s.filter.Angles()
		snap.Quat = s.filter.Quaternion()
		if s.State() == StateAttached {
			s.setState(StateIMUDataOk, nil)
		}
	}

	s.integrateSliders(snap)
	s.snap.Store(snap)
	if onFrame != nil {
		onFrame(s, snap)
	}
}

// orientIMU puts the right Joy-Con's mirrored sensor into the left-hand
// frame.
func orientIMU(t ControllerType, accel, gyro [3]float64) ([3]float64, [3]float64) {
	if t == TypeJoyconRight {
		accel[1], accel[2] = -accel[1], -accel[2]
		gyro[1], gyro[2] = -gyro[1], -gyro[2]
	}
	return accel, gyro
}

var sliderTriggers = [2]Button{ButtonZL, ButtonZR}

// integrateSliders accumulates gyro motion into the trigger sliders while
// the trigger is held and resets them on release.
func (s *Session) integrateSliders(snap *Snapshot) {
	if !s.opts.GyroSliders || !snap.HasMotion {
		s.sliders = [2]float64{}
		return
	}
	var step float64
	if s.opts.GyroSliderOrientation {
		prev := s.filter.PreviousAngles()
		step = (snap.Orientation.Pitch - prev.Pitch) * 180 / math.Pi
	} else {
		step = snap.Motion[len(snap.Motion)-1].Gyro[1]
	}
	for i, b := range sliderTriggers {
		if !snap.Buttons.Has(b) {
			s.sliders[i] = 0
			continue
		}
		s.sliders[i] = math.Max(0, math.Min(255, s.sliders[i]+step*s.opts.GyroSliderSensitivity))
		snap.Sliders[i] = uint8(s.sliders[i])
	}
}

func (s *Session) sendLoop(ctx context.Context) {
	nextLights := time.Now().Add(s.opts.LightRefresh)
	for {
		if s.opts.LightRefresh > 0 && time.Now().After(nextLights) {
			nextLights = time.Now().Add(s.opts.LightRefresh)
			s.refreshLightsFromSend(ctx)
		}
		cmd, ok := s.rumble.TryDequeue()
		if !ok {
			if !sleepCtx(ctx, sendIdle) {
				return
			}
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if err := s.writeRumble(cmd.Encode()); err != nil {
			s.logger.Debug("rumble write failed", "error", err)
		}
	}
}

// Rumble queues a vibration command.
func (s *Session) Rumble(c RumbleCommand) { s.rumble.Enqueue(c) }

// SetMotors queues rumble from a virtual pad's motor feedback; the stronger
// motor sets the amplitude.
func (s *Session) SetMotors(large, small uint8) {
	s.Rumble(RumbleCommand{
		LowFreq:   s.opts.RumbleLowFreq,
		HighFreq:  s.opts.RumbleHighFreq,
		Amplitude: float64(max(large, small)) / 255,
	})
}

// refreshLightsFromSend hands the LED write to the receive loop and waits
// for it, pausing rumble output meanwhile.
func (s *Session) refreshLightsFromSend(ctx context.Context) {
	if !s.State().Operational() {
		return
	}
	if err := s.RefreshLights(ctx); err != nil && ctx.Err() == nil {
		s.logger.Debug("player light refresh failed", "error", err)
	}
}

// RefreshLights sets the player LEDs for the current slot.
func (s *Session) RefreshLights(ctx context.Context) error {
	return s.exclusive(ctx, func(ctx context.Context) error {
		return s.setPlayerLights(ctx, s.Slot())
	})
}

// SetHomeLight switches the home button LED.
func (s *Session) SetHomeLight(ctx context.Context, on bool) error {
	if !s.Type().HasHomeLED() {
		return nil
	}
	pattern := homeLightOff
	if on {
		pattern = homeLightOn
	}
	return s.exclusive(ctx, func(ctx context.Context) error {
		_, err := s.subcommandRetry(ctx, subHomeLight, pattern...)
		return err
	})
}

// StartCapture begins collecting stick samples for recalibration.
func (s *Session) StartCapture() { s.capture.Start() }

// StopCapture ends a capture, replaces the stick centers with the sample
// medians and persists them as an override.
func (s *Session) StopCapture() (CaptureResult, error) {
	res, ok := s.capture.Stop()
	if !ok {
		return res, fmt.Errorf("%w: no samples captured", ErrNoData)
	}
	p := s.Profile()
	var o Override
	if s.store != nil {
		o, _ = s.store.Lookup(s.Key())
	}
	t := s.Type()
	if t.HasLeftStick() {
		left := res.Left
		o.LeftCenter = &left
	}
	if t.HasRightStick() {
		right := res.Right
		o.RightCenter = &right
	}
	o.Apply(&p)
	s.setProfile(p)
	s.emit(Event{Kind: EventCalibrated, Session: s, State: s.State(), Prev: s.State()})
	if s.store != nil {
		if err := s.store.Update(s.Key(), o); err != nil {
			return res, fmt.Errorf("saving calibration: %w", err)
		}
	}
	s.logger.Info("stick calibration captured", "samples", res.Samples, "left", res.Left, "right", res.Right)
	return res, nil
}

// PowerOff turns the controller off (Bluetooth) and drops the session.
func (s *Session) PowerOff(ctx context.Context) error {
	err := s.exclusive(ctx, func(context.Context) error {
		_, err := s.subcommand(subHCIState, []byte{0x00}, false)
		return err
	})
	s.setState(StateDropped, nil)
	s.Stop()
	return err
}

// Detach restores simple HID mode, turns the LEDs off and closes the
// handle. Errors are ignored; the device may already be gone. The loops
// must have been stopped.
func (s *Session) Detach() {
	s.Stop()
	if s.dev.Valid() && s.State() != StateDropped {
		_, _ = s.subcommand(subReportMode, []byte{ReportSimpleHID}, false)
		_, _ = s.subcommand(subPlayerLights, []byte{0x00}, false)
		if s.Type().HasHomeLED() {
			_, _ = s.subcommand(subHomeLight, homeLightOff, false)
		}
	}
	_ = s.dev.Close()
	s.setState(StateNotAttached, nil)
}
