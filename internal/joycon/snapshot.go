package joycon

import (
	"time"

	"github.com/Alia5/joybridge/internal/ahrs"
)

// MotionSample is one converted IMU sample.
type MotionSample struct {
	// Timestamp is the position on the session's motion timeline.
	Timestamp time.Duration
	Accel     [3]float64 // g
	Gyro      [3]float64 // deg/s
}

// Stick is a calibrated stick position in [-1, 1], positive Y up.
type Stick struct {
	X, Y float64
}

// Snapshot is the immutable state published after each input report.
type Snapshot struct {
	Seq      uint64
	Time     time.Time
	Buttons  Buttons
	Previous Buttons
	// Down and Up hold the buttons pressed or released in this report.
	Down Buttons
	Up   Buttons
	// DownSince is the press time of each held button.
	DownSince [NumButtons]time.Time

	Left  Stick
	Right Stick

	Battery  uint8
	Charging bool

	Motion      []MotionSample
	Orientation ahrs.Angles
	// Sliders are the integrated gyro trigger values for ZL and ZR.
	Sliders   [2]uint8
	Delta     time.Duration
	Quat      ahrs.Quaternion
	HasMotion bool
}

// Pressed reports whether b went down in this report.
func (s *Snapshot) Pressed(b Button) bool { return s.Down.Has(b) }

// Released reports whether b went up in this report.
func (s *Snapshot) Released(b Button) bool { return s.Up.Has(b) }

// HeldFor is how long b has been held at the time of the snapshot.
func (s *Snapshot) HeldFor(b Button) time.Duration {
	if !s.Buttons.Has(b) || s.DownSince[b].IsZero() {
		return 0
	}
	return s.Time.Sub(s.DownSince[b])
}

// EventKind classifies session events.
type EventKind int

const (
	EventState EventKind = iota
	EventCalibrated
)

// Event is delivered on the manager's ordered event channel.
type Event struct {
	Kind    EventKind
	Session *Session
	State   State
	Prev    State
	Err     error
}

// Override holds user calibration that replaces the SPI values.
type Override struct {
	LeftCenter    *StickRaw   `yaml:"leftCenter,omitempty"`
	RightCenter   *StickRaw   `yaml:"rightCenter,omitempty"`
	LeftDeadzone  *uint16     `yaml:"leftDeadzone,omitempty"`
	RightDeadzone *uint16     `yaml:"rightDeadzone,omitempty"`
	AntiDeadzone  *[2]float64 `yaml:"antiDeadzone,omitempty"`
}

// OverrideStore persists Overrides keyed by controller serial.
type OverrideStore interface {
	Lookup(key string) (Override, bool)
	Update(key string, o Override) error
}

// Apply writes the override into p.
func (o Override) Apply(p *Profile) {
	if o.LeftCenter != nil {
		p.Left.X.Center, p.Left.Y.Center = o.LeftCenter.X, o.LeftCenter.Y
	}
	if o.RightCenter != nil {
		p.Right.X.Center, p.Right.Y.Center = o.RightCenter.X, o.RightCenter.Y
	}
	if o.LeftDeadzone != nil {
		p.Left.Deadzone = *o.LeftDeadzone
	}
	if o.RightDeadzone != nil {
		p.Right.Deadzone = *o.RightDeadzone
	}
	if o.AntiDeadzone != nil {
		p.Left.AntiDeadzone = *o.AntiDeadzone
		p.Right.AntiDeadzone = *o.AntiDeadzone
	}
}
