package hidio

import (
	"context"
	"log/slog"
	"time"
)

type EventKind int

const (
	Arrived EventKind = iota
	Departed
)

func (k EventKind) String() string {
	if k == Arrived {
		return "arrived"
	}
	return "departed"
}

// Event is a hotplug notification.
type Event struct {
	Kind EventKind
	Info Info
}

// Monitor turns periodic enumeration into arrival and departure events.
type Monitor struct {
	enum     Enumerator
	interval time.Duration
	logger   *slog.Logger
	known    map[string]Info
}

func NewMonitor(enum Enumerator, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	return &Monitor{
		enum:     enum,
		interval: interval,
		logger:   logger,
		known:    make(map[string]Info),
	}
}

// Run polls until ctx is done. Events are delivered in order on out, which
// is closed when Run returns. Devices still known at shutdown are reported
// as departed.
func (m *Monitor) Run(ctx context.Context, out chan<- Event) {
	defer close(out)
	m.poll(ctx, out)

	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			for path, info := range m.known {
				delete(m.known, path)
				select {
				case out <- Event{Kind: Departed, Info: info}:
				default:
				}
			}
			return
		case <-t.C:
			m.poll(ctx, out)
		}
	}
}

func (m *Monitor) poll(ctx context.Context, out chan<- Event) {
	infos, err := m.enum.Enumerate()
	if err != nil {
		m.logger.Warn("hid enumeration failed", "error", err)
		return
	}
	seen := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		seen[info.Path] = struct{}{}
		if _, ok := m.known[info.Path]; ok {
			continue
		}
		m.known[info.Path] = info
		m.logger.Debug("hid device arrived", "path", info.Path, "pid", info.ProductID, "serial", info.Serial)
		if !send(ctx, out, Event{Kind: Arrived, Info: info}) {
			return
		}
	}
	for path, info := range m.known {
		if _, ok := seen[path]; ok {
			continue
		}
		delete(m.known, path)
		m.logger.Debug("hid device departed", "path", path)
		if !send(ctx, out, Event{Kind: Departed, Info: info}) {
			return
		}
	}
}

func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
