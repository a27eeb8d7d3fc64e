package dsu

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/Alia5/joybridge/internal/log"
)

// PadSource reports the current state of a slot for port info replies.
type PadSource interface {
	SlotInfo(slot uint8) (SlotInfo, bool)
}

// Config configures the motion server.
type Config struct {
	Enabled   bool          `help:"Serve motion data over the cemuhook DSU protocol" default:"true" env:"JOYBRIDGE_DSU_ENABLED"`
	Addr      string        `help:"DSU server listen address" default:"127.0.0.1:26760" env:"JOYBRIDGE_DSU_ADDR"`
	Expiry    time.Duration `help:"Drop pad data subscriptions not renewed within this time" default:"5s" env:"JOYBRIDGE_DSU_EXPIRY"`
	QueueSize int           `help:"Outbound datagram queue length" default:"256" env:"JOYBRIDGE_DSU_QUEUE_SIZE"`
}

// subscription holds the last request time per scope of one client.
type subscription struct {
	addr  net.Addr
	all   time.Time
	slots map[uint8]time.Time
	macs  map[string]time.Time
}

func (c *subscription) wants(info SlotInfo, now time.Time, expiry time.Duration) bool {
	live := func(t time.Time) bool { return !t.IsZero() && now.Sub(t) < expiry }
	if live(c.all) || live(c.slots[info.Slot]) {
		return true
	}
	return len(info.MAC) > 0 && live(c.macs[info.MAC.String()])
}

// prune drops expired scopes and reports whether anything is left.
func (c *subscription) prune(now time.Time, expiry time.Duration) bool {
	if !c.all.IsZero() && now.Sub(c.all) >= expiry {
		c.all = time.Time{}
	}
	for k, t := range c.slots {
		if now.Sub(t) >= expiry {
			delete(c.slots, k)
		}
	}
	for k, t := range c.macs {
		if now.Sub(t) >= expiry {
			delete(c.macs, k)
		}
	}
	return !c.all.IsZero() || len(c.slots) > 0 || len(c.macs) > 0
}

// Server answers DSU requests and streams pad data to subscribers.
type Server struct {
	config Config
	source PadSource
	logger *slog.Logger
	id     uint32
	now    func() time.Time

	conn  net.PacketConn
	queue *sendQueue

	mu       sync.Mutex
	clients  map[string]*subscription
	counters map[uint8]uint32
	// stamps holds the last motion timestamp sent per slot.
	stamps map[uint8]uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server. Start binds the socket.
func New(config Config, source PadSource, logger *slog.Logger) *Server {
	if config.Expiry <= 0 {
		config.Expiry = 5 * time.Second
	}
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	return &Server{
		config:   config,
		source:   source,
		logger:   logger,
		id:       rand.Uint32(),
		now:      time.Now,
		queue:    newSendQueue(config.QueueSize),
		clients:  make(map[string]*subscription),
		counters: make(map[uint8]uint32),
		stamps:   make(map[uint8]uint64),
	}
}

// Start binds the UDP socket and launches the receive, send and expiry
// tasks.
func (s *Server) Start() error {
	conn, err := net.ListenPacket("udp", s.config.Addr)
	if err != nil {
		return err
	}
	s.conn = conn
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.logger.Info("DSU server listening", "addr", conn.LocalAddr().String())

	s.wg.Add(3)
	go func() { defer s.wg.Done(); s.receive() }()
	go func() { defer s.wg.Done(); s.send(ctx) }()
	go func() { defer s.wg.Done(); s.expire(ctx) }()
	return nil
}

// Addr returns the bound address, nil before Start.
func (s *Server) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Close stops all tasks and closes the socket.
func (s *Server) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.wg.Wait()
}

func (s *Server) receive() {
	buf := make([]byte, 1024)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.logger.Info("DSU server stopped")
				return
			}
			s.logger.Debug("DSU read error", "error", err)
			continue
		}
		s.handle(buf[:n], addr)
	}
}

func (s *Server) send(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.queue.ready:
		}
		for _, d := range s.queue.drain() {
			if _, err := s.conn.WriteTo(d.data, d.to); err != nil {
				s.logger.Debug("DSU write failed", "to", d.to.String(), "error", err)
			}
		}
	}
}

func (s *Server) expire(ctx context.Context) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.pruneClients()
		}
	}
}

func (s *Server) pruneClients() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, c := range s.clients {
		if !c.prune(now, s.config.Expiry) {
			s.logger.Debug("DSU client expired", "client", k)
			delete(s.clients, k)
		}
	}
}

func (s *Server) reply(to net.Addr, msgType uint32, payload []byte) {
	s.queue.push(datagram{to: to, data: encode(s.id, msgType, payload)})
}

// handle processes one datagram. Invalid input is dropped.
func (s *Server) handle(b []byte, from net.Addr) {
	msgType, payload, err := decode(b)
	if err != nil {
		s.logger.Log(context.Background(), log.LevelTrace, "DSU datagram dropped", "from", from.String(), "error", err)
		return
	}
	switch msgType {
	case MsgVersion:
		s.reply(from, MsgVersion, versionReply())
	case MsgPortInfo:
		s.handlePortInfo(payload, from)
	case MsgPadData:
		s.handlePadData(payload, from)
	}
}

func (s *Server) slotInfo(slot uint8) SlotInfo {
	if s.source != nil {
		if info, ok := s.source.SlotInfo(slot); ok {
			return info
		}
	}
	return SlotInfo{Slot: slot}
}

func (s *Server) handlePortInfo(p []byte, from net.Addr) {
	if len(p) < 4 {
		return
	}
	count := int(int32(le.Uint32(p)))
	if count < 0 || count > MaxPorts || count > len(p)-4 {
		return
	}
	for _, slot := range p[4 : 4+count] {
		s.reply(from, MsgPortInfo, portInfo(s.slotInfo(slot)))
	}
}

func (s *Server) handlePadData(p []byte, from net.Addr) {
	if len(p) < 8 {
		return
	}
	flags, slot := p[0], p[1]
	mac := net.HardwareAddr(slices.Clone(p[2:8]))
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[from.String()]
	if !ok {
		c = &subscription{addr: from, slots: make(map[uint8]time.Time), macs: make(map[string]time.Time)}
		s.clients[from.String()] = c
		s.logger.Debug("DSU client subscribed", "client", from.String(), "flags", flags)
	}
	if flags == 0 {
		c.all = now
	}
	if flags&1 != 0 {
		c.slots[slot] = now
	}
	if flags&2 != 0 {
		c.macs[mac.String()] = now
	}
}

// Subscribers returns the number of clients with a live subscription.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Publish queues one PadData datagram per motion sample of f for every
// client subscribed to its slot. A frame without motion still produces one
// datagram carrying the slot's previous motion timestamp.
func (s *Server) Publish(f Frame) {
	now := s.now()
	s.mu.Lock()
	var targets []net.Addr
	for _, c := range s.clients {
		if c.wants(f.Info, now, s.config.Expiry) {
			targets = append(targets, c.addr)
		}
	}
	if len(targets) == 0 {
		s.mu.Unlock()
		return
	}
	motion := f.Motion
	if len(motion) == 0 {
		// Keep the slot on its own timeline; consumers diff timestamps.
		motion = []Motion{{Timestamp: s.stamps[f.Info.Slot]}}
	}
	s.stamps[f.Info.Slot] = motion[len(motion)-1].Timestamp
	first := s.counters[f.Info.Slot]
	s.counters[f.Info.Slot] = first + uint32(len(motion))
	s.mu.Unlock()

	for i, m := range motion {
		data := encode(s.id, MsgPadData, padData(&f, first+uint32(i), m))
		for _, to := range targets {
			s.queue.push(datagram{to: to, data: data})
		}
	}
}
