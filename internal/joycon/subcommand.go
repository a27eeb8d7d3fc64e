package joycon

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/Alia5/joybridge/internal/hidio"
)

// Output report IDs.
const (
	outSubcommand byte = 0x01
	outRumble     byte = 0x10
	outUSB        byte = 0x80
)

// Subcommand opcodes.
const (
	subDeviceInfo   byte = 0x02
	subReportMode   byte = 0x03
	subHCIState     byte = 0x06
	subLowPower     byte = 0x08
	subSPIRead      byte = 0x10
	subPlayerLights byte = 0x30
	subHomeLight    byte = 0x38
	subIMUEnable    byte = 0x40
	subIMUSettings  byte = 0x41
	subVibration    byte = 0x48
)

// USB grip commands.
const (
	usbStatus    byte = 0x01
	usbHandshake byte = 0x02
	usbBaud3M    byte = 0x03
	usbHIDOnly   byte = 0x04
)

const (
	btPacketLen   = 49
	usbPacketLen  = 64
	replyReads    = 16
	subRetries    = 3
	spiRetries    = 5
	spiHeaderLen  = 20
	replyAckIndex = 13
	replyIDIndex  = 14
	replyDataAt   = 15
)

// packetLen is the output report size for the transport.
func (s *Session) packetLen() int {
	if s.usb {
		return usbPacketLen
	}
	return btPacketLen
}

func (s *Session) nextCounter() byte {
	return byte(s.counter.Add(1)-1) & 0x0F
}

func (s *Session) buildSubcommand(sub byte, args []byte) []byte {
	buf := make([]byte, s.packetLen())
	buf[0] = outSubcommand
	buf[1] = s.nextCounter()
	copy(buf[2:10], RumbleStop[:])
	buf[10] = sub
	copy(buf[11:], args)
	return buf
}

func (s *Session) buildRumble(block [8]byte) []byte {
	buf := make([]byte, s.packetLen())
	buf[0] = outRumble
	buf[1] = s.nextCounter()
	copy(buf[2:10], block[:])
	return buf
}

func (s *Session) write(buf []byte) error {
	s.raw.Log(false, buf)
	if _, err := s.dev.Write(buf); err != nil {
		return err
	}
	return nil
}

// subcommand sends one subcommand and, when wantReply is set, waits for the
// 0x21 reply that echoes the opcode. The I/O lock is held for the whole
// exchange so rumble writes cannot interleave.
func (s *Session) subcommand(sub byte, args []byte, wantReply bool) ([]byte, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if err := s.write(s.buildSubcommand(sub, args)); err != nil {
		return nil, fmt.Errorf("%w: 0x%02x write: %w", ErrSubcommand, sub, err)
	}
	if !wantReply {
		return nil, nil
	}
	buf := make([]byte, usbPacketLen)
	for range replyReads {
		n, err := s.dev.Read(buf, s.opts.ReadTimeout)
		if errors.Is(err, hidio.ErrTimeout) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: 0x%02x read: %w", ErrSubcommand, sub, err)
		}
		s.raw.Log(true, buf[:n])
		if n > replyIDIndex && buf[0] == ReportSubcommandReply && buf[replyIDIndex] == sub {
			if buf[replyAckIndex]&0x80 == 0 {
				return nil, fmt.Errorf("%w: 0x%02x nack", ErrSubcommand, sub)
			}
			return append([]byte(nil), buf[:n]...), nil
		}
	}
	return nil, fmt.Errorf("%w: 0x%02x no reply", ErrSubcommand, sub)
}

// subcommandRetry retries failed exchanges a fixed number of times.
func (s *Session) subcommandRetry(ctx context.Context, sub byte, args ...byte) ([]byte, error) {
	var err error
	for attempt := range subRetries {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		var reply []byte
		reply, err = s.subcommand(sub, args, true)
		if err == nil {
			return reply, nil
		}
		s.logger.Debug("subcommand retry", "sub", fmt.Sprintf("0x%02x", sub), "attempt", attempt+1, "error", err)
	}
	return nil, err
}

// usbCommand talks to the charging grip / USB bridge. Replies start with
// 0x81 and echo the command.
func (s *Session) usbCommand(cmd byte, wantReply bool) ([]byte, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if err := s.write([]byte{outUSB, cmd}); err != nil {
		return nil, fmt.Errorf("usb command 0x%02x: %w", cmd, err)
	}
	if !wantReply {
		return nil, nil
	}
	buf := make([]byte, usbPacketLen)
	for range replyReads {
		n, err := s.dev.Read(buf, s.opts.ReadTimeout)
		if errors.Is(err, hidio.ErrTimeout) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("usb command 0x%02x: %w", cmd, err)
		}
		s.raw.Log(true, buf[:n])
		if n > 1 && buf[0] == ReportUSBReply && buf[1] == cmd {
			return append([]byte(nil), buf[:n]...), nil
		}
	}
	return nil, fmt.Errorf("usb command 0x%02x: no reply", cmd)
}

// readSPI reads n bytes of flash at addr, verifying the echoed address.
func (s *Session) readSPI(ctx context.Context, addr uint32, n byte) ([]byte, error) {
	args := make([]byte, 5)
	binary.LittleEndian.PutUint32(args, addr)
	args[4] = n
	for range spiRetries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reply, err := s.subcommand(subSPIRead, args, true)
		if err != nil {
			continue
		}
		if len(reply) < spiHeaderLen+int(n) {
			continue
		}
		if binary.LittleEndian.Uint32(reply[replyDataAt:]) != addr || reply[19] != n {
			continue
		}
		return append([]byte(nil), reply[spiHeaderLen:spiHeaderLen+int(n)]...), nil
	}
	return nil, fmt.Errorf("%w: spi read 0x%04x", ErrSubcommand, addr)
}

// playerLights returns the LED pattern for a slot: solid for the first
// four slots, flashing for the next four.
func playerLights(slot int) byte {
	switch {
	case slot < 0:
		return 0
	case slot < 4:
		return 1 << slot
	case slot < 8:
		return 1 << (slot - 4) << 4
	}
	return 0x0F
}

var (
	homeLightBlink = []byte{0x28, 0x20, 0xF2, 0xF0, 0xF0}
	homeLightOn    = []byte{0x0F, 0xF0, 0x00}
	homeLightOff   = []byte{0x00}
)

func (s *Session) setPlayerLights(ctx context.Context, slot int) error {
	_, err := s.subcommandRetry(ctx, subPlayerLights, playerLights(slot))
	return err
}

func (s *Session) writeRumble(block [8]byte) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	return s.write(s.buildRumble(block))
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
