package joycon

import (
	"context"
	"fmt"
	"net"
)

// SPI flash layout.
const (
	spiFactoryIMU        uint32 = 0x6020
	spiFactoryLeftStick  uint32 = 0x603D
	spiFactoryRightStick uint32 = 0x6046
	spiLeftStickParams   uint32 = 0x6086
	spiRightStickParams  uint32 = 0x6098
	spiUserLeftStick     uint32 = 0x8010
	spiUserRightStick    uint32 = 0x801B
	spiUserIMU           uint32 = 0x8026

	stickBlockLen  = 9
	paramsBlockLen = 18
	imuBlockLen    = 24
	userMagicLen   = 2
)

var userMagic = [2]byte{0xB2, 0xA1}

func hasUserMagic(b []byte) bool {
	return len(b) >= userMagicLen && b[0] == userMagic[0] && b[1] == userMagic[1]
}

// Attach runs the initialization handshake. A communication fault triggers
// one HCI reset and one more attempt before the session reports
// StateAttachError.
func (s *Session) Attach(ctx context.Context) error {
	if st := s.State(); st != StateNotAttached {
		return fmt.Errorf("%w: session is %s", ErrAttach, st)
	}
	err := s.handshake(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("attach failed, resetting HCI", "error", err)
		_, _ = s.subcommand(subHCIState, []byte{0x01}, false)
		s.clock.Reset()
		err = s.handshake(ctx)
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrAttach, err)
		s.setState(StateAttachError, err)
		return err
	}
	s.setState(StateAttached, nil)
	s.logger.Info("controller attached",
		"type", s.Type(), "mac", s.MAC(), "usb", s.usb, "slot", s.Slot(),
		"defaultCalibration", s.Profile().UsedDefaultValues)
	return nil
}

func (s *Session) handshake(ctx context.Context) error {
	if s.usb {
		if err := s.usbHandshake(ctx, true); err != nil {
			return err
		}
	}
	steps := []struct {
		sub  byte
		args []byte
	}{
		{subReportMode, []byte{ReportSimpleHID}},
		{subLowPower, []byte{0x00}},
	}
	for _, st := range steps {
		if _, err := s.subcommandRetry(ctx, st.sub, st.args...); err != nil {
			return err
		}
	}

	info, err := s.subcommandRetry(ctx, subDeviceInfo)
	if err != nil {
		return err
	}
	s.applyDeviceInfo(info)

	s.setProfile(s.loadCalibration(ctx))

	t := s.Type()
	if t.HasHomeLED() {
		if _, err := s.subcommandRetry(ctx, subHomeLight, homeLightBlink...); err != nil {
			return err
		}
	}
	if err := s.setPlayerLights(ctx, s.Slot()); err != nil {
		return err
	}
	if t.HasIMU() {
		if _, err := s.subcommandRetry(ctx, subIMUEnable, 0x01); err != nil {
			return err
		}
		// gyro 2000 dps, accel 8 g, 833 Hz gyro, 100 Hz accel filter
		if _, err := s.subcommandRetry(ctx, subIMUSettings, 0x03, 0x00, 0x00, 0x01); err != nil {
			return err
		}
	}
	if _, err := s.subcommandRetry(ctx, subVibration, 0x01); err != nil {
		return err
	}
	_, err = s.subcommandRetry(ctx, subReportMode, ReportFull)
	return err
}

// usbHandshake switches a wired controller to raw HID over the grip bridge.
func (s *Session) usbHandshake(ctx context.Context, full bool) error {
	if full {
		reply, err := s.usbCommand(usbStatus, true)
		if err != nil {
			return err
		}
		if len(reply) >= 10 {
			mac := make(net.HardwareAddr, 6)
			for i := range mac {
				mac[i] = reply[9-i]
			}
			s.setMAC(mac)
		}
	}
	if _, err := s.usbCommand(usbHandshake, true); err != nil {
		return err
	}
	if full {
		if _, err := s.usbCommand(usbBaud3M, true); err != nil {
			return err
		}
		if _, err := s.usbCommand(usbHandshake, true); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.usbCommand(usbHIDOnly, false)
	return err
}

// applyDeviceInfo reads firmware, type byte and MAC from a 0x02 reply. Retro
// controllers share product IDs with the Joy-Con, so the type byte wins for
// them.
func (s *Session) applyDeviceInfo(reply []byte) {
	data := reply[replyDataAt:]
	if len(data) < 10 {
		return
	}
	if t := typeFromDeviceInfo(data[2]); t != TypeUnknown && t != s.Type() {
		switch t {
		case TypeNES, TypeFamicomI, TypeFamicomII, TypeSNES, TypeN64:
			s.logger.Info("controller type overridden by device info", "from", s.Type(), "to", t)
			s.setType(t)
		}
	}
	s.setMAC(net.HardwareAddr(append([]byte(nil), data[4:10]...)))
	s.logger.Debug("device info", "firmware", fmt.Sprintf("%d.%d", data[0], data[1]), "mac", s.MAC())
}

// loadCalibration reads stick and IMU calibration from SPI. Failures fall
// back to defaults with a warning. Stored overrides are applied last.
func (s *Session) loadCalibration(ctx context.Context) Profile {
	p := DefaultProfile()
	p.UsedDefaultValues = false
	t := s.Type()

	if t.HasLeftStick() {
		if !s.readStick(ctx, Left, &p.Left) {
			p.UsedDefaultValues = true
		}
	}
	if t.HasRightStick() {
		if !s.readStick(ctx, Right, &p.Right) {
			p.UsedDefaultValues = true
		}
	}
	if t.HasIMU() {
		cal, ok := s.readIMU(ctx)
		p.IMU = cal
		if !ok {
			p.UsedDefaultValues = true
		}
	}

	// Key falls back to the MAC read by device info, matching StopCapture.
	if key := s.Key(); s.store != nil && key != "" {
		if o, ok := s.store.Lookup(key); ok {
			o.Apply(&p)
			s.logger.Debug("calibration override applied", "key", key)
		}
	}
	return p
}

func (s *Session) readStick(ctx context.Context, side Side, dst *StickCal) bool {
	userAddr, factoryAddr, paramsAddr := spiUserLeftStick, spiFactoryLeftStick, spiLeftStickParams
	if side == Right {
		userAddr, factoryAddr, paramsAddr = spiUserRightStick, spiFactoryRightStick, spiRightStickParams
	}

	ok := false
	if b, err := s.readSPI(ctx, userAddr, userMagicLen+stickBlockLen); err == nil && hasUserMagic(b) {
		dst.X, dst.Y, ok = DecodeStickBlock(b[userMagicLen:], side)
	}
	if !ok {
		b, err := s.readSPI(ctx, factoryAddr, stickBlockLen)
		if err != nil {
			s.logger.Warn("stick calibration unreadable, using defaults", "side", side, "error", err)
			return false
		}
		dst.X, dst.Y, ok = DecodeStickBlock(b, side)
		if !ok {
			s.logger.Warn("stick calibration empty, using defaults", "side", side)
			return false
		}
	}

	b, err := s.readSPI(ctx, paramsAddr, paramsBlockLen)
	if err != nil {
		s.logger.Warn("stick parameters unreadable, using defaults", "side", side, "error", err)
		return false
	}
	dz, rng, pok := DecodeStickParams(b)
	dst.Deadzone, dst.Range = dz, rng
	return pok
}

func (s *Session) readIMU(ctx context.Context) (IMUCal, bool) {
	var block []byte
	if b, err := s.readSPI(ctx, spiUserIMU, userMagicLen+imuBlockLen); err == nil && hasUserMagic(b) {
		block = b[userMagicLen:]
	} else {
		b, err := s.readSPI(ctx, spiFactoryIMU, imuBlockLen)
		if err != nil {
			s.logger.Warn("IMU calibration unreadable, using defaults", "error", err)
			return DefaultIMUCal(), false
		}
		block = b
	}
	cal, fallback := DecodeIMUBlock(block)
	if fallback {
		s.logger.Warn("IMU calibration has unset axes, using hardware defaults for them")
	}
	return cal, !fallback
}
