// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package thermode

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/thermal_stimulator/internal/config"
)

// Zones is the number of thermal contactors on the TCS probe.
const Zones = 5

// maxDurationMS is the longest stimulation duration the TCS accepts.
// Setting it this high prevents the safety time/temperature function from
// cutting off long stimulation blocks (manual §2.1.2 warns about automatic
// cutoff at high temperatures).
const maxDurationMS = 99999

// followRampSpeed is the hardware ramp speed used in follow mode, in
// degrees C/s. It must be high enough that the probe reaches each ~0.09 C
// micro-step well within one 100 ms update interval; the waveform shape is
// produced by the update sequence, not by this setting.
const followRampSpeed = 100.0

// SerialChannel drives the TCS II.1 over its ASCII serial protocol.
//
// Initialization sequence (matches the phs_lifespan MATLAB reference):
//  1. quiet          - suppress unsolicited temperature output
//  2. baseline       - neutral temperature for all zones
//  3. durations      - max duration to defeat the safety-timer cutoff
//  4. ramp speed     - fast tracking for follow mode
//  5. return speed   - fast tracking for follow mode
//  6. temperatures   - initial baseline targets
//  7. follow         - enter follow mode (probe ramps to each target)
type SerialChannel struct {
	port          io.ReadWriteCloser
	baseline      float64
	readTimeout   time.Duration
	nanMaxRetries int
	nanRetryDelay time.Duration
}

// NewSerial opens the serial port and runs the follow-mode init sequence.
// Any failure during init is a hardware fault; the port is closed before
// returning the error.
func NewSerial(cfg *config.Config) (*SerialChannel, error) {
	opts := serial.OpenOptions{
		PortName:              cfg.ComPort,
		BaudRate:              115200,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: uint(cfg.ReadTimeout),
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, &FaultError{Op: "open port", Err: err}
	}
	log.Printf("thermode: serial port opened on %s at %d baud", opts.PortName, opts.BaudRate)

	s := &SerialChannel{
		port:          port,
		baseline:      cfg.BaselineTemp,
		readTimeout:   time.Duration(cfg.ReadTimeout) * time.Millisecond,
		nanMaxRetries: cfg.NaNMaxRetries,
		nanRetryDelay: time.Duration(cfg.NaNRetryDelay) * time.Millisecond,
	}

	if err := s.initSequence(); err != nil {
		port.Close()
		return nil, err
	}
	log.Printf("thermode: follow mode active, baseline %.1f C", s.baseline)
	return s, nil
}

func (s *SerialChannel) initSequence() error {
	steps := []struct {
		op  string
		cmd string
	}{
		{"set quiet", "Q"},
		{"set baseline", fmt.Sprintf("B%03d", tenths(s.baseline))},
		{"set durations", fmt.Sprintf("D%05d", maxDurationMS)},
		{"set ramp speed", fmt.Sprintf("V%04d", tenths(followRampSpeed))},
		{"set return speed", fmt.Sprintf("R%04d", tenths(followRampSpeed))},
		{"set temperatures", setCommand(baselineTargets(s.baseline))},
		{"set follow", "F"},
	}
	for _, step := range steps {
		if err := s.write(step.cmd); err != nil {
			return &FaultError{Op: step.op, Err: err}
		}
	}
	return nil
}

// SetZoneTemperatures commands target temperatures for all 5 zones.
// In quiet follow mode the device does not acknowledge; a write failure is
// a hardware fault.
func (s *SerialChannel) SetZoneTemperatures(temps []float64) error {
	if len(temps) != Zones {
		return fmt.Errorf("thermode: expected %d zone temperatures, got %d", Zones, len(temps))
	}
	if err := s.write(setCommand(temps)); err != nil {
		return &FaultError{Op: "set temperatures", Err: err}
	}
	return nil
}

// ReadZoneTemperatures polls the probe for the sensed zone temperatures.
//
// The device occasionally reports unreadable zones; those parse as NaN and
// the read is retried up to the configured retry count. The last reading is
// returned even if NaN values remain, so a flaky sensor degrades QC instead
// of killing the block. A timeout or malformed reply is a hardware fault.
func (s *SerialChannel) ReadZoneTemperatures() ([]float64, error) {
	var temps []float64
	for attempt := 0; attempt < s.nanMaxRetries; attempt++ {
		if err := s.write("E"); err != nil {
			return nil, &FaultError{Op: "read temperatures", Err: err}
		}
		reply, err := s.readLine()
		if err != nil {
			return nil, &FaultError{Op: "read temperatures", Err: err}
		}
		temps, err = parseTemperatures(reply)
		if err != nil {
			return nil, &FaultError{Op: "read temperatures", Err: err}
		}
		if !anyNaN(temps) {
			return temps, nil
		}
		if attempt < s.nanMaxRetries-1 {
			time.Sleep(s.nanRetryDelay)
		}
	}
	log.Printf("thermode: NaN readings persisted after %d attempts", s.nanMaxRetries)
	return temps, nil
}

// ReturnToBaseline commands every zone back to the neutral temperature.
func (s *SerialChannel) ReturnToBaseline() error {
	return s.SetZoneTemperatures(baselineTargets(s.baseline))
}

// Close aborts stimulation, returns to baseline, and closes the port.
func (s *SerialChannel) Close() error {
	if err := s.write("A"); err != nil {
		log.Printf("thermode: abort command failed on close: %v", err)
	}
	if err := s.ReturnToBaseline(); err != nil {
		log.Printf("thermode: return to baseline failed on close: %v", err)
	}
	return s.port.Close()
}

func (s *SerialChannel) write(cmd string) error {
	_, err := s.port.Write([]byte(cmd + "\r"))
	return err
}

// readLine accumulates bytes until '\r' or the read timeout elapses.
func (s *SerialChannel) readLine() (string, error) {
	deadline := time.Now().Add(s.readTimeout)
	var buf []byte
	tmp := make([]byte, 64)
	for {
		n, err := s.port.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			if i := bytes.IndexByte(buf, '\r'); i >= 0 {
				return string(buf[:i]), nil
			}
		}
		if err != nil && err != io.EOF {
			return "", err
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("timeout after %v (got %d bytes)", s.readTimeout, len(buf))
		}
	}
}

// setCommand builds the follow-mode target command: 'C' followed by five
// 3-digit temperatures in tenths of a degree, e.g. C350350350350350.
func setCommand(temps []float64) string {
	var b strings.Builder
	b.WriteByte('C')
	for _, t := range temps {
		fmt.Fprintf(&b, "%03d", tenths(t))
	}
	return b.String()
}

// parseTemperatures decodes a reply of five signed 4-character groups in
// tenths, e.g. "+350+348+351+349+350". Unreadable groups ("+999" or
// non-numeric) decode as NaN.
func parseTemperatures(reply string) ([]float64, error) {
	reply = strings.TrimSpace(reply)
	if len(reply) != Zones*4 {
		return nil, fmt.Errorf("malformed temperature reply %q", reply)
	}
	temps := make([]float64, Zones)
	for z := 0; z < Zones; z++ {
		group := reply[z*4 : z*4+4]
		if group[0] != '+' && group[0] != '-' {
			return nil, fmt.Errorf("malformed temperature group %q in reply %q", group, reply)
		}
		v, err := strconv.Atoi(group)
		if err != nil || v == 999 || v == -999 {
			temps[z] = math.NaN()
			continue
		}
		temps[z] = float64(v) / 10.0
	}
	return temps, nil
}

func baselineTargets(baseline float64) []float64 {
	temps := make([]float64, Zones)
	for i := range temps {
		temps[i] = baseline
	}
	return temps
}

func tenths(t float64) int {
	return int(math.Round(t * 10))
}

func anyNaN(vals []float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
