// Copyright 2026 The AERIS Payload Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// avaspecctl is an interactive console for the AvaSpec-Mini2048CL driver.
// It runs against real hardware over USB or against the built-in virtual
// instrument, and can forward measurements to the OBC serial link and the
// radio downlink.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	avaspec "github.com/aeris-payload/go-avaspec"
	"github.com/aeris-payload/go-avaspec/acquire"
	"github.com/aeris-payload/go-avaspec/internal/simulator"
	"github.com/aeris-payload/go-avaspec/obc"
	"github.com/aeris-payload/go-avaspec/radio"
	"github.com/aeris-payload/go-avaspec/transport/usb"
)

type config struct {
	obcPort   string
	radioPort string
	interval  time.Duration
	sim       bool
	debug     bool
}

// Package-level flag variables
var (
	flagSim       bool
	flagDebug     bool
	flagOBCPort   string
	flagRadioPort string
	flagInterval  time.Duration
)

func init() {
	flag.BoolVar(&flagSim, "sim", false, "Use the built-in virtual instrument instead of USB hardware")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.StringVar(&flagOBCPort, "obc", "", "Serial port for the OBC downlink (disabled if empty)")
	flag.StringVar(&flagRadioPort, "radio", "", "SPI port for the radio downlink (disabled if empty)")
	flag.DurationVar(&flagInterval, "interval", 5*time.Second, "Default interval between automatic acquisition cycles")
}

func parseConfig() *config {
	cfg := &config{
		sim:       flagSim,
		debug:     flagDebug,
		obcPort:   flagOBCPort,
		radioPort: flagRadioPort,
		interval:  flagInterval,
	}

	if cfg.debug {
		avaspec.SetDebugEnabled(true)
	}

	return cfg
}

// console owns the device and the optional downlinks for one session.
type console struct {
	device      *avaspec.Device
	bridge      *obc.Bridge
	downlink    *radio.Link
	autoSession *acquire.Session
	autoDone    chan struct{}
	interval    time.Duration
}

func connectToDevice(cfg *config) (*avaspec.Device, error) {
	factory := func() (avaspec.Transport, error) {
		if cfg.sim {
			return simulator.New(), nil
		}
		transport, err := usb.New()
		if err != nil {
			return nil, fmt.Errorf("failed to open USB transport: %w", err)
		}
		return transport, nil
	}

	device, err := avaspec.ConnectDevice(
		avaspec.WithTransportFactory(factory),
		avaspec.WithDeviceOptions(avaspec.WithTimeoutHandler(func(ev avaspec.TimeoutEvent) {
			_, _ = fmt.Printf("timeout: command %02X in state %s after %v\n", ev.CommandID, ev.State, ev.Budget)
		})),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to spectrometer: %w", err)
	}
	return device, nil
}

func (c *console) forward(m *avaspec.Measurement) {
	avaspec.LogMeasurement(m)
	if c.bridge != nil {
		if err := c.bridge.SendMeasurement(m); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "OBC forward failed: %v\n", err)
		}
	}
	if c.downlink != nil {
		if err := c.downlink.SendMeasurement(m); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "radio forward failed: %v\n", err)
		}
	}
}

// summarize prints a one-line digest of a record: peak pixel and intensity.
func summarize(m *avaspec.Measurement) string {
	pixels := m.Pixels()
	peakIdx, peak := 0, uint16(0)
	for i, v := range pixels {
		if v > peak {
			peakIdx, peak = i, v
		}
	}
	return fmt.Sprintf("record: %d pixels, peak %d at pixel %d", len(pixels), peak, peakIdx)
}

func (c *console) cmdIdentify(ctx context.Context) {
	ident, err := c.device.IdentifyContext(ctx)
	if err != nil {
		_, _ = fmt.Printf("identify failed: %v\n", err)
		return
	}
	_, _ = fmt.Printf("instrument: %s\n", ident)
}

func (c *console) cmdMeasure(ctx context.Context) {
	if c.autoSession != nil {
		_, _ = fmt.Println("automatic acquisition is running; stop it first")
		return
	}

	if err := c.device.PrepareContext(ctx, avaspec.DefaultMeasurementConfig()); err != nil {
		_, _ = fmt.Printf("prepare failed: %v\n", err)
		return
	}
	record, err := c.device.StartAndAcquireContext(ctx)
	if err != nil {
		_, _ = fmt.Printf("measurement failed: %v\n", err)
		return
	}
	_, _ = fmt.Println(summarize(record))
	c.forward(record)
}

func (c *console) cmdAuto(ctx context.Context, args []string) {
	if c.autoSession != nil {
		_, _ = fmt.Println("automatic acquisition already running")
		return
	}

	interval := c.interval
	if len(args) > 0 {
		seconds, err := strconv.Atoi(args[0])
		if err != nil || seconds < 1 {
			_, _ = fmt.Printf("invalid interval %q, want seconds >= 1\n", args[0])
			return
		}
		interval = time.Duration(seconds) * time.Second
	}

	sessionConfig := acquire.DefaultConfig()
	sessionConfig.Interval = interval
	session := acquire.NewSession(c.device, sessionConfig)
	session.OnMeasurement = func(m *avaspec.Measurement) error {
		_, _ = fmt.Println(summarize(m))
		c.forward(m)
		return nil
	}
	session.OnCycleError = func(err error) {
		_, _ = fmt.Fprintf(os.Stderr, "cycle failed: %v\n", err)
	}

	c.autoSession = session
	c.autoDone = make(chan struct{})
	go func() {
		defer close(c.autoDone)
		if err := session.Start(ctx); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "acquisition session ended: %v\n", err)
		}
	}()
	_, _ = fmt.Printf("automatic acquisition started, one record every %v\n", interval)
}

func (c *console) cmdStop(ctx context.Context) {
	if c.autoSession != nil {
		_ = c.autoSession.Close()
		select {
		case <-c.autoDone:
		case <-time.After(2 * c.interval):
		}
		c.autoSession = nil
		c.autoDone = nil
		_, _ = fmt.Println("automatic acquisition stopped")
	}

	if err := c.device.StopContext(ctx); err != nil {
		_, _ = fmt.Printf("stop failed: %v\n", err)
	}
}

func (c *console) cmdStatus() {
	_, _ = fmt.Printf("state: %s\n", c.device.State())
	if ident := c.device.Identification(); ident != nil {
		_, _ = fmt.Printf("instrument: %s\n", ident)
	}
	if c.autoSession != nil {
		_, _ = fmt.Printf("auto: running, %d cycles", c.autoSession.Cycles())
		if last := c.autoSession.LastMeasurementTime(); !last.IsZero() {
			_, _ = fmt.Printf(", last record %s ago", time.Since(last).Round(time.Second))
		}
		_, _ = fmt.Println()
	} else {
		_, _ = fmt.Println("auto: stopped")
	}
}

func printHelp() {
	_, _ = fmt.Print(`commands:
  help            show this help
  identify        read the instrument identification
  measure         run one acquisition cycle
  auto [seconds]  acquire continuously at the given interval
  stop            stop automatic acquisition and idle the instrument
  status          show driver and session state
  quit            exit
`)
}

func (c *console) dispatch(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	switch fields[0] {
	case "help":
		printHelp()
	case "identify":
		c.cmdIdentify(ctx)
	case "measure":
		c.cmdMeasure(ctx)
	case "auto":
		c.cmdAuto(ctx, fields[1:])
	case "stop":
		c.cmdStop(ctx)
	case "status":
		c.cmdStatus()
	case "quit", "exit":
		return false
	default:
		_, _ = fmt.Printf("unknown command %q, try help\n", fields[0])
	}
	return true
}

func run(ctx context.Context, cfg *config) error {
	if logPath, err := avaspec.InitSessionLog(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to create session log: %v\n", err)
	} else {
		_, _ = fmt.Printf("session log: %s\n", logPath)
		defer func() {
			if err := avaspec.CloseSessionLog(); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "Failed to close session log: %v\n", err)
			}
		}()
	}

	device, err := connectToDevice(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := device.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close device: %v\n", err)
		}
	}()

	c := &console{device: device, interval: cfg.interval}

	if cfg.obcPort != "" {
		bridge, err := obc.Open(obc.DefaultConfig(cfg.obcPort))
		if err != nil {
			return err
		}
		defer func() { _ = bridge.Close() }()
		c.bridge = bridge
	}
	if cfg.radioPort != "" {
		link, err := radio.New(cfg.radioPort)
		if err != nil {
			return err
		}
		defer func() { _ = link.Close() }()
		c.downlink = link
	}

	if ident := device.Identification(); ident != nil {
		_, _ = fmt.Printf("connected: %s\n", ident)
	}
	_, _ = fmt.Println("ready, try help")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		_, _ = fmt.Print("> ")
		select {
		case <-ctx.Done():
			c.cmdStop(context.Background())
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				c.cmdStop(context.Background())
				return nil
			}
			if !c.dispatch(ctx, line) {
				c.cmdStop(context.Background())
				return nil
			}
		}
	}
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg := parseConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
