// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/thermal_stimulator/internal/config"
	"github.com/relabs-tech/thermal_stimulator/internal/qc"
)

// DisplayData holds the latest telemetry for the scanner-room OLED
type DisplayData struct {
	mu sync.RWMutex

	status     Status
	haveStatus bool

	lastQC qc.Summary
	haveQC bool
}

// RunDisplay drives a small ssd1306 OLED in the scanner room so the
// operator can see block progress and zone temperatures without a laptop.
func RunDisplay() error {
	cfg := config.Get()
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("display: MQTT_BROKER is not configured")
	}

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: ssd1306 initialized on %s", bus.String())

	if err := showSplash(dev); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &DisplayData{}

	// Connect to MQTT
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDDisplay)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	statusToken := client.Subscribe(cfg.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s Status
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("display: status unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.status = s
		data.haveStatus = true
		data.mu.Unlock()
	})
	statusToken.Wait()
	if statusToken.Error() != nil {
		return statusToken.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicStatus)

	qcToken := client.Subscribe(cfg.TopicQC, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s qc.Summary
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("display: qc unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.lastQC = s
		data.haveQC = true
		data.mu.Unlock()
	})
	qcToken.Wait()
	if qcToken.Error() != nil {
		return qcToken.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicQC)

	// Display update loop
	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateMS) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		data.mu.RLock()
		snapshot := DisplayData{
			status:     data.status,
			haveStatus: data.haveStatus,
			lastQC:     data.lastQC,
			haveQC:     data.haveQC,
		}
		data.mu.RUnlock()

		if err := updateStatusDisplay(dev, &snapshot); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}

	return nil
}

func updateStatusDisplay(dev *ssd1306.Dev, data *DisplayData) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	if !data.haveStatus {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Thermode"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
		return dev.Draw(dev.Bounds(), img, image.Point{})
	}

	s := data.status

	// Block identity and cycle
	drawer.Dot = fixed.P(0, 13)
	drawer.DrawBytes([]byte(fmt.Sprintf("%s c%d t=%.0fs", s.BlockType, s.CycleIndex, s.Timestamp)))

	// Commanded delta
	drawer.Dot = fixed.P(0, 26)
	drawer.DrawBytes([]byte(fmt.Sprintf("d=%+.1fC %s", s.Delta, s.MaskName)))

	// Actual zone temperatures, 3 + 2 across two lines
	if len(s.Actual) == 5 {
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte(fmt.Sprintf("%4.1f %4.1f %4.1f",
			s.Actual[0], s.Actual[1], s.Actual[2])))
		drawer.Dot = fixed.P(0, 52)
		drawer.DrawBytes([]byte(fmt.Sprintf("%4.1f %4.1f", s.Actual[3], s.Actual[4])))
	}

	// Latest QC verdict in the corner
	if data.haveQC {
		drawer.Dot = fixed.P(80, 52)
		drawer.DrawBytes([]byte(fmt.Sprintf("F:%d", data.lastQC.NRampFlags)))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

func showSplash(dev *ssd1306.Dev) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawBytes([]byte("Thermal"))

	drawer.Dot = fixed.P(10, 43)
	drawer.DrawBytes([]byte("Stimulator"))

	return dev.Draw(dev.Bounds(), img, image.Point{})
}
