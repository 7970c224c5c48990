// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/thermal_stimulator/internal/config"
	"github.com/relabs-tech/thermal_stimulator/internal/qc"
)

// RunConsole subscribes to the stimulator telemetry topics and prints each
// message as a one-line summary. It is the operator's low-tech fallback
// when the web monitor is not reachable from the control room.
func RunConsole() error {
	cfg := config.Get()
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("console: MQTT_BROKER is not configured")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	// Subscribe to per-tick status
	statusToken := client.Subscribe(cfg.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s Status
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: status unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[TEMP]  t=%8.1f  %s/%s cyc=%2d  d=%+6.2f  set=%s  act=%s\n",
			s.Timestamp, s.BlockType, s.MaskName, s.CycleIndex, s.Delta,
			zoneList(s.Set), zoneList(s.Actual),
		)
	})
	statusToken.Wait()
	if statusToken.Error() != nil {
		return statusToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicStatus)

	// Subscribe to per-cycle QC summaries
	qcToken := client.Subscribe(cfg.TopicQC, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s qc.Summary
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: qc unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[QC  ]  cyc=%2d  onset=%5.2fs  ramp=%4.2f±%4.2f  warm=%4.2f cool=%4.2f  err=%4.2f/%4.2f  flags=%d n=%d\n",
			s.CycleIndex, s.OnsetLatency, s.MeanRampRate, s.StdRampRate,
			s.MeanWarmingRate, s.MeanCoolingRate,
			s.MeanTempError, s.MaxTempError, s.NRampFlags, s.NSamples,
		)
	})
	qcToken.Wait()
	if qcToken.Error() != nil {
		return qcToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicQC)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

func zoneList(temps []float64) string {
	out := ""
	for i, t := range temps {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%5.1f", t)
	}
	return out
}
