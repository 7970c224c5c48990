// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/thermal_stimulator/internal/app"
	"github.com/relabs-tech/thermal_stimulator/internal/block"
	"github.com/relabs-tech/thermal_stimulator/internal/config"
)

func main() {
	configPath := flag.String("config", "./stimulator.conf", "path to configuration file")
	subject := flag.String("subject", "01", "BIDS subject label")
	session := flag.String("session", "01", "BIDS session label")
	run := flag.Int("run", 1, "run number")
	blockIdx := flag.Int("block", 0, "block index within the run")
	blockType := flag.String("type", "TGI", "block type: TGI or NonTGI")
	maskName := flag.String("mask", "TGI_1", "spatial mask name")
	warmFirst := flag.Bool("warm-first", true, "warm-first (true) or cool-first (false) waveform")
	flag.Parse()

	log.Println("starting thermal-stimulator block producer")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()

	// Ctrl-C / SIGTERM aborts the block; the control loop returns the
	// probe to baseline before exiting.
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, err := app.RunBlock(ctx, cfg, app.Session{
		Subject: *subject,
		Session: *session,
		Run:     *run,
	}, block.Params{
		BlockIndex: *blockIdx,
		BlockType:  *blockType,
		MaskName:   *maskName,
		WarmFirst:  *warmFirst,
	})
	if err != nil {
		log.Fatalf("block failed (%s): %v", outcome, err)
	}
	log.Printf("block finished: %s", outcome)
	if outcome != block.OutcomeCompleted {
		os.Exit(1)
	}
}
