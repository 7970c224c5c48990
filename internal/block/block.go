// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package block runs one stimulation block: a fixed-rate command loop over
// the phases Baseline(pre) -> Stimulation(N cycles) -> Baseline(post), with
// a side exit to Aborted on context cancellation.
//
// Tick scheduling is anchored: tick k fires at blockStart + k/updateHz, so
// one late tick never shifts the ones after it and the block cannot
// accumulate drift over a ~640 s run. A tick whose body exceeds its budget
// is logged and the loop carries on.
package block

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/thermal_stimulator/internal/config"
	"github.com/relabs-tech/thermal_stimulator/internal/mask"
	"github.com/relabs-tech/thermal_stimulator/internal/qc"
	"github.com/relabs-tech/thermal_stimulator/internal/record"
	"github.com/relabs-tech/thermal_stimulator/internal/thermode"
	"github.com/relabs-tech/thermal_stimulator/internal/waveform"
)

// Outcome is the terminal state of one block invocation.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeAborted
	OutcomeHardwareFault
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeAborted:
		return "aborted"
	case OutcomeHardwareFault:
		return "hardware_fault"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// PhaseTiming marks one phase of the block for the events file.
type PhaseTiming struct {
	Onset     float64 `json:"onset"`
	Duration  float64 `json:"duration"`
	TrialType string  `json:"trial_type"`
}

// Params identifies the block to run. Waveform and timing parameters come
// from the immutable run configuration; Params carries only what changes
// per block.
type Params struct {
	BlockIndex int
	BlockType  string // "TGI" or "NonTGI"
	MaskName   string
	WarmFirst  bool
	// TriggerTime is the scanner trigger instant record timestamps are
	// relative to. Zero means "now", for runs without a scanner.
	TriggerTime time.Time
}

// Runner executes a single block against one exclusively-owned hardware
// channel. Records are appended and QC is folded synchronously within each
// tick, so an abort at tick k leaves exactly k records, all reflected in
// the QC state.
type Runner struct {
	cfg     *config.Config
	params  Params
	maskArr []int
	ch      thermode.Channel
	rec     *record.Recorder
	qct     *qc.Tracker
	qcw     *record.QCWriter

	// OnCycle, if set, is called with each closed cycle's summary
	// (telemetry; runs at cycle boundaries, outside the tick budget
	// concern of ~80 s cycles).
	OnCycle func(qc.Summary)
	// OnTick, if set, observes every record as it is produced.
	OnTick func(record.Record)

	timings []PhaseTiming

	baselineTargets []float64
	grid            []float64
	interval        time.Duration
	anchor          time.Time
	trigger         time.Time
	tick            int
}

// NewRunner validates the configuration and resolves the mask before any
// hardware is touched; a bad parameter set fails here, never mid-run.
// qcw may be nil when no QC file is wanted.
func NewRunner(cfg *config.Config, params Params, ch thermode.Channel,
	rec *record.Recorder, qcw *record.QCWriter) (*Runner, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	maskArr, err := mask.Get(params.MaskName)
	if err != nil {
		return nil, err
	}

	grid := waveform.Grid(cfg.CycleDuration, cfg.UpdateHz, cfg.MaxDelta)
	if !params.WarmFirst {
		grid = waveform.PhaseShift(grid)
	}

	return &Runner{
		cfg:             cfg,
		params:          params,
		maskArr:         maskArr,
		ch:              ch,
		rec:             rec,
		qct:             qc.NewTracker(cfg.BaselineTemp, cfg.RampRate),
		qcw:             qcw,
		baselineTargets: mask.Apply(maskArr, 0, cfg.BaselineTemp, cfg.TempMin, cfg.TempMax),
		grid:            grid,
		interval:        time.Duration(float64(time.Second) / float64(cfg.UpdateHz)),
	}, nil
}

// Timings returns the phase markers collected so far.
func (r *Runner) Timings() []PhaseTiming {
	return append([]PhaseTiming(nil), r.timings...)
}

// Summaries returns the per-cycle QC summaries collected so far.
func (r *Runner) Summaries() []qc.Summary {
	return r.qct.BlockSummaries()
}

// Run drives the block to a terminal outcome. Cancellation of ctx is
// observed between ticks and yields OutcomeAborted with a nil error; a
// device failure yields OutcomeHardwareFault with the fault as error.
// In both cases every record produced so far has been appended and the
// probe has been commanded back to baseline.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	r.anchor = time.Now()
	r.trigger = r.params.TriggerTime
	if r.trigger.IsZero() {
		r.trigger = r.anchor
	}
	r.tick = 0

	direction := "cool-first"
	if r.params.WarmFirst {
		direction = "warm-first"
	}
	log.Printf("block %d: %s | %s | %s | %d cycles at %d Hz",
		r.params.BlockIndex, r.params.BlockType, r.params.MaskName,
		direction, r.cfg.CyclesPerBlock, r.cfg.UpdateHz)

	// Pre-block baseline
	preOnset := r.sinceTrigger()
	if out, err := r.runBaseline(ctx); out != OutcomeCompleted {
		return r.finish(out, err)
	}
	r.markPhase(preOnset, "baseline")

	// Stimulation cycles
	stimOnset := r.sinceTrigger()
	if out, err := r.runStimulation(ctx); out != OutcomeCompleted {
		return r.finish(out, err)
	}
	r.markPhase(stimOnset, "stimulation")

	// Post-block baseline
	postOnset := r.sinceTrigger()
	if out, err := r.runBaseline(ctx); out != OutcomeCompleted {
		return r.finish(out, err)
	}
	r.markPhase(postOnset, "baseline")

	return r.finish(OutcomeCompleted, nil)
}

func (r *Runner) runBaseline(ctx context.Context) (Outcome, error) {
	n := int(r.cfg.BaselineBuffer * float64(r.cfg.UpdateHz))
	for i := 0; i < n; i++ {
		if out, err := r.waitTick(ctx); out != OutcomeCompleted {
			return out, err
		}
		target := r.tickTarget()

		if err := r.ch.SetZoneTemperatures(r.baselineTargets); err != nil {
			return OutcomeHardwareFault, err
		}
		actual, err := r.ch.ReadZoneTemperatures()
		if err != nil {
			return OutcomeHardwareFault, err
		}

		onset := r.sinceTrigger()
		rec := record.Record{
			Onset:      onset,
			Volume:     r.volume(onset),
			BlockIndex: r.params.BlockIndex,
			BlockType:  r.params.BlockType + "_baseline",
			CycleIndex: -1,
			MaskName:   r.params.MaskName,
			WarmFirst:  r.params.WarmFirst,
			Delta:      0,
			Set:        r.baselineTargets,
			Actual:     actual,
		}
		if err := r.emit(rec); err != nil {
			return OutcomeHardwareFault, err
		}
		r.checkOverrun(target)
		r.tick++
	}
	return OutcomeCompleted, nil
}

func (r *Runner) runStimulation(ctx context.Context) (Outcome, error) {
	samplesPerCycle := int(r.cfg.CycleDuration * float64(r.cfg.UpdateHz))

	for cycle := 0; cycle < r.cfg.CyclesPerBlock; cycle++ {
		r.qct.StartCycle(cycle)

		for s := 0; s < samplesPerCycle; s++ {
			if out, err := r.waitTick(ctx); out != OutcomeCompleted {
				return out, err
			}
			target := r.tickTarget()

			delta := r.grid[s]
			temps := mask.Apply(r.maskArr, delta, r.cfg.BaselineTemp,
				r.cfg.TempMin, r.cfg.TempMax)

			if err := r.ch.SetZoneTemperatures(temps); err != nil {
				return OutcomeHardwareFault, err
			}
			actual, err := r.ch.ReadZoneTemperatures()
			if err != nil {
				return OutcomeHardwareFault, err
			}

			onset := r.sinceTrigger()
			r.qct.Update(onset, temps, actual, delta, r.maskArr)

			rec := record.Record{
				Onset:      onset,
				Volume:     r.volume(onset),
				BlockIndex: r.params.BlockIndex,
				BlockType:  r.params.BlockType,
				CycleIndex: cycle,
				MaskName:   r.params.MaskName,
				WarmFirst:  r.params.WarmFirst,
				Delta:      delta,
				Set:        temps,
				Actual:     actual,
			}
			if err := r.emit(rec); err != nil {
				return OutcomeHardwareFault, err
			}
			r.checkOverrun(target)
			r.tick++
		}

		r.closeCycle(cycle)
	}
	return OutcomeCompleted, nil
}

// closeCycle finalizes the open cycle's QC and emits the summary.
func (r *Runner) closeCycle(cycle int) {
	summary := r.qct.EndCycle()
	log.Printf("block %d: cycle %d/%d QC: onset_lat=%.2fs ramp=%.2f C/s warm=%.2f cool=%.2f err=%.2f C flags=%d n=%d",
		r.params.BlockIndex, cycle+1, r.cfg.CyclesPerBlock,
		summary.OnsetLatency, summary.MeanRampRate,
		summary.MeanWarmingRate, summary.MeanCoolingRate,
		summary.MeanTempError, summary.NRampFlags, summary.NSamples)

	if r.qcw != nil {
		if err := r.qcw.Append(summary); err != nil {
			log.Printf("block %d: failed to append QC row: %v", r.params.BlockIndex, err)
		}
	}
	if r.OnCycle != nil {
		r.OnCycle(summary)
	}
}

// waitTick sleeps until the current tick's anchored fire time, watching
// for cancellation. Abort is only ever observed here, between ticks.
func (r *Runner) waitTick(ctx context.Context) (Outcome, error) {
	select {
	case <-ctx.Done():
		return OutcomeAborted, nil
	default:
	}

	d := time.Until(r.tickTarget())
	if d <= 0 {
		return OutcomeCompleted, nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return OutcomeAborted, nil
	case <-timer.C:
		return OutcomeCompleted, nil
	}
}

// tickTarget is the anchored fire time of the current tick:
// blockStart + tick/updateHz, independent of how long earlier ticks took.
func (r *Runner) tickTarget() time.Time {
	return r.anchor.Add(time.Duration(r.tick) * r.interval)
}

// checkOverrun logs when a tick body exceeded its budget. Overruns are
// diagnostic only; the anchored schedule absorbs them without drift.
func (r *Runner) checkOverrun(target time.Time) {
	if late := time.Since(target); late > r.interval {
		log.Printf("block %d: timing overrun at tick %d: %v over budget",
			r.params.BlockIndex, r.tick, late-r.interval)
	}
}

func (r *Runner) emit(rec record.Record) error {
	if err := r.rec.Append(rec); err != nil {
		return err
	}
	if r.OnTick != nil {
		r.OnTick(rec)
	}
	return nil
}

// finish performs the hardware-safe shutdown shared by every terminal
// state: return to baseline, flush records, and finalize a partial cycle
// so aborted data still carries QC.
func (r *Runner) finish(out Outcome, cause error) (Outcome, error) {
	if err := r.ch.ReturnToBaseline(); err != nil {
		// Best effort only; never mask the original fault.
		log.Printf("block %d: return to baseline failed: %v", r.params.BlockIndex, err)
	}
	if err := r.rec.Flush(); err != nil {
		log.Printf("block %d: record flush failed: %v", r.params.BlockIndex, err)
	}

	// A cycle interrupted by abort or fault still finalizes with the
	// samples it has.
	if out != OutcomeCompleted && r.partialCycle() {
		r.closeCycle(r.openCycleIndex())
	}

	log.Printf("block %d: %s after %d ticks (%d records)",
		r.params.BlockIndex, out, r.tick, r.rec.Count())
	return out, cause
}

// partialCycle reports whether stimulation stopped mid-cycle.
func (r *Runner) partialCycle() bool {
	samplesPerCycle := int(r.cfg.CycleDuration * float64(r.cfg.UpdateHz))
	baselineSamples := int(r.cfg.BaselineBuffer * float64(r.cfg.UpdateHz))
	stimTicks := r.tick - baselineSamples
	return stimTicks > 0 && stimTicks < r.cfg.CyclesPerBlock*samplesPerCycle &&
		stimTicks%samplesPerCycle != 0
}

func (r *Runner) openCycleIndex() int {
	samplesPerCycle := int(r.cfg.CycleDuration * float64(r.cfg.UpdateHz))
	baselineSamples := int(r.cfg.BaselineBuffer * float64(r.cfg.UpdateHz))
	return (r.tick - baselineSamples) / samplesPerCycle
}

func (r *Runner) markPhase(onset float64, trialType string) {
	r.timings = append(r.timings, PhaseTiming{
		Onset:     onset,
		Duration:  r.sinceTrigger() - onset,
		TrialType: trialType,
	})
}

func (r *Runner) sinceTrigger() float64 {
	return time.Since(r.trigger).Seconds()
}

func (r *Runner) volume(onset float64) int {
	return int(onset/r.cfg.TR) + 1
}
