// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"io/fs"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/thermal_stimulator/internal/config"
	"github.com/relabs-tech/thermal_stimulator/internal/record"
)

// monitorWindow is how many trailing samples the monitor serves; 600 is one
// minute of data at the standard 10 Hz rate.
const monitorWindow = 600

// activeSpread is the commanded-temperature spread above which a zone is
// considered stimulated rather than held at baseline.
const activeSpread = 0.5

// Snapshot is what the monitor serves to the browser: the newest record
// file's identity, its sidecar, and the trailing data window.
type Snapshot struct {
	File        string         `json:"file"`
	Sidecar     record.Sidecar `json:"sidecar"`
	TotalRecs   int            `json:"total_records"`
	ActiveZones []int          `json:"active_zones"` // 1-based zone numbers
	Onset       []float64      `json:"onset"`
	Delta       []float64      `json:"delta"`
	Set         [][]float64    `json:"set"`    // [zone][sample]
	Actual      [][]float64    `json:"actual"` // [zone][sample]
	Latest      *record.Record `json:"latest,omitempty"`
}

// Monitor polls the data directory for the newest thermode TSV and serves
// it over HTTP and websocket. It is strictly read-only on the data files;
// the block producer never knows the monitor exists.
type Monitor struct {
	cfg      *config.Config
	fixed    string // explicit record file; empty = discover the newest
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	snapshot *Snapshot

	notifyMu sync.Mutex
	clients  map[*websocket.Conn]struct{}
}

// NewMonitor builds a monitor for the configured data directory. A
// non-empty recordFile pins the monitor to that file instead of tracking
// the newest one.
func NewMonitor(cfg *config.Config, recordFile string) *Monitor {
	return &Monitor{
		cfg:   cfg,
		fixed: recordFile,
		upgrader: websocket.Upgrader{
			// The dashboard is served on a private scanner-room network.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Run starts the poll loop and the HTTP server; it blocks until the server
// fails.
func (m *Monitor) Run() error {
	go m.pollLoop()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/data", m.handleData)
	mux.HandleFunc("/ws", m.handleWS)
	if m.cfg.MonitorStaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(m.cfg.MonitorStaticDir)))
	}

	log.Printf("monitor: listening on %s, watching %s", m.cfg.MonitorListenAddr, m.cfg.DataDir)
	return http.ListenAndServe(m.cfg.MonitorListenAddr, mux)
}

func (m *Monitor) pollLoop() {
	ticker := time.NewTicker(time.Duration(m.cfg.MonitorPollMS) * time.Millisecond)
	defer ticker.Stop()

	var lastFile string
	var lastCount int
	for range ticker.C {
		path := m.fixed
		if path == "" {
			var err error
			path, err = newestRecordFile(m.cfg.DataDir)
			if err != nil || path == "" {
				continue
			}
		}
		snap, err := buildSnapshot(path)
		if err != nil {
			log.Printf("monitor: failed to read %s: %v", path, err)
			continue
		}
		if path == lastFile && snap.TotalRecs == lastCount {
			continue
		}
		lastFile, lastCount = path, snap.TotalRecs

		m.mu.Lock()
		m.snapshot = snap
		m.mu.Unlock()
		m.broadcast(snap)
	}
}

func (m *Monitor) handleData(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	snap := m.snapshot
	m.mu.RUnlock()
	if snap == nil {
		http.Error(w, "no data yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Printf("monitor: encode failed: %v", err)
	}
}

func (m *Monitor) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("monitor: websocket upgrade failed: %v", err)
		return
	}
	// Push the current state immediately so a late-joining dashboard is
	// not blank until the next poll. Every write on a connection happens
	// under notifyMu: the connection is registered only after the initial
	// push, inside the same critical section, so broadcast can never write
	// the same conn concurrently.
	m.mu.RLock()
	snap := m.snapshot
	m.mu.RUnlock()

	m.notifyMu.Lock()
	if snap != nil {
		if err := conn.WriteJSON(snap); err != nil {
			m.notifyMu.Unlock()
			conn.Close()
			return
		}
	}
	m.clients[conn] = struct{}{}
	m.notifyMu.Unlock()

	// Reader loop only to detect close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				m.dropClient(conn)
				return
			}
		}
	}()
}

func (m *Monitor) broadcast(snap *Snapshot) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	for conn := range m.clients {
		if err := conn.WriteJSON(snap); err != nil {
			conn.Close()
			delete(m.clients, conn)
		}
	}
}

func (m *Monitor) dropClient(conn *websocket.Conn) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	conn.Close()
	delete(m.clients, conn)
}

// newestRecordFile walks the data tree for the most recently modified
// thermode TSV.
func newestRecordFile(dataDir string) (string, error) {
	var newest string
	var newestMod time.Time
	err := filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A directory vanishing mid-walk is fine; keep going.
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, "_thermode.tsv") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(newestMod) {
			newest, newestMod = path, info.ModTime()
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}
	return newest, nil
}

// buildSnapshot reads the record file and its sidecar and assembles the
// trailing data window.
func buildSnapshot(path string) (*Snapshot, error) {
	recs, err := record.ReadRecords(path)
	if err != nil {
		return nil, err
	}
	sidecar, err := record.ReadSidecar(strings.TrimSuffix(path, ".tsv") + ".json")
	if err != nil {
		// Sidecar may not be written yet; data is still usable.
		log.Printf("monitor: no sidecar for %s: %v", path, err)
	}

	snap := &Snapshot{
		File:      filepath.Base(path),
		Sidecar:   sidecar,
		TotalRecs: len(recs),
		Set:       make([][]float64, 5),
		Actual:    make([][]float64, 5),
	}

	start := 0
	if len(recs) > monitorWindow {
		start = len(recs) - monitorWindow
	}
	window := recs[start:]
	for _, r := range window {
		snap.Onset = append(snap.Onset, r.Onset)
		snap.Delta = append(snap.Delta, r.Delta)
		for z := 0; z < 5; z++ {
			snap.Set[z] = append(snap.Set[z], r.Set[z])
			snap.Actual[z] = append(snap.Actual[z], r.Actual[z])
		}
	}
	if len(recs) > 0 {
		last := recs[len(recs)-1]
		snap.Latest = &last
	}
	snap.ActiveZones = activeZones(window)
	return snap, nil
}

// activeZones reports which zones were commanded away from a constant hold
// within the window, by the spread of their set temperatures.
func activeZones(recs []record.Record) []int {
	var active []int
	for z := 0; z < 5; z++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, r := range recs {
			if r.Set[z] < lo {
				lo = r.Set[z]
			}
			if r.Set[z] > hi {
				hi = r.Set[z]
			}
		}
		if len(recs) > 0 && hi-lo > activeSpread {
			active = append(active, z+1)
		}
	}
	return active
}
