package mining

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/COhsrt/creepMiner/internal/config"
	"github.com/COhsrt/creepMiner/internal/logs"
	"github.com/COhsrt/creepMiner/pkg/events"
)

// Settings are the miner knobs an operator may change at runtime.
type Settings struct {
	TargetDeadline     uint64 `json:"targetDeadline"`
	MaxPlotReaders     int    `json:"maxPlotReaders"`
	SubmissionMaxRetry int    `json:"submissionMaxRetry"`
}

// MiningInfo is the current block context in the pool wire format.
type MiningInfo struct {
	GenerationSignature string `json:"generationSignature"`
	BaseTarget          uint64 `json:"baseTarget"`
	Height              uint64 `json:"height"`
	TargetDeadline      uint64 `json:"targetDeadline"`
}

// Miner owns the plot directory list, the runtime settings and the current
// block context. The web server only issues change requests through these
// methods; all internal state is serialized here.
type Miner struct {
	mu       sync.RWMutex
	cfg      *config.Config
	logStore *logs.Store
	bus      *events.EventBus

	plotDirs []string
	settings Settings

	height       uint64
	baseTarget   uint64
	genSig       string
	scanProgress float64
	bestDeadline uint64

	stopped bool
}

func NewMiner(cfg *config.Config, logStore *logs.Store, bus *events.EventBus) *Miner {
	mc := cfg.MiningSnapshot()
	return &Miner{
		cfg:      cfg,
		logStore: logStore,
		bus:      bus,
		plotDirs: mc.PlotDirs,
		settings: Settings{
			TargetDeadline:     mc.TargetDeadline,
			MaxPlotReaders:     mc.MaxPlotReaders,
			SubmissionMaxRetry: mc.SubmissionMaxRetry,
		},
		baseTarget: 1, // until the first block arrives
	}
}

func (m *Miner) logf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	log.Printf("%s", line)
	entry := m.logStore.Add(line)
	m.bus.Publish(events.Event{
		Type: events.LogLine,
		Data: map[string]interface{}{"line": line, "seq": entry.Seq},
	})
}

// NewBlock installs the next block context and starts a fresh work cycle.
func (m *Miner) NewBlock(height, baseTarget uint64, genSig string) {
	m.mu.Lock()
	m.height = height
	m.baseTarget = baseTarget
	m.genSig = genSig
	m.scanProgress = 0
	m.bestDeadline = 0
	m.mu.Unlock()

	m.logStore.NewBlock(height)
	m.bus.Publish(events.Event{
		Type: events.BlockStarted,
		Data: map[string]interface{}{"height": height},
	})
	m.logf("block %d started, baseTarget %d", height, baseTarget)
}

func (m *Miner) MiningInfo() MiningInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MiningInfo{
		GenerationSignature: m.genSig,
		BaseTarget:          m.baseTarget,
		Height:              m.height,
		TargetDeadline:      m.settings.TargetDeadline,
	}
}

func (m *Miner) PlotDirs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string{}, m.plotDirs...)
}

func (m *Miner) AddPlotDir(dir string) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return fmt.Errorf("empty plot directory")
	}

	m.mu.Lock()
	for _, existing := range m.plotDirs {
		if existing == dir {
			m.mu.Unlock()
			return fmt.Errorf("plot directory %s already configured", dir)
		}
	}
	m.plotDirs = append(m.plotDirs, dir)
	dirs := append([]string{}, m.plotDirs...)
	m.mu.Unlock()

	m.persistPlotDirs(dirs)
	m.logf("plot directory added: %s", dir)
	return nil
}

func (m *Miner) RemovePlotDir(dir string) error {
	dir = strings.TrimSpace(dir)

	m.mu.Lock()
	idx := -1
	for i, existing := range m.plotDirs {
		if existing == dir {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("plot directory %s not configured", dir)
	}
	m.plotDirs = append(m.plotDirs[:idx], m.plotDirs[idx+1:]...)
	dirs := append([]string{}, m.plotDirs...)
	m.mu.Unlock()

	m.persistPlotDirs(dirs)
	m.logf("plot directory removed: %s", dir)
	return nil
}

func (m *Miner) persistPlotDirs(dirs []string) {
	m.cfg.UpdateMining(func(mc *config.MiningConfig) {
		mc.PlotDirs = dirs
	})
	if err := m.cfg.Save(); err != nil {
		log.Printf("Failed to persist plot directories: %v", err)
	}
	m.bus.Publish(events.Event{
		Type: events.PlotDirsChanged,
		Data: map[string]interface{}{"plotDirs": dirs},
	})
	m.bus.Publish(events.Event{
		Type: events.ConfigChanged,
		Data: map[string]interface{}{"source": "plotdirs"},
	})
}

func (m *Miner) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

func (m *Miner) UpdateSettings(settings Settings) error {
	if settings.MaxPlotReaders < 1 {
		return fmt.Errorf("maxPlotReaders must be at least 1")
	}
	if settings.SubmissionMaxRetry < 0 {
		return fmt.Errorf("submissionMaxRetry must not be negative")
	}

	m.mu.Lock()
	m.settings = settings
	m.mu.Unlock()

	m.cfg.UpdateMining(func(mc *config.MiningConfig) {
		mc.TargetDeadline = settings.TargetDeadline
		mc.MaxPlotReaders = settings.MaxPlotReaders
		mc.SubmissionMaxRetry = settings.SubmissionMaxRetry
	})
	if err := m.cfg.Save(); err != nil {
		log.Printf("Failed to persist settings: %v", err)
	}

	m.bus.Publish(events.Event{
		Type: events.ConfigChanged,
		Data: map[string]interface{}{"source": "settings"},
	})
	m.logf("settings changed: targetDeadline=%d maxPlotReaders=%d",
		settings.TargetDeadline, settings.MaxPlotReaders)
	return nil
}

// RescanPlotfiles re-reads the plot directory list and restarts the scan of
// the current block. Returns the number of directories scheduled.
func (m *Miner) RescanPlotfiles() int {
	m.mu.Lock()
	m.scanProgress = 0
	count := len(m.plotDirs)
	m.mu.Unlock()

	m.bus.Publish(events.Event{
		Type: events.RescanStarted,
		Data: map[string]interface{}{"plotDirs": count},
	})
	m.logf("rescanning %d plot directories", count)
	return count
}

func (m *Miner) ScanProgress() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanProgress
}

func (m *Miner) SetScanProgress(progress float64) {
	m.mu.Lock()
	m.scanProgress = progress
	m.mu.Unlock()
}

// SubmitNonce verifies a nonce against the current block and returns its
// deadline in seconds. The returned deadline is deterministic for a given
// (account, nonce, block) triple.
func (m *Miner) SubmitNonce(accountID, nonce uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.genSig == "" {
		return 0, fmt.Errorf("no active block")
	}
	if m.baseTarget == 0 {
		return 0, fmt.Errorf("block %d has no base target", m.height)
	}

	h := sha256.New()
	h.Write([]byte(m.genSig))
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], accountID)
	binary.BigEndian.PutUint64(buf[8:], nonce)
	h.Write(buf[:])
	sum := h.Sum(nil)

	deadline := binary.BigEndian.Uint64(sum[:8]) % (1 << 40) / m.baseTarget
	if m.bestDeadline == 0 || deadline < m.bestDeadline {
		m.bestDeadline = deadline
	}

	m.bus.Publish(events.Event{
		Type: events.NonceSubmitted,
		Data: map[string]interface{}{
			"accountId": accountID,
			"nonce":     nonce,
			"deadline":  deadline,
		},
	})
	return deadline, nil
}

func (m *Miner) BestDeadline() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bestDeadline
}

// Shutdown stops the miner. Safe to call more than once.
func (m *Miner) Shutdown() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	m.logf("miner shutting down")
	m.bus.Publish(events.Event{Type: events.MinerShutdown})
}

func (m *Miner) IsStopped() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stopped
}
