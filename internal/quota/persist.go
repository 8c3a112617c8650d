package quota

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/xaenox/commission-scout/pkg/fileutil"
)

// FilePersister keeps usage as a JSON object in UsagePath and the last
// reset date as a bare YYYY-MM-DD line in ResetPath.
type FilePersister struct {
	UsagePath string
	ResetPath string
}

func (p FilePersister) Load() (Snapshot, error) {
	snap := Snapshot{Usage: make(map[string]int64)}

	data, err := os.ReadFile(p.UsagePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Snapshot{}, fmt.Errorf("read usage file: %w", err)
	case len(strings.TrimSpace(string(data))) > 0:
		if err := json.Unmarshal(data, &snap.Usage); err != nil {
			return Snapshot{}, fmt.Errorf("parse usage file: %w", err)
		}
		if snap.Usage == nil {
			snap.Usage = make(map[string]int64)
		}
	}

	marker, err := os.ReadFile(p.ResetPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Snapshot{}, fmt.Errorf("read reset marker: %w", err)
	default:
		snap.ResetDate = strings.TrimSpace(string(marker))
	}
	return snap, nil
}

func (p FilePersister) Save(snap Snapshot) error {
	data, err := json.MarshalIndent(snap.Usage, "", "  ")
	if err != nil {
		return fmt.Errorf("encode usage: %w", err)
	}
	if err := fileutil.WriteFileAtomic(p.UsagePath, data, 0o644); err != nil {
		return err
	}
	if snap.ResetDate == "" {
		return nil
	}
	return fileutil.WriteFileAtomic(p.ResetPath, []byte(snap.ResetDate+"\n"), 0o644)
}

// MemoryPersister keeps the last saved snapshot in memory.
type MemoryPersister struct {
	mu    sync.Mutex
	snap  Snapshot
	Saves int
	Err   error
}

func NewMemoryPersister(snap Snapshot) *MemoryPersister {
	return &MemoryPersister{snap: copySnapshot(snap)}
}

func (p *MemoryPersister) Load() (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copySnapshot(p.snap), nil
}

func (p *MemoryPersister) Save(snap Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.snap = copySnapshot(snap)
	p.Saves++
	return nil
}

func (p *MemoryPersister) Last() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copySnapshot(p.snap)
}

func copySnapshot(s Snapshot) Snapshot {
	usage := make(map[string]int64, len(s.Usage))
	for k, v := range s.Usage {
		usage[k] = v
	}
	return Snapshot{Usage: usage, ResetDate: s.ResetDate}
}
