// Package capture orchestrates multi-round SRAM readout sessions.
package capture

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hwsec-lab/sramlab/db"
	"github.com/hwsec-lab/sramlab/internal/fsutil"
	"github.com/hwsec-lab/sramlab/internal/monitoring"
	"github.com/hwsec-lab/sramlab/internal/timeutil"
)

// Device is the slice of the OpenOCD driver the capture loop needs.
type Device interface {
	FlashErase() error
	DumpSRAM(path string, addr, size uint32) error
	ReadoutName(template string, now time.Time) string
}

// Store is the slice of the session database the capture loop needs.
type Store interface {
	InsertSession(*db.Session) error
	InsertReadout(*db.Readout) error
	UpdateSessionRounds(sessionID string, rounds int) error
}

// Params describe one capture session.
type Params struct {
	Label       string
	DeviceLabel string
	Profile     string
	Target      string
	Interface   string
	ProbeSerial string
	SRAMBase    uint32
	SRAMSize    uint32
	Rounds      int
	Dir         string // directory for readout files
	Template    string // readout filename template; empty for the driver default

	// PowerCycle is called between rounds so the operator (or a relay board)
	// can cut power to the target. SRAM PUF data is only meaningful when the
	// cells actually decayed; a plain reset keeps them powered. When nil the
	// runner just waits SettleDelay.
	PowerCycle  func(round int) error
	SettleDelay time.Duration
}

// Runner executes capture sessions against a device and records them.
type Runner struct {
	dev   Device
	store Store
	fs    fsutil.FileSystem
	clock timeutil.Clock
}

// NewRunner creates a Runner. A nil fs defaults to the real filesystem.
func NewRunner(dev Device, store Store, fs fsutil.FileSystem) *Runner {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &Runner{dev: dev, store: store, fs: fs, clock: timeutil.RealClock{}}
}

// Run performs a full capture session: an initial mass erase so no firmware
// reinitialises SRAM, then Rounds power-cycle+dump rounds. Each dumped file
// is verified to exist with exactly the requested byte count before it is
// recorded. The first failed round aborts the session; completed rounds stay
// recorded.
func (r *Runner) Run(ctx context.Context, p Params) (*db.Session, error) {
	if p.Rounds <= 0 {
		return nil, fmt.Errorf("rounds must be positive, got %d", p.Rounds)
	}
	if p.SRAMSize == 0 {
		return nil, fmt.Errorf("sram size must be non-zero")
	}

	if err := r.fs.MkdirAll(p.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create readout directory: %w", err)
	}

	session := &db.Session{
		Label:       p.Label,
		DeviceLabel: p.DeviceLabel,
		Profile:     p.Profile,
		Target:      p.Target,
		Interface:   p.Interface,
		ProbeSerial: p.ProbeSerial,
		Source:      "openocd",
		SRAMBase:    p.SRAMBase,
		SRAMSize:    p.SRAMSize,
	}
	if err := r.store.InsertSession(session); err != nil {
		return nil, err
	}

	monitoring.Logf("session %s: erasing flash before capture", session.SessionID)
	if err := r.dev.FlashErase(); err != nil {
		return session, fmt.Errorf("mass erase failed: %w", err)
	}

	completed := 0
	for round := 0; round < p.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return session, err
		}

		if round > 0 {
			if p.PowerCycle != nil {
				if err := p.PowerCycle(round); err != nil {
					return session, fmt.Errorf("power cycle before round %d failed: %w", round, err)
				}
			} else if p.SettleDelay > 0 {
				select {
				case <-r.clock.After(p.SettleDelay):
				case <-ctx.Done():
					return session, ctx.Err()
				}
			}
		}

		readout, err := r.captureRound(session, p, round)
		if err != nil {
			return session, fmt.Errorf("round %d failed: %w", round, err)
		}
		monitoring.Logf("session %s: round %d captured %d bytes to %s",
			session.SessionID, round, readout.SizeBytes, readout.Path)

		completed++
		session.Rounds = completed
		if err := r.store.UpdateSessionRounds(session.SessionID, completed); err != nil {
			return session, err
		}
	}

	return session, nil
}

func (r *Runner) captureRound(session *db.Session, p Params, round int) (*db.Readout, error) {
	name := r.dev.ReadoutName(p.Template, r.clock.Now())
	if p.Template == "" {
		// keep rounds from colliding when they land in the same second
		name = fmt.Sprintf("%03d--%s", round, name)
	}
	path := filepath.Join(p.Dir, name)

	if err := r.dev.DumpSRAM(path, p.SRAMBase, p.SRAMSize); err != nil {
		return nil, err
	}

	info, err := r.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("readout file missing after dump: %w", err)
	}
	if info.Size() != int64(p.SRAMSize) {
		return nil, fmt.Errorf("readout %s has %d bytes, expected %d", path, info.Size(), p.SRAMSize)
	}

	data, err := r.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read readout for checksum: %w", err)
	}
	sum := sha256.Sum256(data)

	readout := &db.Readout{
		SessionID: session.SessionID,
		Round:     round,
		Path:      path,
		SizeBytes: info.Size(),
		SHA256:    hex.EncodeToString(sum[:]),
	}
	if err := r.store.InsertReadout(readout); err != nil {
		return nil, err
	}
	return readout, nil
}
