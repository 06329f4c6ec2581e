package library

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/trackjack/internal/music"
)

// LedgerFileName is the name of the ledger kept in the output directory.
const LedgerFileName = "library.yaml"

// Entry records one recording that made it into the library.
type Entry struct {
	Track      music.Track `yaml:"track" json:"track"`
	Path       string      `yaml:"path" json:"path"`
	Size       int64       `yaml:"size" json:"size"`
	RecordedAt time.Time   `yaml:"recorded_at" json:"recorded_at"`
}

type ledgerFile struct {
	Recordings []Entry `yaml:"recordings"`
}

// Ledger is a YAML list of finalized recordings. Every append rewrites the
// whole file through a pending file, so readers never see a partial ledger.
type Ledger struct {
	path  string
	mutex sync.Mutex
}

// NewLedger returns the ledger stored in dir.
func NewLedger(dir string) *Ledger {
	return &Ledger{path: filepath.Join(dir, LedgerFileName)}
}

// Path returns the ledger file location.
func (l *Ledger) Path() string {
	return l.path
}

// Entries returns every recorded entry, oldest first. A missing ledger is
// empty.
func (l *Ledger) Entries() ([]Entry, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	file, err := l.load()
	if err != nil {
		return nil, err
	}
	return file.Recordings, nil
}

// Append adds entry and writes the ledger atomically.
func (l *Ledger) Append(entry Entry) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	file, err := l.load()
	if err != nil {
		return err
	}
	file.Recordings = append(file.Recordings, entry)
	return l.write(file)
}

func (l *Ledger) load() (ledgerFile, error) {
	var file ledgerFile

	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return file, nil
	}
	if err != nil {
		return file, fmt.Errorf("failed to read ledger: %w", err)
	}

	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("failed to parse ledger %s: %w", l.path, err)
	}
	return file, nil
}

func (l *Ledger) write(file ledgerFile) error {
	if err := CreateParentDirectory(l.path); err != nil {
		return err
	}

	pending, err := renameio.NewPendingFile(l.path)
	if err != nil {
		return fmt.Errorf("create pending ledger file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			slog.Debug("Cleanup pending ledger file", "error", err)
		}
	}()

	encoder := yaml.NewEncoder(pending)
	encoder.SetIndent(2)
	if err := encoder.Encode(file); err != nil {
		return fmt.Errorf("write ledger data: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("write ledger data: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit ledger file: %w", err)
	}
	return nil
}
