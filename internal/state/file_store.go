package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

const maxBackupAttempts = 1000

// WriteError reports a failure to persist the state file.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write state file %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// CorruptError describes why a state file was rejected.
type CorruptError struct {
	Reason string
	Err    error
}

func (e *CorruptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// FileStore persists state as JSON on disk.
type FileStore struct {
	path   string
	logger zerolog.Logger

	mu       sync.Mutex
	recovery *Recovery
}

// NewFileStore returns a JSON-backed state store.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger,
	}
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads state from disk. A missing file yields an empty state. A file that
// is not a valid state document is copied to a backup and an empty state is
// returned; only read errors other than absence are surfaced.
func (s *FileStore) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	s.setRecovery(nil)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info().Str("path", s.path).Msg("state file missing, starting fresh")
			return New(), nil
		}
		return State{}, fmt.Errorf("read state file: %w", err)
	}

	loaded, err := Decode(data)
	if err == nil {
		return loaded, nil
	}

	recovery := Recovery{Path: s.path, Cause: err}
	backupPath, backupErr := s.backup(data)
	if backupErr != nil {
		s.logger.Error().Err(backupErr).Str("path", s.path).Msg("could not back up corrupt state file")
	} else {
		recovery.BackupPath = backupPath
	}
	s.setRecovery(&recovery)

	s.logger.Warn().
		Str("path", s.path).
		Str("backup", recovery.BackupPath).
		Err(err).
		Msg("state file corrupt, starting fresh")
	return New(), nil
}

// LastRecovery reports the corrupted file handled by the most recent Load.
func (s *FileStore) LastRecovery() (Recovery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recovery == nil {
		return Recovery{}, false
	}
	return *s.recovery, true
}

func (s *FileStore) setRecovery(r *Recovery) {
	s.mu.Lock()
	s.recovery = r
	s.mu.Unlock()
}

// Save writes state to disk atomically.
func (s *FileStore) Save(ctx context.Context, state State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.save(state); err != nil {
		return &WriteError{Path: s.path, Err: err}
	}
	return nil
}

func (s *FileStore) save(state State) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return err
	}

	cleanup := func() {
		_ = os.Remove(tempFile.Name())
	}

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	// CreateTemp uses 0600; keep the mode of the file being replaced.
	if err := tempFile.Chmod(stateFileMode(s.path)); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	if err := tempFile.Close(); err != nil {
		cleanup()
		return err
	}

	if err := os.Rename(tempFile.Name(), s.path); err != nil {
		cleanup()
		return err
	}

	if dirHandle, err := os.Open(dir); err == nil {
		_ = dirHandle.Sync()
		_ = dirHandle.Close()
	}

	return nil
}

func stateFileMode(path string) os.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return 0o644
}

// backup copies data next to the state file without replacing an earlier backup.
func (s *FileStore) backup(data []byte) (string, error) {
	base := s.path + ".bak"
	for i := 0; i < maxBackupAttempts; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s.%d", base, i)
		}

		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(candidate)
			return "", err
		}
		if err := f.Close(); err != nil {
			return "", err
		}
		return candidate, nil
	}
	return "", fmt.Errorf("no free backup name after %d attempts", maxBackupAttempts)
}

// Decode parses and validates a state document.
func Decode(data []byte) (State, error) {
	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		return State{}, &CorruptError{Reason: "invalid state document", Err: err}
	}
	if loaded.Machines == nil {
		return State{}, &CorruptError{Reason: `missing "machines" object`}
	}
	for name, machine := range loaded.Machines {
		if name == "" {
			return State{}, &CorruptError{Reason: "empty machine name"}
		}
		if machine.Packages == nil {
			machine.Packages = map[string]PackageSet{}
		}
		for id, set := range machine.Packages {
			if set == nil {
				machine.Packages[id] = PackageSet{}
			}
		}
		loaded.Machines[name] = machine
	}
	return loaded, nil
}

// Encode renders state as indented JSON with a trailing newline.
func Encode(state State) ([]byte, error) {
	machines := make(map[string]MachineState, len(state.Machines))
	for name, machine := range state.Machines {
		if machine.Packages == nil {
			machine.Packages = map[string]PackageSet{}
		}
		machines[name] = machine
	}
	state.Machines = machines

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
