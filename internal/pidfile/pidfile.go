// Package pidfile guards against two daemons running with the same configuration.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning is returned by Write when the file names a live process.
var ErrAlreadyRunning = errors.New("daemon is already running")

// Write records pid in path. A stale file left by a dead process is replaced.
func Write(path string, pid int) error {
	if existing, err := Read(path); err == nil && existing != pid && IsRunning(existing) {
		return fmt.Errorf("%w (pid %d, %s)", ErrAlreadyRunning, existing, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// Read читает PID из файла
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file %s: %w", path, err)
	}
	return pid, nil
}

// IsRunning проверяет что процесс запущен
func IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 только проверяет существование процесса
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Remove deletes path if it still holds pid.
func Remove(path string, pid int) error {
	existing, err := Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil && existing != pid {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
