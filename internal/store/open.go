package store

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

// OpenKV opens the KV for driver. path is a directory for badger and a file
// (or directory holding ntropiq.db) for sqlite.
func OpenKV(driver, path string, l *log.Logger) (KV, error) {
	switch driver {
	case DriverMemory:
		return NewMemoryKV(), nil
	case DriverBadger:
		return OpenBadger(BadgerConfig{Path: path, SyncWrites: true, Logger: l})
	case DriverSQLite:
		if filepath.Ext(path) == "" && path != ":memory:" {
			path = filepath.Join(path, "ntropiq.db")
		}
		return OpenSQLite(path)
	}
	return nil, fmt.Errorf("unknown storage driver %q", driver)
}
