package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const dataDirPerm os.FileMode = 0o750

// EnsureDir creates the directory if it does not exist.
func EnsureDir(dirPath string) error {
	if dirPath == "" {
		return errors.New("empty dir path")
	}
	if err := os.MkdirAll(dirPath, dataDirPerm); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	return nil
}

// WriteJSONAtomic marshals the value and atomically writes it to filename.
// The write goes through a temporary file in the same directory followed by
// a rename, so readers never observe a half-written record.
func WriteJSONAtomic(filename string, v any) error {
	if filename == "" {
		return errors.New("empty filename")
	}

	dir := filepath.Dir(filename)
	if err := EnsureDir(dir); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tempFile.Name()

	enc := json.NewEncoder(tempFile)
	if err := enc.Encode(v); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("encode json: %w", err)
	}

	// ensure data hits disk before the rename makes it visible
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}

	// remove existing file to avoid permission issues on Windows
	if _, err := os.Stat(filename); err == nil {
		// ignore error; if remove fails, rename may still succeed on POSIX
		_ = os.Remove(filename)
	}

	if err := os.Rename(tmpName, filename); err != nil {
		return fmt.Errorf("rename temp: %w", err)
	}
	return nil
}

// ReadJSON unmarshals the file content into v. A missing file is reported
// via os.IsNotExist on the returned error so callers can fall back to zero
// values.
func ReadJSON(filename string, v any) error {
	if filename == "" {
		return errors.New("empty filename")
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return fmt.Errorf("read file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse json: %w", err)
	}
	return nil
}
