// File: internal/script/codec.go
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FormatVersion tags saved script files.
const FormatVersion = "1.0"

// File is the on-disk wrapper for a saved script.
type File struct {
	Version   string   `json:"version"`
	Timestamp float64  `json:"timestamp"`
	Actions   []Action `json:"actions"`
}

// Save writes the action sequence to path in the wrapped format.
func Save(path string, actions []Action) error {
	f := File{
		Version:   FormatVersion,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		Actions:   actions,
	}
	data, err := json.MarshalIndent(f, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding script: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating script directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing script %s: %w", path, err)
	}
	return nil
}

// Load reads a script from path. Both the wrapped format and a bare action
// array are accepted; older exports used the bare form.
func Load(path string) ([]Action, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err == nil && f.Actions != nil {
		return f.Actions, nil
	}

	var bare []Action
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, nil
	}

	return nil, fmt.Errorf("script %s is neither a wrapped script nor an action list", path)
}
