// Package boards maps board identifiers to the shape of the samples their
// drivers produce.
package boards

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Well-known board identifiers.
const (
	StreamingBoard = -2
	FreeEEG32      = 17
)

// ErrUnknownBoard is returned when a board identifier has no registered layout.
var ErrUnknownBoard = errors.New("unknown board id")

//go:embed boards.json
var boardsJSON []byte

// ChannelLayout describes one sample vector: how many fields it has and which
// of them hold the package counter, the channel readings and the timestamp.
type ChannelLayout struct {
	BoardID       int    `json:"board_id"`
	Name          string `json:"name"`
	NumRows       int    `json:"num_rows"`
	PackageNumRow int    `json:"package_num_row"`
	EEGChannels   []int  `json:"eeg_channels"`
	TimestampRow  int    `json:"timestamp_row"`
}

// Channels returns the number of analog channels in the layout.
func (l ChannelLayout) Channels() int {
	return len(l.EEGChannels)
}

// Validate checks that every row index fits inside NumRows.
func (l ChannelLayout) Validate() error {
	if l.NumRows < 0 {
		return fmt.Errorf("board %d: num_rows must be non-negative, got %d", l.BoardID, l.NumRows)
	}
	if l.NumRows == 0 {
		// delegating boards carry no rows of their own
		if len(l.EEGChannels) > 0 {
			return fmt.Errorf("board %d: channels listed for a layout without rows", l.BoardID)
		}
		return nil
	}
	inRange := func(row int) bool { return row >= 0 && row < l.NumRows }
	if !inRange(l.PackageNumRow) {
		return fmt.Errorf("board %d: package_num_row %d out of range", l.BoardID, l.PackageNumRow)
	}
	if !inRange(l.TimestampRow) {
		return fmt.Errorf("board %d: timestamp_row %d out of range", l.BoardID, l.TimestampRow)
	}
	for _, row := range l.EEGChannels {
		if !inRange(row) {
			return fmt.Errorf("board %d: eeg channel row %d out of range", l.BoardID, row)
		}
	}
	return nil
}

// Registry holds the known layouts, keyed by board identifier.
type Registry struct {
	mu      sync.RWMutex
	layouts map[int]ChannelLayout
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{layouts: make(map[int]ChannelLayout)}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry built from the embedded board descriptors.
// The embedded file is part of the binary, so a parse failure is a build
// defect and panics.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := Parse(boardsJSON)
		if err != nil {
			panic("boards: invalid embedded descriptors: " + err.Error())
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// Parse builds a registry from a JSON array of layouts.
func Parse(data []byte) (*Registry, error) {
	var layouts []ChannelLayout
	if err := json.Unmarshal(data, &layouts); err != nil {
		return nil, fmt.Errorf("failed to parse board descriptors: %w", err)
	}
	r := NewRegistry()
	for _, l := range layouts {
		if err := r.Register(l); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a layout after validating it.
func (r *Registry) Register(l ChannelLayout) error {
	if err := l.Validate(); err != nil {
		return err
	}
	l.EEGChannels = append([]int(nil), l.EEGChannels...)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layouts[l.BoardID] = l
	return nil
}

// Lookup returns the layout for id.
func (r *Registry) Lookup(id int) (ChannelLayout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.layouts[id]
	if !ok {
		return ChannelLayout{}, fmt.Errorf("%w: %d", ErrUnknownBoard, id)
	}
	l.EEGChannels = append([]int(nil), l.EEGChannels...)
	return l, nil
}

// IDs returns the registered board identifiers in ascending order.
func (r *Registry) IDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.layouts))
	for id := range r.layouts {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
