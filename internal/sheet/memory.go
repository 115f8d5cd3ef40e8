package sheet

import (
	"context"
	"sync"
)

// Memory keeps tabs in process. Number formats are ignored.
type Memory struct {
	mu   sync.Mutex
	tabs map[string]Grid
}

// NewMemory creates an empty in-process workbook.
func NewMemory() *Memory {
	return &Memory{tabs: make(map[string]Grid)}
}

// Load returns a copy of the tab.
func (m *Memory) Load(_ context.Context, sheet string) (Grid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tabs[sheet].Clone(), nil
}

// Apply writes cells into the tab.
func (m *Memory) Apply(_ context.Context, sheet string, cells []Cell) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tabs[sheet] = ApplyCells(m.tabs[sheet], cells)
	return nil
}

// Sheets lists the tabs that exist.
func (m *Memory) Sheets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.tabs))
	for name := range m.tabs {
		names = append(names, name)
	}
	return names
}
