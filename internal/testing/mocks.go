package testing

import (
	"context"
	"sync"

	"github.com/aristath/frontier/internal/modules/marketdata"
)

// MockDataSource serves a fixed dataset and counts refreshes.
type MockDataSource struct {
	mu        sync.Mutex
	dataset   *marketdata.Dataset
	err       error
	refreshes int
}

// NewMockDataSource creates a data source backed by NewDataset.
func NewMockDataSource() *MockDataSource {
	return &MockDataSource{dataset: NewDataset()}
}

// SetDataset replaces the dataset.
func (m *MockDataSource) SetDataset(ds *marketdata.Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dataset = ds
}

// SetError makes every call fail with err.
func (m *MockDataSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Refreshes returns how often Refresh was called.
func (m *MockDataSource) Refreshes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshes
}

// Dataset returns the configured dataset.
func (m *MockDataSource) Dataset(ctx context.Context) (*marketdata.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.dataset, nil
}

// Refresh pretends to download the dataset again.
func (m *MockDataSource) Refresh(ctx context.Context) (*marketdata.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.refreshes++
	return m.dataset, nil
}

// Preview returns the head of both tables.
func (m *MockDataSource) Preview(ctx context.Context, n int) (*marketdata.Preview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return marketdata.NewPreview(m.dataset, n), nil
}

// Status reports no stored refreshes.
func (m *MockDataSource) Status(ctx context.Context) ([]marketdata.RefreshInfo, error) {
	return []marketdata.RefreshInfo{}, nil
}
