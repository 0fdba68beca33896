// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package lifecycle enforces the tenant collection retention window.
//
// Collections are deleted two ways: a one-shot deletion scheduled per tenant
// when its session ends, and a periodic sweep that catches collections the
// scheduled path missed (a crash before the timer fired, or a tenant that
// never ended its session).
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/docbrief/core"
	"github.com/poiesic/docbrief/storage"
)

const (
	// defaultRetention is how long a collection lives after creation.
	defaultRetention = 15 * time.Minute

	// defaultSweepInterval is how often the background sweep runs.
	defaultSweepInterval = 15 * time.Minute
)

// Manager schedules and sweeps expired tenant collections.
type Manager struct {
	store         storage.CollectionStore
	pool          *ants.Pool
	retention     time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Manager.
type Option func(*Manager) error

// WithRetention overrides the collection retention window.
func WithRetention(retention time.Duration) Option {
	return func(m *Manager) error {
		if retention <= 0 {
			return fmt.Errorf("%w: retention must be positive, got %v", core.ErrConfiguration, retention)
		}
		m.retention = retention
		return nil
	}
}

// WithSweepInterval overrides the background sweep interval.
func WithSweepInterval(interval time.Duration) Option {
	return func(m *Manager) error {
		if interval <= 0 {
			return fmt.Errorf("%w: sweep interval must be positive, got %v", core.ErrConfiguration, interval)
		}
		m.sweepInterval = interval
		return nil
	}
}

// New creates a Manager.
func New(store storage.CollectionStore, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", core.ErrConfiguration)
	}

	pool, err := ants.NewPool(1)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		store:         store,
		pool:          pool,
		retention:     defaultRetention,
		sweepInterval: defaultSweepInterval,
		timers:        make(map[string]*time.Timer),
		logger:        slog.Default().With("component", "lifecycle"),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			pool.Release()
			return nil, err
		}
	}
	return m, nil
}

// Schedule arranges the tenant's collection to be deleted after the
// retention window. Scheduling again resets the timer.
func (m *Manager) Schedule(tenantID string) error {
	if err := core.ValidateTenantID(tenantID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if timer, ok := m.timers[tenantID]; ok {
		timer.Stop()
	}
	m.timers[tenantID] = time.AfterFunc(m.retention, func() {
		m.mu.Lock()
		delete(m.timers, tenantID)
		m.mu.Unlock()

		if err := m.pool.Submit(func() { m.deleteCollection(tenantID) }); err != nil {
			m.logger.Error("scheduled deletion submit failed", "tenant", tenantID, "err", err)
		}
	})

	m.logger.Debug("scheduled collection deletion", "tenant", tenantID, "after", m.retention)
	return nil
}

// Start launches the periodic sweep. Returns an error if already started.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return fmt.Errorf("%w: lifecycle manager already started", core.ErrConfiguration)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep(ctx)
			}
		}
	}()

	m.logger.Info("lifecycle sweep started", "interval", m.sweepInterval, "retention", m.retention)
	return nil
}

// Sweep deletes every collection older than the retention window.
// A failure on one tenant is logged and does not stop the sweep.
// Returns the number of collections deleted.
func (m *Manager) Sweep(ctx context.Context) int {
	metas, err := m.store.ListCollections(ctx)
	if err != nil {
		m.logger.Error("sweep failed to list collections", "err", err)
		return 0
	}

	now := time.Now().UTC()
	deleted := 0
	for _, meta := range metas {
		if meta.Age(now) <= m.retention {
			continue
		}
		if err := m.store.DeleteCollection(ctx, meta.TenantId); err != nil {
			m.logger.Error("sweep failed to delete collection", "tenant", meta.TenantId, "err", err)
			continue
		}
		deleted++
		m.logger.Info("swept expired collection", "tenant", meta.TenantId, "age", meta.Age(now))
	}
	return deleted
}

// Stop halts the sweep, cancels pending scheduled deletions, and releases
// the worker pool. The manager should not be used after calling Stop.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	done := m.done
	m.done = nil
	for tenantID, timer := range m.timers {
		timer.Stop()
		delete(m.timers, tenantID)
	}
	m.mu.Unlock()

	if done != nil {
		<-done
	}
	m.pool.Release()
}

// deleteCollection runs a scheduled deletion.
func (m *Manager) deleteCollection(tenantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := m.store.DeleteCollection(ctx, tenantID); err != nil {
		m.logger.Error("scheduled deletion failed", "tenant", tenantID, "err", err)
		return
	}
	m.logger.Info("deleted collection after retention window", "tenant", tenantID)
}
