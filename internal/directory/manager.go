// Package directory keeps the set of printers jobs can be sent to.
package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orrn/remoteprint/internal/config"
	"github.com/orrn/remoteprint/internal/core"
	"github.com/orrn/remoteprint/internal/db"
)

var (
	ErrPrinterNotFound      = errors.New("printer not found")
	ErrPrinterAlreadyExists = errors.New("printer already exists")
)

// StatusSource reports the live state of a printer, usually the print service.
type StatusSource interface {
	GetPrinter(ctx context.Context, id int64) (*core.Printer, error)
}

// StatusNotifier is told when a printer goes online or offline.
type StatusNotifier interface {
	SendPrinterStatusChange(ctx context.Context, printerID int64, name string, wasOnline, isOnline bool)
}

// Invalidator drops cached copies of a printer after it changes.
type Invalidator interface {
	Invalidate(ctx context.Context, id int64) error
}

// Manager is a SQLite-backed printer registry with an in-memory copy of every
// printer. Reads never touch the database.
type Manager struct {
	db       *sql.DB
	config   config.PrintersConfig
	source   StatusSource
	notifier StatusNotifier
	printers map[int64]*core.Printer
	mu       sync.RWMutex

	invalidators []Invalidator
	invMu        sync.RWMutex

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
}

type Option func(*Manager)

func WithStatusSource(source StatusSource) Option {
	return func(m *Manager) {
		m.source = source
	}
}

func WithNotifier(notifier StatusNotifier) Option {
	return func(m *Manager) {
		m.notifier = notifier
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// AddInvalidator registers a cache to be cleared whenever a printer is
// added, changed, or removed, including by the refresh loop.
func (m *Manager) AddInvalidator(inv Invalidator) {
	m.invMu.Lock()
	defer m.invMu.Unlock()
	m.invalidators = append(m.invalidators, inv)
}

func (m *Manager) invalidate(ctx context.Context, id int64) {
	m.invMu.RLock()
	defer m.invMu.RUnlock()
	for _, inv := range m.invalidators {
		if err := inv.Invalidate(ctx, id); err != nil {
			m.logger.Warn("failed to invalidate cached printer", zap.Int64("printer_id", id), zap.Error(err))
		}
	}
}

func NewManager(database *sql.DB, cfg config.PrintersConfig, opts ...Option) *Manager {
	m := &Manager{
		db:       database,
		config:   cfg,
		printers: make(map[int64]*core.Printer),
		stopCh:   make(chan struct{}),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start loads the registry and, when a status source is configured, begins
// refreshing online flags every RefreshInterval.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.Load(ctx); err != nil {
		return err
	}

	if m.source != nil && m.config.RefreshInterval > 0 {
		m.wg.Add(1)
		go m.refreshLoop()
	}
	return nil
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// Load replaces the in-memory registry with the contents of the printers table.
func (m *Manager) Load(ctx context.Context) error {
	rows, err := m.db.QueryContext(ctx, db.ListPrinters)
	if err != nil {
		return fmt.Errorf("failed to load printers: %w", err)
	}
	defer rows.Close()

	loaded := make(map[int64]*core.Printer)
	for rows.Next() {
		row, err := db.ScanPrinter(rows)
		if err != nil {
			return fmt.Errorf("failed to scan printer: %w", err)
		}
		p, err := fromRow(row)
		if err != nil {
			m.logger.Warn("skipping printer with unreadable capabilities",
				zap.Int64("printer_id", row.ID), zap.Error(err))
			continue
		}
		loaded[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load printers: %w", err)
	}

	m.mu.Lock()
	m.printers = loaded
	m.mu.Unlock()

	for id := range loaded {
		m.invalidate(ctx, id)
	}
	return nil
}

// Get returns a copy of the printer so callers cannot mutate the registry.
func (m *Manager) Get(ctx context.Context, id int64) (*core.Printer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.printers[id]
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrPrinterNotFound, id)
	}
	return core.NewPrinter(p.ID, p.Name, p.Online, p.Capabilities), nil
}

func (m *Manager) List() []*core.Printer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	printers := make([]*core.Printer, 0, len(m.printers))
	for _, p := range m.printers {
		printers = append(printers, core.NewPrinter(p.ID, p.Name, p.Online, p.Capabilities))
	}
	sort.Slice(printers, func(i, j int) bool {
		return printers[i].ID < printers[j].ID
	})
	return printers
}

func (m *Manager) Add(ctx context.Context, p *core.Printer) error {
	if err := m.add(ctx, p); err != nil {
		return err
	}
	m.invalidate(ctx, p.ID)
	return nil
}

func (m *Manager) add(ctx context.Context, p *core.Printer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.printers[p.ID]; exists {
		return fmt.Errorf("%w: %d", ErrPrinterAlreadyExists, p.ID)
	}

	capsJSON, err := json.Marshal(p.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to encode capabilities: %w", err)
	}

	if _, err := m.db.ExecContext(ctx, db.InsertPrinter,
		p.ID, p.Name, p.Online, string(capsJSON)); err != nil {
		return fmt.Errorf("failed to insert printer: %w", err)
	}

	m.printers[p.ID] = core.NewPrinter(p.ID, p.Name, p.Online, p.Capabilities)
	return nil
}

// Import registers, or re-registers, a printer exactly as the status source
// describes it.
func (m *Manager) Import(ctx context.Context, id int64) (*core.Printer, error) {
	if m.source == nil {
		return nil, errors.New("no printer status source configured")
	}

	live, err := m.source.GetPrinter(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch printer %d: %w", id, err)
	}

	capsJSON, err := json.Marshal(live.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("failed to encode capabilities: %w", err)
	}

	m.mu.Lock()
	if _, err := m.db.ExecContext(ctx, db.UpsertPrinter,
		id, live.Name, live.Online, string(capsJSON)); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to store printer: %w", err)
	}
	p := core.NewPrinter(id, live.Name, live.Online, live.Capabilities)
	m.printers[id] = p
	m.mu.Unlock()

	m.invalidate(ctx, id)
	return core.NewPrinter(p.ID, p.Name, p.Online, p.Capabilities), nil
}

// Update replaces the name and capabilities of a registered printer. The
// online flag is left to SetOnline and the refresh loop.
func (m *Manager) Update(ctx context.Context, p *core.Printer) error {
	if err := m.update(ctx, p); err != nil {
		return err
	}
	m.invalidate(ctx, p.ID)
	return nil
}

func (m *Manager) update(ctx context.Context, p *core.Printer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.printers[p.ID]
	if !exists {
		return fmt.Errorf("%w: %d", ErrPrinterNotFound, p.ID)
	}

	capsJSON, err := json.Marshal(p.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to encode capabilities: %w", err)
	}

	if _, err := m.db.ExecContext(ctx, db.UpdatePrinter, p.Name, string(capsJSON), p.ID); err != nil {
		return fmt.Errorf("failed to update printer: %w", err)
	}

	m.printers[p.ID] = core.NewPrinter(p.ID, p.Name, current.Online, p.Capabilities)
	return nil
}

func (m *Manager) Remove(ctx context.Context, id int64) error {
	if err := m.remove(ctx, id); err != nil {
		return err
	}
	m.invalidate(ctx, id)
	return nil
}

func (m *Manager) remove(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.printers[id]; !exists {
		return fmt.Errorf("%w: %d", ErrPrinterNotFound, id)
	}

	if _, err := m.db.ExecContext(ctx, db.DeletePrinter, id); err != nil {
		return fmt.Errorf("failed to delete printer: %w", err)
	}

	delete(m.printers, id)
	return nil
}

// SetOnline flips a printer's online flag, persisting and announcing changes.
func (m *Manager) SetOnline(ctx context.Context, id int64, online bool) error {
	m.mu.Lock()
	p, exists := m.printers[id]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrPrinterNotFound, id)
	}
	was := p.Online
	p.Online = online
	name := p.Name
	m.mu.Unlock()

	if _, err := m.db.ExecContext(ctx, db.UpdatePrinterStatus, online, id); err != nil {
		return fmt.Errorf("failed to update printer status: %w", err)
	}

	if was != online {
		m.invalidate(ctx, id)
		m.logger.Info("printer status changed",
			zap.Int64("printer_id", id), zap.Bool("online", online))
		if m.notifier != nil {
			m.notifier.SendPrinterStatusChange(ctx, id, name, was, online)
		}
	}
	return nil
}

// Refresh asks the status source about every registered printer. A printer
// the source cannot report on is marked offline.
func (m *Manager) Refresh(ctx context.Context) {
	if m.source == nil {
		return
	}

	m.mu.RLock()
	ids := make([]int64, 0, len(m.printers))
	for id := range m.printers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		live, err := m.source.GetPrinter(ctx, id)
		if err != nil {
			m.logger.Warn("printer status lookup failed", zap.Int64("printer_id", id), zap.Error(err))
			if err := m.SetOnline(ctx, id, false); err != nil && !errors.Is(err, ErrPrinterNotFound) {
				m.logger.Error("failed to mark printer offline", zap.Int64("printer_id", id), zap.Error(err))
			}
			continue
		}

		if !isZero(live.Capabilities) {
			m.mu.RLock()
			current, exists := m.printers[id]
			var name string
			if exists {
				name = current.Name
			}
			m.mu.RUnlock()
			if exists {
				if err := m.Update(ctx, core.NewPrinter(id, name, live.Online, live.Capabilities)); err != nil {
					m.logger.Error("failed to store capabilities", zap.Int64("printer_id", id), zap.Error(err))
				}
			}
		}

		if err := m.SetOnline(ctx, id, live.Online); err != nil && !errors.Is(err, ErrPrinterNotFound) {
			m.logger.Error("failed to store printer status", zap.Int64("printer_id", id), zap.Error(err))
		}
	}
}

func (m *Manager) refreshLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.RefreshInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-m.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	m.Refresh(ctx)

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}

func fromRow(row *db.Printer) (*core.Printer, error) {
	var caps core.Capabilities
	if row.CapabilitiesJSON != "" {
		if err := json.Unmarshal([]byte(row.CapabilitiesJSON), &caps); err != nil {
			return nil, err
		}
	}
	return core.NewPrinter(row.ID, row.Name, row.Online, caps), nil
}

func isZero(c core.Capabilities) bool {
	return c.MaxCopies == 0 && len(c.Papers) == 0 && len(c.Medias) == 0 && len(c.DPIs) == 0 && !c.Color
}
