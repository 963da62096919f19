package table

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/evenkeel/SatoshiStacks/internal/poker"
)

var ErrTableNotFound = errors.New("table: table not found")

// Manager owns every table runtime in the process. Tables are
// independent; the manager only maps ids to engines.
type Manager interface {
	CreateTable(options *Options) TableEngine
	GetTable(tableID string) (TableEngine, error)
	ListTableIDs() []string
	ReleaseTable(tableID string) error
	Close()
}

type manager struct {
	lock     sync.RWMutex
	tables   map[string]TableEngine
	recorder Recorder
	logger   zerolog.Logger
	rng      poker.Rand
}

type ManagerOpt func(*manager)

func NewManager(opts ...ManagerOpt) Manager {
	m := &manager{
		tables:   make(map[string]TableEngine),
		recorder: NopRecorder{},
		logger:   zerolog.Nop(),
		rng:      poker.CryptoRand{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func WithManagerRecorder(recorder Recorder) ManagerOpt {
	return func(m *manager) {
		m.recorder = recorder
	}
}

func WithManagerLogger(logger zerolog.Logger) ManagerOpt {
	return func(m *manager) {
		m.logger = logger
	}
}

func WithManagerRand(rng poker.Rand) ManagerOpt {
	return func(m *manager) {
		m.rng = rng
	}
}

func (m *manager) CreateTable(options *Options) TableEngine {
	id := uuid.New().String()
	engine := NewTableEngine(id, options,
		WithRecorder(m.recorder),
		WithLogger(m.logger.With().Str("table_id", id).Logger()),
		WithRand(m.rng),
	)

	m.lock.Lock()
	m.tables[id] = engine
	m.lock.Unlock()

	return engine
}

func (m *manager) GetTable(tableID string) (TableEngine, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	engine, ok := m.tables[tableID]
	if !ok {
		return nil, ErrTableNotFound
	}
	return engine, nil
}

func (m *manager) ListTableIDs() []string {
	m.lock.RLock()
	defer m.lock.RUnlock()

	ids := make([]string, 0, len(m.tables))
	for id := range m.tables {
		ids = append(ids, id)
	}
	return ids
}

func (m *manager) ReleaseTable(tableID string) error {
	m.lock.Lock()
	engine, ok := m.tables[tableID]
	delete(m.tables, tableID)
	m.lock.Unlock()

	if !ok {
		return ErrTableNotFound
	}
	engine.Close()
	return nil
}

func (m *manager) Close() {
	m.lock.Lock()
	engines := make([]TableEngine, 0, len(m.tables))
	for _, engine := range m.tables {
		engines = append(engines, engine)
	}
	m.tables = make(map[string]TableEngine)
	m.lock.Unlock()

	for _, engine := range engines {
		engine.Close()
	}
}
