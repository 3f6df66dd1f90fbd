package execmgr

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/flowkernel/engine/config"
	"github.com/flowkernel/engine/observability"
)

// persistentKey identifies one PersistentManager: the argv that launches it
// and the group id it is scoped to, mirroring orchestrate/hub's per-agent-id
// registry keyed by a single string.
type persistentKey struct {
	argv    string
	groupID string
}

func newPersistentKey(argv []string, groupID string) persistentKey {
	return persistentKey{argv: strings.Join(argv, "\x00"), groupID: groupID}
}

// PersistentManagerPool hands out one PersistentManager per (argv, group
// id), starting it lazily and reusing it across calls until evicted or
// stopped. Reads take the fast RLock path; a miss upgrades to a write lock
// with a double-checked create, the same shape as hub.hub's agents map.
type PersistentManagerPool struct {
	settings config.Settings
	observer observability.Observer

	mu       sync.RWMutex
	managers map[persistentKey]*PersistentManager
}

// PersistentManagerPoolOption configures optional PersistentManagerPool
// behaviour, following the same functional-options shape as
// PersistentManagerOption.
type PersistentManagerPoolOption func(*PersistentManagerPool)

// WithPersistentPoolObserver makes the pool report manager_spawned and
// manager_evicted events for every Get/Evict/Shutdown it performs.
func WithPersistentPoolObserver(observer observability.Observer) PersistentManagerPoolOption {
	return func(p *PersistentManagerPool) {
		p.observer = observer
	}
}

func NewPersistentManagerPool(settings config.Settings, opts ...PersistentManagerPoolOption) *PersistentManagerPool {
	p := &PersistentManagerPool{
		settings: settings,
		managers: make(map[persistentKey]*PersistentManager),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *PersistentManagerPool) notify(eventType observability.EventType, level observability.Level, groupID string, data map[string]any) {
	if p.observer == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["group_id"] = groupID
	p.observer.OnEvent(context.Background(), observability.Event{
		Type:      eventType,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "execmgr.PersistentManagerPool",
		Data:      data,
	})
}

// Get returns the manager for (argv, groupID), starting one if none exists
// or the existing one has died.
func (p *PersistentManagerPool) Get(ctx context.Context, argv []string, groupID string) (*PersistentManager, error) {
	key := newPersistentKey(argv, groupID)

	p.mu.RLock()
	m, ok := p.managers[key]
	p.mu.RUnlock()
	if ok && m.IsPersistentAlive() {
		return m, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.managers[key]; ok && m.IsPersistentAlive() {
		return m, nil
	}

	m = NewPersistentManager(argv, groupID, p.settings)
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	p.managers[key] = m
	p.notify(observability.EventManagerSpawned, observability.LevelInfo, groupID, map[string]any{"argv": argv})
	return m, nil
}

// Evict stops and removes the manager for (argv, groupID), if any. The pool
// lock is released before Stop is called so subprocess teardown never holds
// up unrelated Get calls.
func (p *PersistentManagerPool) Evict(argv []string, groupID string) {
	key := newPersistentKey(argv, groupID)

	p.mu.Lock()
	m, ok := p.managers[key]
	if ok {
		delete(p.managers, key)
	}
	p.mu.Unlock()

	if ok {
		m.Stop()
		p.notify(observability.EventManagerEvicted, observability.LevelInfo, groupID, nil)
	}
}

// Shutdown stops every manager currently held by the pool.
func (p *PersistentManagerPool) Shutdown() {
	p.mu.Lock()
	type stopped struct {
		manager *PersistentManager
		groupID string
	}
	managers := make([]stopped, 0, len(p.managers))
	for k, m := range p.managers {
		managers = append(managers, stopped{manager: m, groupID: k.groupID})
		delete(p.managers, k)
	}
	p.mu.Unlock()

	for _, s := range managers {
		s.manager.Stop()
		p.notify(observability.EventManagerEvicted, observability.LevelInfo, s.groupID, nil)
	}
}
