package execmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/flowkernel/engine/config"
	"github.com/flowkernel/engine/observability"
)

// kernelKey identifies one KernelManager: kernel name plus the group id it
// is scoped to.
type kernelKey struct {
	name    string
	groupID string
}

// KernelManagerPool hands out one KernelManager per (kernel_name, group_id)
// and maintains a reverse lookup by connection-file path for restart/
// shutdown requests that only know the path, following the same
// RWMutex-guarded registry shape as PersistentManagerPool.
type KernelManagerPool struct {
	settings config.Settings
	specs    *condaKernelSpecCache
	observer observability.Observer

	mu         sync.RWMutex
	managers   map[kernelKey]*KernelManager
	byConnFile map[string]kernelKey
}

// KernelManagerPoolOption configures optional KernelManagerPool behaviour.
type KernelManagerPoolOption func(*KernelManagerPool)

// WithKernelPoolObserver makes the pool report manager_spawned and
// manager_evicted events for every Get/Evict/Shutdown it performs.
func WithKernelPoolObserver(observer observability.Observer) KernelManagerPoolOption {
	return func(p *KernelManagerPool) {
		p.observer = observer
	}
}

func NewKernelManagerPool(settings config.Settings, opts ...KernelManagerPoolOption) *KernelManagerPool {
	p := &KernelManagerPool{
		settings:   settings,
		specs:      newCondaKernelSpecCache(settings),
		managers:   make(map[kernelKey]*KernelManager),
		byConnFile: make(map[string]kernelKey),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *KernelManagerPool) notify(eventType observability.EventType, level observability.Level, groupID string, data map[string]any) {
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
		Source:    "execmgr.KernelManagerPool",
		Data:      data,
	})
}

// Get returns the kernel manager for (kernelName, groupID), resolving the
// kernel spec via the Conda cache and starting a fresh subprocess if none
// exists or the existing one has died.
func (p *KernelManagerPool) Get(ctx context.Context, kernelName, groupID string) (*KernelManager, error) {
	key := kernelKey{name: kernelName, groupID: groupID}

	p.mu.RLock()
	m, ok := p.managers[key]
	p.mu.RUnlock()
	if ok && m.IsAlive() {
		return m, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.managers[key]; ok && m.IsAlive() {
		return m, nil
	}

	spec, err := p.specs.resolve(ctx, kernelName)
	if err != nil {
		return nil, fmt.Errorf("execmgr: resolve kernel spec %q: %w", kernelName, err)
	}

	m = NewKernelManager(spec, groupID, p.settings)
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	p.managers[key] = m
	p.byConnFile[m.ConnectionFilePath()] = key
	p.notify(observability.EventManagerSpawned, observability.LevelInfo, groupID, map[string]any{"kernel_name": kernelName})
	return m, nil
}

// ByConnectionFile looks up the manager that was started with the given
// connection-file path, for restart/shutdown requests that address a
// kernel without knowing its group key.
func (p *KernelManagerPool) ByConnectionFile(connFile string) (*KernelManager, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	key, ok := p.byConnFile[connFile]
	if !ok {
		return nil, false
	}
	m, ok := p.managers[key]
	return m, ok
}

// Evict stops and removes the manager for (kernelName, groupID).
func (p *KernelManagerPool) Evict(kernelName, groupID string) {
	key := kernelKey{name: kernelName, groupID: groupID}

	p.mu.Lock()
	m, ok := p.managers[key]
	if ok {
		delete(p.managers, key)
		delete(p.byConnFile, m.ConnectionFilePath())
	}
	p.mu.Unlock()

	if ok {
		m.Stop()
		p.notify(observability.EventManagerEvicted, observability.LevelInfo, groupID, map[string]any{"kernel_name": kernelName})
	}
}

// Shutdown stops every kernel currently held by the pool.
func (p *KernelManagerPool) Shutdown() {
	p.mu.Lock()
	type stopped struct {
		manager *KernelManager
		key     kernelKey
	}
	managers := make([]stopped, 0, len(p.managers))
	for k, m := range p.managers {
		managers = append(managers, stopped{manager: m, key: k})
		delete(p.managers, k)
	}
	p.byConnFile = make(map[string]kernelKey)
	p.mu.Unlock()

	for _, s := range managers {
		s.manager.Stop()
		p.notify(observability.EventManagerEvicted, observability.LevelInfo, s.key.groupID, map[string]any{"kernel_name": s.key.name})
	}
}

// condaSpecTTL bounds how long a discovered kernel spec is trusted before
// the next resolve re-shells out to conda, per the spec's "caching for
// 60s".
const condaSpecTTL = 60 * time.Second

// condaKernelSpecCache discovers Conda environments and synthesises kernel
// specs on the fly, following memory/cache.go's index bookkeeping shape
// adapted to a single fetchedAt expiry field: kernel specs are process-local
// and never persisted, so there is no store/dirty/removed bookkeeping to
// carry over, only the freshness check.
type condaKernelSpecCache struct {
	settings config.Settings

	mu        sync.RWMutex
	specs     map[string]KernelSpec
	fetchedAt time.Time
}

func newCondaKernelSpecCache(settings config.Settings) *condaKernelSpecCache {
	return &condaKernelSpecCache{
		settings: settings,
		specs:    make(map[string]KernelSpec),
	}
}

// resolve returns the kernel spec for name, refreshing the cache first if
// it is empty or older than condaSpecTTL.
func (c *condaKernelSpecCache) resolve(ctx context.Context, name string) (KernelSpec, error) {
	c.mu.RLock()
	spec, ok := c.specs[name]
	fresh := ok && time.Since(c.fetchedAt) < condaSpecTTL
	c.mu.RUnlock()
	if fresh {
		return spec, nil
	}

	if err := c.refresh(ctx); err != nil {
		return KernelSpec{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok = c.specs[name]
	if !ok {
		return KernelSpec{}, fmt.Errorf("execmgr: no conda environment named %q", name)
	}
	return spec, nil
}

type condaEnvListing struct {
	Envs []string `json:"envs"`
}

// refresh shells out to `conda env list --json` and synthesises one kernel
// spec per discovered environment.
func (c *condaKernelSpecCache) refresh(ctx context.Context) error {
	condaBin := c.settings.ResolveConda()
	cmd := exec.CommandContext(ctx, condaBin, "env", "list", "--json")
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("execmgr: conda env list: %w", err)
	}

	var listing condaEnvListing
	if err := json.Unmarshal(output, &listing); err != nil {
		return fmt.Errorf("execmgr: parse conda env list: %w", err)
	}

	specs := make(map[string]KernelSpec, len(listing.Envs))
	for _, envPath := range listing.Envs {
		name := kernelNameFromEnvPath(envPath)
		if name == "" {
			continue
		}
		specs[name] = KernelSpec{
			Name:        name,
			DisplayName: name,
			Argv: []string{
				condaBin, "run", "-p", envPath, "--no-capture-output",
				c.settings.ResolvePython(), "-m", "ipykernel_launcher",
				"-f", "{connection_file}",
			},
		}
	}

	c.mu.Lock()
	c.specs = specs
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return nil
}

func kernelNameFromEnvPath(envPath string) string {
	for i := len(envPath) - 1; i >= 0; i-- {
		if envPath[i] == '/' {
			return envPath[i+1:]
		}
	}
	return envPath
}
