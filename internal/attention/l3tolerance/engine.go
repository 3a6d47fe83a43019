package l3tolerance

import "sync"

// Engine memoises effective thresholds per observer. The cache is dropped
// when the configuration, the observer footprints or the agent count change.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	sizes  map[string]float64
	agents int
	cache  map[string]Thresholds

	computations int // for tests
}

// NewEngine creates an engine for cfg.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:   cfg,
		sizes: make(map[string]float64),
		cache: make(map[string]Thresholds),
	}
}

// Config returns the active configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetConfig replaces the configuration.
func (e *Engine) SetConfig(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.invalidate()
}

// SetVolumeSizes replaces the footprint table (observer id → m²).
func (e *Engine) SetVolumeSizes(sizes map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sizes = make(map[string]float64, len(sizes))
	for id, s := range sizes {
		e.sizes[id] = s
	}
	e.invalidate()
}

// SetAgentCount records the number of tracked agents. The cache is only
// dropped when the count actually changes.
func (e *Engine) SetAgentCount(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n == e.agents {
		return
	}
	e.agents = n
	e.invalidate()
}

func (e *Engine) invalidate() {
	clear(e.cache)
}

// For returns the effective thresholds for observer id. Unknown ids and the
// empty id get the neutral context.
func (e *Engine) For(id string) Thresholds {
	e.mu.Lock()
	defer e.mu.Unlock()
	if th, ok := e.cache[id]; ok {
		return th
	}
	th := e.cfg.Effective(e.contextFor(id))
	e.cache[id] = th
	e.computations++
	return th
}

// Neutral returns the thresholds for the neutral context.
func (e *Engine) Neutral() Thresholds {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Effective(Context{})
}

func (e *Engine) contextFor(id string) Context {
	size := e.sizes[id]
	if size <= 0 {
		return Context{}
	}
	return Context{
		VolumeSize:   size,
		AgentDensity: float64(e.agents) / size,
	}
}
