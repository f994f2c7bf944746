package particle

import (
	"math/rand"
	"time"
)

// DefaultMaxParticles caps the live set so a burst of movement cannot grow
// the simulation without bound.
const DefaultMaxParticles = 4000

// System owns the live particles and advances them once per frame.
// It is not safe for concurrent use; the frame loop is its only caller.
type System struct {
	pool    *Pool
	live    []*Particle
	pooled  bool
	maxLive int
}

// Config holds options for a particle System.
type Config struct {
	// Seed for the random source; zero seeds from the clock.
	Seed int64
	// DisablePool allocates a fresh particle for every emission.
	DisablePool bool
	// MaxParticles bounds the live set (default: DefaultMaxParticles).
	MaxParticles int
}

// NewSystem creates a particle system.
func NewSystem(cfg Config) *System {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	maxLive := cfg.MaxParticles
	if maxLive <= 0 {
		maxLive = DefaultMaxParticles
	}

	return &System{
		pool:    NewPool(rand.New(rand.NewSource(seed))),
		pooled:  !cfg.DisablePool,
		maxLive: maxLive,
	}
}

// Emit spawns count particles of type t at (x, y). magnitude scales size
// and speed, typically the displacement that triggered the emission.
func (s *System) Emit(t EffectType, x, y, magnitude float64, count int) {
	if !t.Valid() {
		return
	}
	for i := 0; i < count && len(s.live) < s.maxLive; i++ {
		s.live = append(s.live, s.pool.Acquire(t, x, y, magnitude))
	}
}

// Update advances every live particle and removes the dead ones.
func (s *System) Update() {
	kept := s.live[:0]
	for _, p := range s.live {
		p.Update()
		if p.Dead() {
			if s.pooled {
				s.pool.Release(p)
			}
			continue
		}
		kept = append(kept, p)
	}

	// clear the tail so released particles are only referenced by the pool
	for i := len(kept); i < len(s.live); i++ {
		s.live[i] = nil
	}
	s.live = kept
}

// Draw renders every live particle onto c.
func (s *System) Draw(c Canvas) {
	for _, p := range s.live {
		p.Draw(c)
	}
	c.SetAlpha(1)
}

// Len returns the number of live particles.
func (s *System) Len() int {
	return len(s.live)
}

// Particles returns the live particles. The slice is only valid until the
// next Emit or Update.
func (s *System) Particles() []*Particle {
	return s.live
}

// Reset drops every live particle.
func (s *System) Reset() {
	for i, p := range s.live {
		if s.pooled {
			s.pool.Release(p)
		}
		s.live[i] = nil
	}
	s.live = s.live[:0]
}

// Pool exposes the underlying pool.
func (s *System) Pool() *Pool {
	return s.pool
}
