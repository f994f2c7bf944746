package particle

import "math/rand"

// Pool recycles dead particles per effect type so heavy emission does not
// allocate every frame.
type Pool struct {
	rng  *rand.Rand
	free [numEffects][]*Particle

	allocated int
}

// NewPool creates a pool drawing randomness from rng.
func NewPool(rng *rand.Rand) *Pool {
	return &Pool{rng: rng}
}

// Acquire returns a particle of type t spawned at (x, y), reusing a free
// instance when one is available.
func (p *Pool) Acquire(t EffectType, x, y, magnitude float64) *Particle {
	var part *Particle
	if free := p.free[t]; len(free) > 0 {
		part = free[len(free)-1]
		free[len(free)-1] = nil
		p.free[t] = free[:len(free)-1]
	} else {
		part = &Particle{}
		p.allocated++
	}

	part.Reset(p.rng, t, x, y, magnitude)
	return part
}

// Release returns a particle to its type's free list.
func (p *Pool) Release(part *Particle) {
	if part == nil || !part.Type.Valid() {
		return
	}
	p.free[part.Type] = append(p.free[part.Type], part)
}

// Free returns the number of idle particles held for type t.
func (p *Pool) Free(t EffectType) int {
	return len(p.free[t])
}

// Allocated returns how many particles the pool has constructed in total.
func (p *Pool) Allocated() int {
	return p.allocated
}
