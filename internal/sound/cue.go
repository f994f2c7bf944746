package sound

import (
	"sync"

	"github.com/hajimehoshi/ebiten/v2/audio"
)

type player interface {
	IsPlaying() bool
	Rewind() error
	Play()
}

// Cue plays one clip. It satisfies tracking.Cue.
type Cue struct {
	mu     sync.Mutex
	player player
}

// Context returns the process-wide audio context, creating it at rate on
// first use. An existing context keeps its own rate.
func Context(rate int) *audio.Context {
	if ctx := audio.CurrentContext(); ctx != nil {
		return ctx
	}
	return audio.NewContext(rate)
}

// NewCue prepares clip for playback on ctx, resampling if needed.
func NewCue(ctx *audio.Context, clip *Clip) *Cue {
	clip = clip.Resample(ctx.SampleRate())
	return &Cue{player: ctx.NewPlayerFromBytes(clip.PCM)}
}

// Playing reports whether the clip is audible.
func (c *Cue) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player.IsPlaying()
}

// Play restarts the clip from the beginning.
func (c *Cue) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.player.Rewind(); err != nil {
		return err
	}
	c.player.Play()
	return nil
}

// Silent is a cue that never plays, used when audio is disabled or no
// output device exists.
type Silent struct{}

func (Silent) Playing() bool { return false }
func (Silent) Play() error   { return nil }
