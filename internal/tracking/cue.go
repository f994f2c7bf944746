package tracking

// Cue is a sound played when a marker emits.
type Cue interface {
	// Playing reports whether the clip is currently audible.
	Playing() bool
	// Play starts the clip from the beginning.
	Play() error
}

// Trigger plays c unless it is already playing, so at most one playback
// overlaps. It reports whether playback was started.
func Trigger(c Cue) (bool, error) {
	if c == nil || c.Playing() {
		return false, nil
	}
	if err := c.Play(); err != nil {
		return false, err
	}
	return true, nil
}
