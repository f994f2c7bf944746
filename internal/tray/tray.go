// Package tray provides the system tray menu of the Snoezelen projector.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/snoezelen/internal/particle"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle     func(enabled bool)
	onEffect     func(particle.EffectType)
	onController func()
	onQuit       func()
	enabled      bool
	effect       particle.EffectType
	mu           sync.RWMutex

	// Menu items stored for later updates
	menuToggle  *systray.MenuItem
	menuStatus  *systray.MenuItem
	menuEffects map[particle.EffectType]*systray.MenuItem
}

// New creates a new Tray with effects enabled.
func New() *Tray {
	return &Tray{
		enabled: true,
		effect:  particle.Normal,
	}
}

// OnToggle sets the callback called when effects are switched on or off.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnEffect sets the callback called when an effect is picked.
func (t *Tray) OnEffect(fn func(particle.EffectType)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEffect = fn
}

// OnController sets the callback called when the controller page is
// requested.
func (t *Tray) OnController(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onController = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit removes the tray icon and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Snoezelen")
	systray.SetTooltip("Snoezelen interactive projection")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle particle effects")
	systray.AddSeparator()

	menuEffect := systray.AddMenuItem("Effect", "Particle effect")
	t.menuEffects = make(map[particle.EffectType]*systray.MenuItem)
	for _, e := range particle.Effects() {
		item := menuEffect.AddSubMenuItemCheckbox(e.String(), "Use the "+e.String()+" effect", e == t.effect)
		t.menuEffects[e] = item
		go t.watchEffect(e, item)
	}
	systray.AddSeparator()

	t.menuStatus = systray.AddMenuItem("Idle", "Room activity")
	t.menuStatus.Disable()
	systray.AddSeparator()

	menuController := systray.AddMenuItem("Open Controller...", "Open the controller page in the browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Snoezelen")
	t.mu.Unlock()

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuController.ClickedCh:
				t.handleController()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) watchEffect(e particle.EffectType, item *systray.MenuItem) {
	for range item.ClickedCh {
		t.handleEffect(e)
	}
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Effects on"
	}
	return "○ Effects off"
}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// handleEffect handles a click on an effect item.
func (t *Tray) handleEffect(e particle.EffectType) {
	t.setEffect(e)

	t.mu.RLock()
	callback := t.onEffect
	t.mu.RUnlock()

	if callback != nil {
		callback(e)
	}
}

// handleController handles the controller menu item click.
func (t *Tray) handleController() {
	t.mu.RLock()
	callback := t.onController
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetEnabled shows effects as on or off without calling OnToggle, for
// changes made elsewhere.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

// SetEffect checks the item of e without calling OnEffect.
func (t *Tray) SetEffect(e particle.EffectType) {
	t.setEffect(e)
}

func (t *Tray) setEffect(e particle.EffectType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.effect = e
	for other, item := range t.menuEffects {
		if other == e {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
}

// SetStatus updates the activity line of the menu.
func (t *Tray) SetStatus(text string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(text)
	}
}

// IsEnabled returns whether effects are on.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Effect returns the checked effect.
func (t *Tray) Effect() particle.EffectType {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.effect
}
