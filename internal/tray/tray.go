// Package tray provides a system tray interface showing the live heart rate.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle     func(measuring bool)
	onNewSession func()
	onDashboard  func()
	onQuit       func()
	measuring    bool
	bpm          string
	session      string
	mu           sync.RWMutex

	// Menu items stored for later updates
	menuToggle  *systray.MenuItem
	menuBPM     *systray.MenuItem
	menuSession *systray.MenuItem
}

// New creates a new Tray that starts out measuring.
func New() *Tray {
	return &Tray{
		measuring: true,
		bpm:       "-",
	}
}

// OnToggle sets the callback invoked when measuring is switched on or off.
func (t *Tray) OnToggle(fn func(measuring bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnNewSession sets the callback invoked when a new session is requested.
func (t *Tray) OnNewSession(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onNewSession = fn
}

// OnDashboard sets the callback invoked when the dashboard item is clicked.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
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

// Quit stops the tray loop.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	t.mu.Lock()
	systray.SetTitle(Title(t.bpm))
	systray.SetTooltip("Heartbeat webcam pulse monitor")

	t.menuToggle = systray.AddMenuItem(toggleTitle(t.measuring), "Start or stop measuring")
	systray.AddSeparator()

	t.menuBPM = systray.AddMenuItem(Title(t.bpm), "Latest estimate")
	t.menuBPM.Disable()
	t.menuSession = systray.AddMenuItem(sessionTitle(t.session), "Session readings are filed under")
	t.menuSession.Disable()
	t.mu.Unlock()

	menuNewSession := systray.AddMenuItem("New Session", "Start a new measurement session")
	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Heartbeat")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuNewSession.ClickedCh:
				t.call(func() func() { return t.onNewSession })
			case <-menuDashboard.ClickedCh:
				t.call(func() func() { return t.onDashboard })
			case <-menuQuit.ClickedCh:
				t.call(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleToggle flips measuring and notifies the toggle callback.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.measuring = !t.measuring
	measuring := t.measuring

	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(measuring))
	}

	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(measuring)
	}
}

// call runs the callback selected under the read lock.
func (t *Tray) call(get func() func()) {
	t.mu.RLock()
	callback := get()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// SetBPM updates the displayed reading.
func (t *Tray) SetBPM(display string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if display == "" {
		display = "-"
	}
	t.bpm = display
	if t.menuBPM != nil {
		systray.SetTitle(Title(display))
		t.menuBPM.SetTitle(Title(display))
	}
}

// SetMeasuring sets the measuring state without notifying the toggle
// callback.
func (t *Tray) SetMeasuring(measuring bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.measuring = measuring
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(measuring))
	}
}

// SetSession updates the displayed session token.
func (t *Tray) SetSession(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.session = token
	if t.menuSession != nil {
		t.menuSession.SetTitle(sessionTitle(token))
	}
}

// BPM returns the displayed reading.
func (t *Tray) BPM() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bpm
}

// IsMeasuring returns the current measuring state.
func (t *Tray) IsMeasuring() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.measuring
}

// Title formats a reading for the tray title.
func Title(display string) string {
	return "♥ " + display + " bpm"
}

func toggleTitle(measuring bool) string {
	if measuring {
		return "● Measuring"
	}
	return "○ Paused"
}

func sessionTitle(token string) string {
	if token == "" {
		return "Session: none"
	}
	if len(token) > 8 {
		token = token[:8]
	}
	return "Session: " + token
}
