// Package systemd reports service state to the systemd supervisor.
package systemd

import (
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/Gateworks/gst-gateworks-apps/internal/events"
	"github.com/Gateworks/gst-gateworks-apps/internal/logging"
)

// Notifier sends sd_notify messages: readiness, a status line that follows
// the viewer count, and watchdog keep-alives when the unit asks for them.
// Outside systemd every call is a no-op.
type Notifier struct {
	logger logging.Logger
	notify func(state string) (bool, error)
	// watchdog returns the keep-alive period, 0 when disabled.
	watchdog func() (time.Duration, error)

	mu    sync.Mutex
	unsub func()
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewNotifier creates a notifier bound to $NOTIFY_SOCKET.
func NewNotifier(logger logging.Logger) *Notifier {
	return &Notifier{
		logger: logger,
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		watchdog: func() (time.Duration, error) {
			return daemon.SdWatchdogEnabled(false)
		},
	}
}

// Ready reports that the RTSP server accepts clients.
func (n *Notifier) Ready(url string) {
	n.send(daemon.SdNotifyReady)
	n.send("STATUS=serving " + url)
}

// Start follows viewer counts on bus and runs the watchdog keep-alive.
func (n *Notifier) Start(bus *events.Bus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done != nil {
		return
	}
	n.done = make(chan struct{})

	if bus != nil {
		n.unsub = bus.Subscribe(func(ev events.ViewerCountChangedEvent) {
			n.send(fmt.Sprintf("STATUS=%d viewer(s)", ev.Clients))
		})
	}

	interval, err := n.watchdog()
	if err != nil {
		n.logger.Warn("Invalid watchdog settings", "error", err)
		return
	}
	if interval <= 0 {
		return
	}

	n.logger.Debug("Watchdog enabled", "interval", interval)
	n.wg.Add(1)
	go n.keepAlive(interval/2, n.done)
}

func (n *Notifier) keepAlive(period time.Duration, done <-chan struct{}) {
	defer n.wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}

// Stop reports shutdown and ends the keep-alive.
func (n *Notifier) Stop() {
	n.mu.Lock()
	done, unsub := n.done, n.unsub
	n.done, n.unsub = nil, nil
	n.mu.Unlock()

	n.send(daemon.SdNotifyStopping)
	if unsub != nil {
		unsub()
	}
	if done != nil {
		close(done)
		n.wg.Wait()
	}
}

func (n *Notifier) send(state string) {
	if _, err := n.notify(state); err != nil {
		n.logger.Debug("sd_notify failed", "state", state, "error", err)
	}
}
