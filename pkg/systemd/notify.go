// Package systemd reports service state to systemd via sd_notify.
// Every call is a no-op when the process is not started by systemd.
package systemd

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify states. The zero value uses the real socket.
type Notifier struct {
	// send replaces daemon.SdNotify (tests).
	send func(unsetEnv bool, state string) (bool, error)
}

func (n Notifier) notify(state string) (bool, error) {
	if n.send != nil {
		return n.send(false, state)
	}
	return daemon.SdNotify(false, state)
}

// Ready reports that startup finished.
func (n Notifier) Ready() (bool, error) { return n.notify(daemon.SdNotifyReady) }

// Watchdog pings the service watchdog.
func (n Notifier) Watchdog() (bool, error) { return n.notify(daemon.SdNotifyWatchdog) }

// Stopping reports that shutdown began.
func (n Notifier) Stopping() (bool, error) { return n.notify(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func (n Notifier) Status(s string) (bool, error) { return n.notify("STATUS=" + s) }

// WatchdogInterval returns the configured WatchdogSec, or 0 when disabled.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return d
}
