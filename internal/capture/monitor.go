package capture

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"deskrec/internal/logging"
)

// DeviceEvent reports a sound-device hotplug change.
type DeviceEvent struct {
	Action string
	Device string
}

// Monitor watches udev netlink events for the sound subsystem so device
// arrival and removal shows up in the logs and can abort a recording that
// lost its loopback source.
type Monitor struct {
	logger  *slog.Logger
	handler func(DeviceEvent)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewMonitor creates a hotplug monitor. handler may be nil, in which case
// events are only logged.
func NewMonitor(logger *slog.Logger, handler func(DeviceEvent)) *Monitor {
	return &Monitor{
		logger:  logging.NewComponentLogger(logger, "device-monitor"),
		handler: handler,
	}
}

// Start begins listening for udev events. A failure to bind the netlink
// socket is logged and swallowed: hotplug awareness is an aid, not a
// requirement.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("cannot bind netlink socket; sound-device hotplug monitoring disabled",
			logging.Error(err))
		return
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.loop(ctx, quit)

	m.logger.Debug("sound-device monitor started")
}

// Stop shuts the monitor down. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	_ = m.conn.Close()
	m.conn = nil
	m.running = false
}

func (m *Monitor) loop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, soundMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			event := DeviceEvent{
				Action: string(uevent.Action),
				Device: uevent.Env["DEVNAME"],
			}
			if event.Device == "" {
				event.Device = uevent.KObj
			}
			m.logger.Info("sound device change",
				logging.String("action", event.Action),
				logging.String("device", event.Device))
			if m.handler != nil {
				m.handler(event)
			}
		case err := <-errs:
			m.logger.Warn("device monitor error", logging.Error(err))
		}
	}
}

func soundMatcher() netlink.Matcher {
	action := "add|remove|change"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "sound",
		},
	})
	return rules
}
