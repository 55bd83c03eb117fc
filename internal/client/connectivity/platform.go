package connectivity

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/storekeeper/internal/logging"
)

// PlatformOnline reports whether the host has an up, non-loopback network
// interface with at least one address.
func PlatformOnline() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}

// Handler receives platform connectivity changes. *Monitor implements it.
type Handler interface {
	HandleOnline()
	HandleOffline()
}

// NetworkWatcher polls the host network state and forwards changes.
type NetworkWatcher struct {
	handler  Handler
	interval time.Duration
	check    func() bool
	logger   logging.Logger
}

func NewNetworkWatcher(h Handler, interval time.Duration, logger logging.Logger) *NetworkWatcher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &NetworkWatcher{
		handler:  h,
		interval: interval,
		check:    PlatformOnline,
		logger:   logger.With("module", "netwatch"),
	}
}

// Run polls until ctx is done. The first observation is always forwarded.
func (w *NetworkWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	last := w.check()
	w.forward(ctx, last)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := w.check()
			if cur != last {
				last = cur
				w.forward(ctx, cur)
			}
		}
	}
}

func (w *NetworkWatcher) forward(ctx context.Context, online bool) {
	w.logger.Debug(ctx, "network state", "online", online)
	if online {
		w.handler.HandleOnline()
	} else {
		w.handler.HandleOffline()
	}
}
