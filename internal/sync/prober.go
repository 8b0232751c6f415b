package sync

import (
	"context"

	"clinicsync/backend"
	"clinicsync/internal/utils"
)

// Prober answers whether the remote backend is reachable right now.
// Nothing is cached: every call issues one probe.
type Prober struct {
	remote backend.RemoteStore
}

// NewProber creates a prober. A nil remote is always offline.
func NewProber(remote backend.RemoteStore) *Prober {
	return &Prober{remote: remote}
}

// IsOnline issues one minimal read against the remote. Any error, and any
// panic from the adapter, means offline.
func (p *Prober) IsOnline(ctx context.Context) (online bool) {
	if p == nil || p.remote == nil {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			utils.Warnf("[Probe] panic during connectivity probe: %v", r)
			online = false
		}
	}()

	if err := p.remote.Ping(ctx); err != nil {
		utils.Debugf("[Probe] offline: %v", err)
		return false
	}
	return true
}
