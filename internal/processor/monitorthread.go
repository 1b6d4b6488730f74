package processor

import (
	"context"
	"time"

	"github.com/asyncreq/engine/internal/logging"
	"github.com/asyncreq/engine/internal/taskmonitor"
)

const monitorTickCeiling = 5 * time.Second

// MonitorThread is the background loop that keeps this
// process's heartbeats fresh and, once per tick, attempts the
// distributed GC lock to run orphan recovery. A single ticker-plus-
// stopCh goroutine; there is nothing here to fan out across workers.
type MonitorThread struct {
	cfg  Config
	deps Deps

	inflightIDs func() []string

	stopCh chan struct{}
	doneCh chan struct{}
}

func newMonitorThread(cfg Config, deps Deps, inflightIDs func() []string) *MonitorThread {
	return &MonitorThread{
		cfg:         cfg,
		deps:        deps,
		inflightIDs: inflightIDs,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start launches the loop goroutine.
func (m *MonitorThread) Start() {
	go m.loop()
}

// Stop signals the loop to exit and waits for it, so Processor.Stop
// returns promptly rather than racing an in-flight tick.
func (m *MonitorThread) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

func (m *MonitorThread) loop() {
	defer close(m.doneCh)

	interval := m.cfg.HeartbeatInterval / 2
	if interval > monitorTickCeiling {
		interval = monitorTickCeiling
	}
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *MonitorThread) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), monitorTickCeiling)
	defer cancel()

	if err := m.deps.Monitor.PingProcess(ctx, 2*m.cfg.HeartbeatInterval); err != nil {
		logging.Op().Error("monitor thread: ping process failed", "error", err)
	}

	if ids := m.inflightIDs(); len(ids) > 0 {
		if err := m.deps.Monitor.UpdateHeartbeats(ctx, ids); err != nil {
			logging.Op().Error("monitor thread: update heartbeats failed", "error", err)
		}
	}

	acquired, err := m.deps.Monitor.AcquireGcLock(ctx, gcLockTTL(m.cfg.HeartbeatInterval))
	if err != nil {
		logging.Op().Error("monitor thread: acquire gc lock failed", "error", err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if _, err := m.deps.Monitor.ReleaseGcLock(ctx); err != nil {
			logging.Op().Error("monitor thread: release gc lock failed", "error", err)
		}
	}()

	orphans, err := m.deps.Monitor.CleanupOrphanedRequests(ctx, m.cfg.OrphanThreshold)
	if err != nil {
		logging.Op().Error("monitor thread: cleanup orphaned requests failed", "error", err)
		return
	}
	if len(orphans) == 0 {
		return
	}

	recovered, errs := taskmonitor.RecoverOrphans(ctx, m.deps.Broker, orphans)
	for _, e := range errs {
		logging.Op().Error("monitor thread: recover orphan failed", "error", e)
	}
	if recovered > 0 {
		logging.Op().Info("monitor thread: recovered orphaned tasks", "count", recovered)
	}
}

func gcLockTTL(heartbeat time.Duration) time.Duration {
	ttl := 2 * heartbeat
	if ttl < 120*time.Second {
		return 120 * time.Second
	}
	return ttl
}
