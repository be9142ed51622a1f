package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/ballotbox/log"
	"github.com/vocdoni/ballotbox/types"
)

// DefaultMonitorInterval is the election monitor interval when none is set.
const DefaultMonitorInterval = 30 * time.Second

// ElectionLister is the part of the election controller used by the monitor.
type ElectionLister interface {
	ElectionInfos() ([]*types.ElectionInfo, error)
}

// ElectionMonitor periodically derives the status of every election and
// reports the transitions (an election opening, closing or being finalized)
// together with a summary of the registry.
type ElectionMonitor struct {
	elections ElectionLister
	interval  time.Duration
	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	statuses  map[uint64]types.ElectionStatus
}

// NewElectionMonitor creates a new ElectionMonitor service.
func NewElectionMonitor(elections ElectionLister, interval time.Duration) *ElectionMonitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &ElectionMonitor{
		elections: elections,
		interval:  interval,
		statuses:  make(map[uint64]types.ElectionStatus),
	}
}

// Start begins monitoring the elections. It returns an error if the service
// is already running.
func (em *ElectionMonitor) Start(ctx context.Context) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.cancel != nil {
		return fmt.Errorf("service already running")
	}
	ctx, em.cancel = context.WithCancel(ctx)
	em.done = make(chan struct{})
	go em.monitor(ctx, em.done)
	return nil
}

// Stop halts the monitoring service and waits until the running check, if
// any, returns.
func (em *ElectionMonitor) Stop() {
	em.mu.Lock()
	cancel, done := em.cancel, em.done
	em.cancel, em.done = nil, nil
	em.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (em *ElectionMonitor) monitor(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(em.interval)
	defer ticker.Stop()
	for {
		if err := em.Check(); err != nil {
			log.Warnw("failed to check elections", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// StatusChange is a status transition observed by the monitor.
type StatusChange struct {
	ElectionID uint64
	Old, New   types.ElectionStatus
	First      bool // the election was not seen before
}

// Check runs one monitoring round, logging and returning the status changes
// since the previous one.
func (em *ElectionMonitor) Check() error {
	_, err := em.check()
	return err
}

func (em *ElectionMonitor) check() ([]StatusChange, error) {
	infos, err := em.elections.ElectionInfos()
	if err != nil {
		return nil, err
	}

	em.mu.Lock()
	defer em.mu.Unlock()
	var changes []StatusChange
	summary := map[string]any{
		types.ElectionStatusCreatedName:   0,
		types.ElectionStatusOpenName:      0,
		types.ElectionStatusClosedName:    0,
		types.ElectionStatusFinalizedName: 0,
	}
	for _, info := range infos {
		summary[info.Status.String()] = summary[info.Status.String()].(int) + 1
		old, seen := em.statuses[info.ID]
		if seen && old == info.Status {
			continue
		}
		em.statuses[info.ID] = info.Status
		change := StatusChange{ElectionID: info.ID, Old: old, New: info.Status, First: !seen}
		changes = append(changes, change)
		if change.First {
			log.Debugw("election tracked", "electionId", info.ID, "status", info.Status.String())
			continue
		}
		log.Infow("election status changed",
			"electionId", info.ID,
			"name", info.Name,
			"old", old.String(),
			"new", info.Status.String())
	}
	summary["total"] = len(infos)
	log.Monitor("elections", summary)
	return changes, nil
}
