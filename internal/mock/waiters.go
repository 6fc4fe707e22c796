package mock

import (
	"time"
)

// clusterTransitions maps a transitional status to the status it settles in.
var clusterTransitions = map[string]string{
	"starting":   "available",
	"stopping":   "stopped",
	"modifying":  "available",
	"backing-up": "available",
	"rebooting":  "available",
	"upgrading":  "available",
}

// runStateTransitions runs in the background and transitions clusters through their states.
func (s *State) runStateTransitions() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.processTransitions()
		}
	}
}

// processTransitions settles every cluster whose transition has run long enough.
func (s *State) processTransitions() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	waitDuration := s.getWaitDurationLocked()

	for id, cluster := range s.clusters {
		// Check if fault injection is blocking this transition
		if s.faults.CheckStateTransition(id) {
			continue
		}

		next, ok := clusterTransitions[cluster.Status]
		if !ok {
			continue
		}
		if now.Sub(cluster.StatusChangedAt) >= waitDuration {
			cluster.Status = next
			cluster.StatusChangedAt = now
		}
	}
}
