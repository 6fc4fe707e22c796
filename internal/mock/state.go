// Package mock provides a stateful mock RDS server for local demo and testing.
package mock

import (
	"fmt"
	"maps"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// TimingConfig controls simulated wait times.
type TimingConfig struct {
	BaseWaitMs    int  `json:"base_wait_ms"`    // Base wait time in milliseconds
	RandomRangeMs int  `json:"random_range_ms"` // Random additional time (0 to this value)
	FastMode      bool `json:"fast_mode"`       // Near-instant transitions
}

// DefaultTimingConfig returns fast demo defaults.
func DefaultTimingConfig() TimingConfig {
	return TimingConfig{
		BaseWaitMs:    2000,
		RandomRangeMs: 1000,
		FastMode:      false,
	}
}

// DefaultRegion is the region used for mock ARNs.
const DefaultRegion = "us-east-1"

const mockAccountID = "123456789012"

// State holds the in-memory state for the mock RDS server.
type State struct {
	mu       sync.RWMutex
	clusters map[string]*MockCluster
	order    []string // insertion order, used for stable pagination

	// listingTags controls whether DescribeDBClusters includes TagList.
	listingTags bool

	// Timing configuration
	timing TimingConfig

	// Fault injection
	faults *FaultInjector

	// For state transitions
	stopCh   chan struct{}
	stopOnce sync.Once
}

// MockCluster represents a simulated RDS cluster.
type MockCluster struct {
	ID              string            `json:"id"`
	ARN             string            `json:"arn"`
	Engine          string            `json:"engine"`
	EngineVersion   string            `json:"engine_version"`
	EngineMode      string            `json:"engine_mode"`
	InstanceClass   string            `json:"instance_class,omitempty"` // set on Multi-AZ DB clusters only
	Status          string            `json:"status"`                   // See rds.ClusterStatus for all possible values
	Tags            map[string]string `json:"tags"`
	StatusChangedAt time.Time         `json:"status_changed_at"`
}

// APIError is an RDS fault returned by state mutations.
type APIError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

func clusterNotFound(id string) *APIError {
	return &APIError{
		Code:       "DBClusterNotFoundFault",
		Message:    fmt.Sprintf("DBCluster %s not found.", id),
		StatusCode: 404,
	}
}

func invalidClusterState(msg string) *APIError {
	return &APIError{Code: "InvalidDBClusterStateFault", Message: msg, StatusCode: 400}
}

// ClusterARN builds the mock ARN for a cluster ID.
func ClusterARN(id string) string {
	return fmt.Sprintf("arn:aws:rds:%s:%s:cluster:%s", DefaultRegion, mockAccountID, id)
}

// NewState creates a new mock state with the given timing configuration.
func NewState(timing TimingConfig) *State {
	return &State{
		clusters:    make(map[string]*MockCluster),
		listingTags: true,
		timing:      timing,
		faults:      NewFaultInjector(),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the background state transition goroutine.
func (s *State) Start() {
	go s.runStateTransitions()
}

// Stop halts the background state transition goroutine.
func (s *State) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// GetTiming returns the current timing configuration.
func (s *State) GetTiming() TimingConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timing
}

// SetTiming updates the timing configuration.
func (s *State) SetTiming(timing TimingConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timing = timing
}

// SetListingTags controls whether DescribeDBClusters returns each cluster's
// TagList. When false, clients must call ListTagsForResource.
func (s *State) SetListingTags(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listingTags = enabled
}

// ListingTags reports whether DescribeDBClusters returns TagList.
func (s *State) ListingTags() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listingTags
}

// Faults returns the fault injector.
func (s *State) Faults() *FaultInjector {
	return s.faults
}

// getWaitDurationLocked calculates how long a state transition should take.
// MUST be called with s.mu held.
func (s *State) getWaitDurationLocked() time.Duration {
	if s.timing.FastMode {
		return 50 * time.Millisecond // Small delay even in fast mode for realism
	}
	base := s.timing.BaseWaitMs
	randomVal := 0
	if s.timing.RandomRangeMs > 0 {
		randomVal = rand.Intn(s.timing.RandomRangeMs + 1)
	}
	return time.Duration(base+randomVal) * time.Millisecond
}

// SeedDemoClusters populates the state with one cluster per engine mode and
// topology, all opted in with the Schedule tag except demo-untagged.
func (s *State) SeedDemoClusters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seedDemoClustersLocked()
}

// seedDemoClustersLocked populates the state with demo clusters.
// MUST be called with s.mu held.
func (s *State) seedDemoClustersLocked() {
	schedule := func(extra map[string]string) map[string]string {
		tags := map[string]string{"Schedule": "office-hours", "Environment": "dev"}
		maps.Copy(tags, extra)
		return tags
	}

	seed := []*MockCluster{
		{ID: "demo-aurora-pg", Engine: "aurora-postgresql", EngineVersion: "15.4", EngineMode: "provisioned", Status: "available", Tags: schedule(nil)},
		{ID: "demo-aurora-mysql", Engine: "aurora-mysql", EngineVersion: "8.0.mysql_aurora.3.05.2", EngineMode: "provisioned", Status: "stopped", Tags: schedule(nil)},
		{ID: "demo-serverless-v2", Engine: "aurora-postgresql", EngineVersion: "16.1", EngineMode: "provisioned", Status: "available", Tags: schedule(map[string]string{"Schedule": ""})},
		{ID: "demo-serverless-v1", Engine: "aurora-mysql", EngineVersion: "5.7.mysql_aurora.2.11.4", EngineMode: "serverless", Status: "available", Tags: schedule(nil)},
		{ID: "demo-multimaster", Engine: "aurora-mysql", EngineVersion: "5.6.10a", EngineMode: "multimaster", Status: "available", Tags: schedule(nil)},
		{ID: "demo-parallelquery", Engine: "aurora-mysql", EngineVersion: "5.7.mysql_aurora.2.11.4", EngineMode: "parallelquery", Status: "available", Tags: schedule(nil)},
		{ID: "demo-global", Engine: "aurora-mysql", EngineVersion: "5.6.10a", EngineMode: "global", Status: "available", Tags: schedule(nil)},
		{ID: "demo-multiaz-pg", Engine: "postgres", EngineVersion: "16.3", EngineMode: "provisioned", InstanceClass: "db.m6gd.large", Status: "available", Tags: schedule(nil)},
		{ID: "demo-modifying", Engine: "aurora-postgresql", EngineVersion: "15.4", EngineMode: "provisioned", Status: "modifying", Tags: schedule(nil)},
		{ID: "demo-untagged", Engine: "aurora-postgresql", EngineVersion: "15.4", EngineMode: "provisioned", Status: "available", Tags: map[string]string{"Environment": "prod"}},
	}
	for _, c := range seed {
		s.addClusterLocked(c)
	}
}

// Reset clears all state and re-seeds demo clusters.
func (s *State) Reset() {
	// Clear faults first (has its own lock)
	s.faults.ClearAll()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clusters = make(map[string]*MockCluster)
	s.order = nil
	s.listingTags = true
	s.seedDemoClustersLocked()
}

// Clear removes every cluster without re-seeding.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters = make(map[string]*MockCluster)
	s.order = nil
}

// AddCluster adds or replaces a cluster. Missing ARN, engine mode and status
// are filled with defaults.
func (s *State) AddCluster(c MockCluster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addClusterLocked(&c)
}

// addClusterLocked MUST be called with s.mu held.
func (s *State) addClusterLocked(c *MockCluster) {
	if c.ARN == "" {
		c.ARN = ClusterARN(c.ID)
	}
	if c.EngineMode == "" {
		c.EngineMode = "provisioned"
	}
	if c.Status == "" {
		c.Status = "available"
	}
	if c.Tags == nil {
		c.Tags = map[string]string{}
	}
	c.StatusChangedAt = time.Now()

	if _, exists := s.clusters[c.ID]; !exists {
		s.order = append(s.order, c.ID)
	}
	s.clusters[c.ID] = c
}

func copyCluster(c *MockCluster) *MockCluster {
	clusterCopy := *c
	clusterCopy.Tags = maps.Clone(c.Tags)
	return &clusterCopy
}

// GetCluster returns a copy of a cluster by ID.
func (s *State) GetCluster(id string) (*MockCluster, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clusters[id]
	if !ok {
		return nil, false
	}
	return copyCluster(c), true
}

// GetClusterByARN returns a copy of a cluster by ARN.
func (s *State) GetClusterByARN(arn string) (*MockCluster, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clusters {
		if c.ARN == arn {
			return copyCluster(c), true
		}
	}
	return nil, false
}

// ListClusters returns copies of all clusters in insertion order.
func (s *State) ListClusters() []*MockCluster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*MockCluster, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, copyCluster(s.clusters[id]))
	}
	return result
}

// ListClusterPage returns up to maxRecords clusters after the marker, plus
// the marker for the next page ("" when there are no more).
func (s *State) ListClusterPage(marker string, maxRecords int) ([]*MockCluster, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if marker != "" {
		found := false
		for i, id := range s.order {
			if id == marker {
				start, found = i, true
				break
			}
		}
		if !found {
			return nil, "", &APIError{Code: "InvalidParameterValue", Message: "invalid marker " + marker, StatusCode: 400}
		}
	}
	if maxRecords <= 0 {
		maxRecords = 100
	}

	end := min(start+maxRecords, len(s.order))
	result := make([]*MockCluster, 0, end-start)
	for _, id := range s.order[start:end] {
		result = append(result, copyCluster(s.clusters[id]))
	}

	next := ""
	if end < len(s.order) {
		next = s.order[end]
	}
	return result, next, nil
}

// stoppableEngineMode reports whether RDS accepts start/stop for the mode.
func stoppableEngineMode(mode string) bool {
	switch strings.ToLower(mode) {
	case "serverless", "multimaster", "parallelquery", "global":
		return false
	default:
		return true
	}
}

// StartCluster starts a stopped cluster.
func (s *State) StartCluster(id string) (*MockCluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clusters[id]
	if !ok {
		return nil, clusterNotFound(id)
	}
	if !stoppableEngineMode(c.EngineMode) {
		return nil, invalidClusterState(fmt.Sprintf("DbCluster %s with engine mode %s cannot be started.", id, c.EngineMode))
	}
	if c.Status != "stopped" {
		return nil, invalidClusterState(fmt.Sprintf("DbCluster %s is not in stopped state.", id))
	}

	c.Status = "starting"
	c.StatusChangedAt = time.Now()
	return copyCluster(c), nil
}

// StopCluster stops an available cluster.
func (s *State) StopCluster(id string) (*MockCluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clusters[id]
	if !ok {
		return nil, clusterNotFound(id)
	}
	if !stoppableEngineMode(c.EngineMode) {
		return nil, invalidClusterState(fmt.Sprintf("DbCluster %s with engine mode %s cannot be stopped.", id, c.EngineMode))
	}
	if c.Status != "available" {
		return nil, invalidClusterState(fmt.Sprintf("DbCluster %s is not in available state.", id))
	}

	c.Status = "stopping"
	c.StatusChangedAt = time.Now()
	return copyCluster(c), nil
}

// SetClusterStatus forces a cluster's status.
func (s *State) SetClusterStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clusters[id]
	if !ok {
		return clusterNotFound(id)
	}
	c.Status = status
	c.StatusChangedAt = time.Now()
	return nil
}
