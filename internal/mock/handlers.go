package mock

import (
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/mock/templates"
)

// Template data types
type (
	tagData struct {
		Key   string
		Value string
	}

	clusterData struct {
		ID            string
		ARN           string
		Engine        string
		EngineVersion string
		EngineMode    string
		InstanceClass string
		Status        string
		Tags          []tagData
	}

	clustersData struct {
		RequestID string
		Clusters  []clusterData
		Marker    string
	}

	clusterResultData struct {
		RequestID string
		Cluster   clusterData
	}

	tagsData struct {
		RequestID string
		Tags      []tagData
	}

	errorData struct {
		RequestID string
		Type      string
		Code      string
		Message   string
	}
)

func requestID() string {
	return uuid.New().String()
}

func sortedTags(tags map[string]string) []tagData {
	result := make([]tagData, 0, len(tags))
	for k, v := range tags {
		result = append(result, tagData{Key: k, Value: v})
	}
	slices.SortFunc(result, func(a, b tagData) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
	return result
}

func toClusterData(c *MockCluster, withTags bool) clusterData {
	cd := clusterData{
		ID:            c.ID,
		ARN:           c.ARN,
		Engine:        c.Engine,
		EngineVersion: c.EngineVersion,
		EngineMode:    c.EngineMode,
		InstanceClass: c.InstanceClass,
		Status:        c.Status,
	}
	if withTags {
		cd.Tags = sortedTags(c.Tags)
	}
	return cd
}

// Helper to execute templates
func (s *Server) executeTemplate(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	if err := templates.Execute(w, name, data); err != nil {
		s.logger.Error("failed to execute template", "template", name, "error", err)
	}
}

// sendAPIError renders a state error, falling back to a 500 for anything
// that is not an APIError.
func (s *Server) sendAPIError(w http.ResponseWriter, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		s.sendErrorResponse(w, apiErr.Code, apiErr.Message, apiErr.StatusCode)
		return
	}
	s.sendErrorResponse(w, "InternalFailure", err.Error(), http.StatusInternalServerError)
}

// checkTargetFault applies faults scoped to a single cluster. It returns
// true when the response has already been written.
func (s *Server) checkTargetFault(w http.ResponseWriter, action, target string) bool {
	result := s.state.Faults().Check(action, target)
	if result.ExtraDelay > 0 {
		time.Sleep(time.Duration(result.ExtraDelay) * time.Millisecond)
	}
	if result.ShouldFail {
		s.sendErrorResponse(w, result.ErrorCode, result.ErrorMsg, result.StatusCode)
		return true
	}
	return false
}

// ==================== RDS API Handlers ====================

func (s *Server) handleDescribeDBClusters(w http.ResponseWriter, values url.Values) {
	withTags := s.state.ListingTags()

	if clusterID := values.Get("DBClusterIdentifier"); clusterID != "" {
		if s.checkTargetFault(w, "DescribeDBClusters", clusterID) {
			return
		}
		cluster, ok := s.state.GetCluster(clusterID)
		if !ok {
			s.sendAPIError(w, clusterNotFound(clusterID))
			return
		}
		s.executeTemplate(w, "describe_db_clusters.xml", clustersData{
			RequestID: requestID(),
			Clusters:  []clusterData{toClusterData(cluster, withTags)},
		})
		return
	}

	maxRecords := 0
	if v := values.Get("MaxRecords"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.sendErrorResponse(w, "InvalidParameterValue", "invalid MaxRecords "+v, http.StatusBadRequest)
			return
		}
		maxRecords = n
	}

	clusters, next, err := s.state.ListClusterPage(values.Get("Marker"), maxRecords)
	if err != nil {
		s.sendAPIError(w, err)
		return
	}

	data := clustersData{
		RequestID: requestID(),
		Clusters:  make([]clusterData, 0, len(clusters)),
		Marker:    next,
	}
	for _, c := range clusters {
		data.Clusters = append(data.Clusters, toClusterData(c, withTags))
	}
	s.executeTemplate(w, "describe_db_clusters.xml", data)
}

func (s *Server) handleListTagsForResource(w http.ResponseWriter, values url.Values) {
	resourceName := values.Get("ResourceName")
	cluster, ok := s.state.GetClusterByARN(resourceName)
	if !ok {
		s.sendAPIError(w, clusterNotFound(resourceName))
		return
	}
	if s.checkTargetFault(w, "ListTagsForResource", cluster.ID) {
		return
	}

	s.executeTemplate(w, "list_tags_for_resource.xml", tagsData{
		RequestID: requestID(),
		Tags:      sortedTags(cluster.Tags),
	})
}

func (s *Server) handleStartDBCluster(w http.ResponseWriter, values url.Values) {
	clusterID := values.Get("DBClusterIdentifier")
	if s.checkTargetFault(w, "StartDBCluster", clusterID) {
		return
	}

	cluster, err := s.state.StartCluster(clusterID)
	if err != nil {
		s.sendAPIError(w, err)
		return
	}
	s.logger.Info("mock cluster starting", "cluster", clusterID)
	s.executeTemplate(w, "start_db_cluster.xml", clusterResultData{
		RequestID: requestID(),
		Cluster:   toClusterData(cluster, false),
	})
}

func (s *Server) handleStopDBCluster(w http.ResponseWriter, values url.Values) {
	clusterID := values.Get("DBClusterIdentifier")
	if s.checkTargetFault(w, "StopDBCluster", clusterID) {
		return
	}

	cluster, err := s.state.StopCluster(clusterID)
	if err != nil {
		s.sendAPIError(w, err)
		return
	}
	s.logger.Info("mock cluster stopping", "cluster", clusterID)
	s.executeTemplate(w, "stop_db_cluster.xml", clusterResultData{
		RequestID: requestID(),
		Cluster:   toClusterData(cluster, false),
	})
}
