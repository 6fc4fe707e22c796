package mock

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/mock/templates"
)

// Server is the mock RDS HTTP server.
type Server struct {
	state   *State
	logger  *slog.Logger
	mux     *http.ServeMux
	verbose bool
}

// NewServer creates a new mock RDS server.
func NewServer(state *State, logger *slog.Logger, verbose bool) *Server {
	s := &Server{
		state:   state,
		logger:  logger,
		mux:     http.NewServeMux(),
		verbose: verbose,
	}
	s.registerRoutes()
	return s
}

// State returns the state backing the server.
func (s *Server) State() *State {
	return s.state
}

// registerRoutes sets up the HTTP routes.
func (s *Server) registerRoutes() {
	// RDS API endpoint (AWS uses POST to / with Action parameter)
	s.mux.HandleFunc("/", s.handleRDSAction)

	// Mock management API
	s.mux.HandleFunc("/mock/state", s.handleMockState)
	s.mux.HandleFunc("/mock/reset", s.handleMockReset)
	s.mux.HandleFunc("/mock/timing", s.handleMockTiming)
	s.mux.HandleFunc("/mock/listing-tags", s.handleMockListingTags)
	s.mux.HandleFunc("/mock/clusters", s.handleMockClusters)
	s.mux.HandleFunc("/mock/faults", s.handleMockFaults)
	s.mux.HandleFunc("/mock/faults/", s.handleMockFaultByID)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	// Handle preflight requests
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	s.mux.ServeHTTP(w, r)
}

// handleRDSAction routes RDS API calls based on the Action parameter.
func (s *Server) handleRDSAction(w http.ResponseWriter, r *http.Request) {
	// Skip mock management routes
	if strings.HasPrefix(r.URL.Path, "/mock/") {
		http.NotFound(w, r)
		return
	}

	// Only handle POST requests for RDS API
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse the form data to get Action
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.sendErrorResponse(w, "InternalFailure", "failed to read request body", 500)
		return
	}
	defer r.Body.Close()

	values, err := url.ParseQuery(string(body))
	if err != nil {
		s.sendErrorResponse(w, "InvalidParameterValue", "failed to parse request body", 400)
		return
	}

	action := values.Get("Action")
	if action == "" {
		s.sendErrorResponse(w, "MissingAction", "missing Action parameter", 400)
		return
	}

	if s.verbose {
		s.logger.Debug("handling RDS API call", slog.String("action", action))
	}

	// Untargeted fault injection
	faultResult := s.state.Faults().Check(action, "")
	if faultResult.ExtraDelay > 0 {
		time.Sleep(time.Duration(faultResult.ExtraDelay) * time.Millisecond)
	}
	if faultResult.ShouldFail {
		s.sendErrorResponse(w, faultResult.ErrorCode, faultResult.ErrorMsg, faultResult.StatusCode)
		return
	}

	// Route to appropriate handler
	switch action {
	case "DescribeDBClusters":
		s.handleDescribeDBClusters(w, values)
	case "ListTagsForResource":
		s.handleListTagsForResource(w, values)
	case "StartDBCluster":
		s.handleStartDBCluster(w, values)
	case "StopDBCluster":
		s.handleStopDBCluster(w, values)
	default:
		s.sendErrorResponse(w, "InvalidAction", fmt.Sprintf("unsupported action: %s", action), 400)
	}
}

// sendErrorResponse sends an AWS-style XML error response.
func (s *Server) sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	errType := "Sender"
	if status >= 500 {
		errType = "Receiver"
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(status)
	data := errorData{RequestID: requestID(), Type: errType, Code: code, Message: message}
	if err := templates.Execute(w, "error.xml", data); err != nil {
		s.logger.Error("failed to execute error template", "error", err)
	}
}

// Mock management API handlers

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleMockState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, struct {
		Clusters    []*MockCluster `json:"clusters"`
		ListingTags bool           `json:"listing_tags"`
		Timing      TimingConfig   `json:"timing"`
		Faults      []Fault        `json:"faults"`
	}{
		Clusters:    s.state.ListClusters(),
		ListingTags: s.state.ListingTags(),
		Timing:      s.state.GetTiming(),
		Faults:      s.state.Faults().ListFaults(),
	})
}

func (s *Server) handleMockReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.state.Reset()
	writeJSON(w, map[string]string{"status": "reset"})
}

func (s *Server) handleMockTiming(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.state.GetTiming())

	case http.MethodPost:
		var timing TimingConfig
		if err := json.NewDecoder(r.Body).Decode(&timing); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		s.state.SetTiming(timing)
		writeJSON(w, timing)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMockListingTags(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, map[string]bool{"enabled": s.state.ListingTags()})

	case http.MethodPost:
		var body struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		s.state.SetListingTags(body.Enabled)
		writeJSON(w, map[string]bool{"enabled": body.Enabled})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMockClusters(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.state.ListClusters())

	case http.MethodPost:
		var cluster MockCluster
		if err := json.NewDecoder(r.Body).Decode(&cluster); err != nil || cluster.ID == "" {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		s.state.AddCluster(cluster)
		created, _ := s.state.GetCluster(cluster.ID)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(created)

	case http.MethodDelete:
		s.state.Clear()
		writeJSON(w, map[string]string{"status": "cleared"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMockFaults(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.state.Faults().ListFaults())

	case http.MethodPost:
		var fault Fault
		if err := json.NewDecoder(r.Body).Decode(&fault); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		id := s.state.Faults().AddFault(fault)
		writeJSON(w, map[string]string{"id": id})

	case http.MethodDelete:
		s.state.Faults().ClearAll()
		writeJSON(w, map[string]string{"status": "cleared"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMockFaultByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/mock/faults/")
	if id == "" {
		http.Error(w, "missing fault ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodDelete:
		if s.state.Faults().RemoveFault(id) {
			writeJSON(w, map[string]string{"status": "deleted"})
		} else {
			http.Error(w, "fault not found", http.StatusNotFound)
		}

	case http.MethodPut:
		var body struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if s.state.Faults().EnableFault(id, body.Enabled) {
			writeJSON(w, map[string]string{"status": "updated"})
		} else {
			http.Error(w, "fault not found", http.StatusNotFound)
		}

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
