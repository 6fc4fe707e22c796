package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/app/templates"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/constants"
	internalerrors "github.com/mpz/devops/tools/rds-cluster-scheduler/internal/errors"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/jsonutil"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

// Request represents an HTTP request.
type Request struct {
	Method  string            `json:"method,omitempty"`
	Path    string            `json:"path,omitempty"`
	Query   url.Values        `json:"query,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body,omitempty"`
}

// Response is a unified response type.
type Response struct {
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        []byte            `json:"body,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
}

// HandleRequest routes incoming requests to the appropriate handler.
func (a *App) HandleRequest(ctx context.Context, req Request) Response {
	start := time.Now()

	resp := a.handleHTTPRequest(ctx, req)

	// Log API requests (skip static assets and UI)
	if !isStaticPath(req.Path) {
		a.Logger.Info("request",
			"method", req.Method,
			"path", req.Path,
			"status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds())
	}

	return resp
}

// isStaticPath returns true for paths that should not be logged (static assets, UI).
func isStaticPath(path string) bool {
	return path == "/" ||
		strings.HasPrefix(path, "/static/") ||
		strings.HasPrefix(path, "/favicon")
}

// handleHTTPRequest routes HTTP requests.
func (a *App) handleHTTPRequest(ctx context.Context, req Request) Response {
	path := req.Path
	if a.Config.BasePath != "" {
		path = strings.TrimPrefix(path, a.Config.BasePath)
		if path == "" {
			path = "/"
		}
	}

	switch {
	case path == "/" && req.Method == "GET":
		return a.handleDashboard(ctx)
	case path == "/static/styles.css" && req.Method == "GET":
		return a.handleStaticCSS()

	case path == "/server/status" && req.Method == "GET":
		return a.handleStatusRequest(ctx, req)
	case path == "/server/config" && req.Method == "GET":
		return a.handleConfigRequest(req)
	case path == "/api/runs" && req.Method == "POST":
		return a.handleCreateRun(ctx, req)
	case path == "/api/runs" && req.Method == "GET":
		return a.handleListRuns(ctx, req)
	case strings.HasPrefix(path, "/api/runs/") && req.Method == "GET":
		return a.handleGetRun(ctx, strings.TrimPrefix(path, "/api/runs/"))
	case path == "/api/plan" && req.Method == "GET":
		return a.handlePlan(ctx, req)
	case path == "/api/regions" && req.Method == "GET":
		return a.handleListRegions(ctx)
	case path == "/api/config" && req.Method == "GET":
		return a.handlePublicConfig()
	case strings.HasPrefix(path, "/mock/"):
		return a.handleMockProxy(req)
	default:
		return a.errorResponse(404, "endpoint not found")
	}
}

// handleStatusRequest returns application status.
func (a *App) handleStatusRequest(ctx context.Context, req Request) Response {
	if resp := a.checkAdminAuth(req); resp != nil {
		return *resp
	}
	return a.jsonResponse(200, a.GetStatus(ctx))
}

// handleConfigRequest returns redacted configuration.
func (a *App) handleConfigRequest(req Request) Response {
	if resp := a.checkAdminAuth(req); resp != nil {
		return *resp
	}
	return a.jsonResponse(200, a.Config.Redacted())
}

// handlePublicConfig returns public configuration (no auth required).
func (a *App) handlePublicConfig() Response {
	return a.jsonResponse(200, map[string]any{
		"demo_mode":        a.Config.DemoMode,
		"base_path":        a.Config.BasePath,
		"schedule_tag_key": a.Config.ScheduleTagKey,
		"regions":          a.Config.RunRegions(),
	})
}

// handleCreateRun executes a run synchronously and returns its result.
func (a *App) handleCreateRun(ctx context.Context, req Request) Response {
	var runReq RunRequest
	if err := jsonutil.DecodeBody(req.Body, &runReq); err != nil {
		return a.errorResponse(400, "invalid run request body")
	}

	result, err := a.Run(ctx, runReq)
	switch {
	case err == nil:
		return a.jsonResponse(200, result)
	case internalerrors.IsInvalidAction(err):
		return a.errorResponse(400, err.Error())
	case internalerrors.IsDiscovery(err) && result != nil:
		return a.jsonResponse(502, result)
	default:
		return a.errorResponse(500, err.Error())
	}
}

// handleListRuns returns the most recent archived runs.
func (a *App) handleListRuns(ctx context.Context, req Request) Response {
	limit := constants.DefaultRunListLimit
	if raw := req.Query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return a.errorResponse(400, "limit must be a positive integer")
		}
		limit = n
	}

	runs, err := a.ListRuns(ctx, limit)
	if err != nil {
		return a.errorResponse(500, err.Error())
	}
	if runs == nil {
		runs = []*types.RunResult{}
	}
	return a.jsonResponse(200, runs)
}

// handleGetRun returns a single archived run.
func (a *App) handleGetRun(ctx context.Context, id string) Response {
	if id == "" {
		return a.errorResponse(400, "run id is required")
	}
	run, err := a.GetRun(ctx, id)
	if err != nil {
		if internalerrors.IsNotFound(err) {
			return a.errorResponse(404, err.Error())
		}
		return a.errorResponse(500, err.Error())
	}
	return a.jsonResponse(200, run)
}

// handlePlan evaluates a run without acting. Regions may be given as
// repeated region parameters or a comma separated list.
func (a *App) handlePlan(ctx context.Context, req Request) Response {
	runReq := RunRequest{
		Action:         req.Query.Get("action"),
		ScheduleTagKey: req.Query.Get("tag_key"),
	}
	for _, value := range req.Query["region"] {
		for _, region := range strings.Split(value, ",") {
			if region = strings.TrimSpace(region); region != "" {
				runReq.Regions = append(runReq.Regions, region)
			}
		}
	}

	plan, err := a.Plan(ctx, runReq)
	switch {
	case err == nil:
		return a.jsonResponse(200, plan)
	case internalerrors.IsInvalidAction(err):
		return a.errorResponse(400, err.Error())
	case internalerrors.IsDiscovery(err):
		return a.errorResponse(502, err.Error())
	default:
		return a.errorResponse(500, err.Error())
	}
}

// handleListRegions returns the regions a run may target.
func (a *App) handleListRegions(ctx context.Context) Response {
	regions, err := a.ListRegions(ctx)
	if err != nil {
		return a.errorResponse(500, err.Error())
	}
	return a.jsonResponse(200, regions)
}

// handleDashboard renders the run history page.
func (a *App) handleDashboard(ctx context.Context) Response {
	html, err := a.renderDashboard(ctx)
	if err != nil {
		return a.errorResponse(500, "failed to render dashboard: "+err.Error())
	}
	return Response{
		StatusCode:  200,
		ContentType: "text/html; charset=utf-8",
		Body:        html,
	}
}

// handleStaticCSS serves the shared CSS file.
func (a *App) handleStaticCSS() Response {
	data, err := templates.FS.ReadFile("styles.css")
	if err != nil {
		return a.errorResponse(500, "failed to load CSS: "+err.Error())
	}
	return Response{
		StatusCode:  200,
		ContentType: "text/css",
		Headers:     map[string]string{"Cache-Control": "public, max-age=3600"},
		Body:        data,
	}
}

// handleMockProxy proxies requests to the mock server (demo mode only).
func (a *App) handleMockProxy(req Request) Response {
	if a.Config.MockEndpoint == "" {
		return a.errorResponse(404, "mock server not configured")
	}

	targetURL := a.Config.MockEndpoint + req.Path
	if len(req.Query) > 0 {
		targetURL += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequest(req.Method, targetURL, bytes.NewReader(req.Body))
	if err != nil {
		return a.errorResponse(500, "failed to create proxy request: "+err.Error())
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return a.errorResponse(502, "mock server unavailable: "+err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return a.errorResponse(502, "failed to read mock response: "+err.Error())
	}

	return Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Headers:     map[string]string{"Content-Type": resp.Header.Get("Content-Type")},
		Body:        body,
	}
}

func (a *App) jsonResponse(status int, data any) Response {
	body := jsonutil.MustMarshalWithLogger(a.Logger, data)
	if body == nil {
		return a.errorResponse(500, "failed to encode response")
	}
	return Response{
		StatusCode:  status,
		ContentType: "application/json",
		Headers:     map[string]string{"Content-Type": "application/json"},
		Body:        body,
	}
}

func (a *App) errorResponse(status int, message string) Response {
	return Response{
		StatusCode:  status,
		ContentType: "application/json",
		Headers:     map[string]string{"Content-Type": "application/json"},
		Body:        jsonutil.MarshalOrEmpty(map[string]string{"error": message}),
	}
}

func (a *App) checkAdminAuth(req Request) *Response {
	if a.Config.AdminToken == "" {
		return nil
	}

	authHeader := req.Headers["authorization"]
	if authHeader == "" {
		resp := a.errorResponse(401, "missing authorization header")
		return &resp
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		token = strings.TrimPrefix(authHeader, "bearer ")
	}

	if token != a.Config.AdminToken {
		resp := a.errorResponse(401, "invalid authorization token")
		return &resp
	}

	return nil
}
