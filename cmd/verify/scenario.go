package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/app"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/config"
	internalerrors "github.com/mpz/devops/tools/rds-cluster-scheduler/internal/errors"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/notifiers"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/rds"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/scheduler"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/storage"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

// TestScenario defines a test case with input events and expected outcomes.
type TestScenario struct {
	Name            string            `yaml:"name" json:"name"`
	Description     string            `yaml:"description,omitempty" json:"description,omitempty"`
	Action          string            `yaml:"action" json:"action"`
	TagKey          string            `yaml:"tag_key,omitempty" json:"tag_key,omitempty"`
	Regions         []string          `yaml:"regions,omitempty" json:"regions,omitempty"`
	Plan            bool              `yaml:"plan,omitempty" json:"plan,omitempty"` // evaluate without acting
	ConfigOverrides map[string]string `yaml:"config_overrides,omitempty" json:"config_overrides,omitempty"`
	ExpectedCalls   []ExpectedCall    `yaml:"expected_calls" json:"expected_calls"`
	ExpectedActions []string          `yaml:"expected_actions,omitempty" json:"expected_actions,omitempty"`     // Expected AWS actions
	ForbiddenAction []string          `yaml:"forbidden_actions,omitempty" json:"forbidden_actions,omitempty"`   // AWS actions that must not be called
	MockResponses   []MockResponse    `yaml:"mock_responses" json:"mock_responses"`
	ExpectError     string            `yaml:"expect_error,omitempty" json:"expect_error,omitempty"`             // "", "discovery" or "invalid_action"
	ExpectReport    *ExpectedReport   `yaml:"expect_report,omitempty" json:"expect_report,omitempty"`
	ExpectAttempts  map[string]int    `yaml:"expect_attempts,omitempty" json:"expect_attempts,omitempty"`       // cluster ID -> attempts
	ExpectWouldAct  []string          `yaml:"expect_would_act,omitempty" json:"expect_would_act,omitempty"`     // plan scenarios only
	Notify          bool              `yaml:"notify,omitempty" json:"notify,omitempty"`                         // wire Slack against the mock
}

// ExpectedReport is the tri-partite result a scenario expects.
type ExpectedReport struct {
	Processed []string `yaml:"processed" json:"processed"`
	Skipped   []string `yaml:"skipped" json:"skipped"`
	Failed    []string `yaml:"failed" json:"failed"`
}

// ExpectedCall defines an HTTP API call the test expects.
type ExpectedCall struct {
	Service string `yaml:"service" json:"service"`
	Method  string `yaml:"method" json:"method"`
	Path    string `yaml:"path" json:"path"`
	Action  string `yaml:"action,omitempty" json:"action,omitempty"` // AWS action
	Target  string `yaml:"target,omitempty" json:"target,omitempty"` // cluster identifier or ARN
}

// runScenario executes a single test scenario with mock HTTP servers.
func runScenario(ctx context.Context, scenario TestScenario, verbose bool, logger *slog.Logger) error {
	startTime := time.Now()

	fmt.Printf("\n> Running: %s\n", scenario.Name)
	if scenario.Description != "" {
		fmt.Printf("  %s\n", scenario.Description)
	}

	// Set up mock servers
	rdsMock := NewMockServer("RDS", scenario.MockResponses, verbose)
	slackMock := NewMockServer("Slack", scenario.MockResponses, verbose)

	// Generate TLS cert for mock servers at runtime
	tlsCert, certPool, err := generateSelfSignedCert()
	if err != nil {
		return fmt.Errorf("generate cert: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
	}

	// Create listeners on dynamic ports to avoid conflicts
	rdsListener, err := tls.Listen("tcp", "localhost:0", tlsConfig)
	if err != nil {
		return fmt.Errorf("create rds listener: %w", err)
	}
	defer rdsListener.Close()

	slackListener, err := tls.Listen("tcp", "localhost:0", tlsConfig)
	if err != nil {
		return fmt.Errorf("create slack listener: %w", err)
	}
	defer slackListener.Close()

	rdsAddr := rdsListener.Addr().(*net.TCPAddr)
	slackAddr := slackListener.Addr().(*net.TCPAddr)

	rdsServer := &http.Server{Handler: rdsMock}
	slackServer := &http.Server{Handler: slackMock}

	go func() {
		if err := rdsServer.Serve(rdsListener); err != http.ErrServerClosed {
			logger.Error("rds mock server error", slog.String("error", err.Error()))
		}
	}()

	go func() {
		if err := slackServer.Serve(slackListener); err != http.ErrServerClosed {
			logger.Error("slack mock server error", slog.String("error", err.Error()))
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		rdsServer.Shutdown(shutdownCtx)
		slackServer.Shutdown(shutdownCtx)
	}()

	// Create HTTP client that trusts our self-signed cert
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: certPool,
			},
		},
		Timeout: 10 * time.Second,
	}

	// The Slack client uses the default transport
	http.DefaultTransport = &http.Transport{
		TLSClientConfig: &tls.Config{
			RootCAs: certPool,
		},
	}

	// Apply config overrides, restoring the environment afterwards
	for key, value := range scenario.ConfigOverrides {
		prev, had := os.LookupEnv(key)
		os.Setenv(key, value)
		defer func() {
			if had {
				os.Setenv(key, prev)
			} else {
				os.Unsetenv(key)
			}
		}()
	}

	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("config creation failed: %w", err)
	}
	cfg.AWSRegion = "us-east-1"
	cfg.DemoMode = true // short executor backoff

	awsCfg := aws.Config{
		Region:     cfg.AWSRegion,
		HTTPClient: httpClient,
		// Disable SDK retries, the executor retries on its own
		RetryMaxAttempts: 1,
	}

	rdsEndpoint := fmt.Sprintf("https://localhost:%d", rdsAddr.Port)
	clientManager := rds.NewClientManager(rds.ClientManagerConfig{
		BaseConfig:     awsCfg,
		DemoMode:       true,
		BaseURL:        rdsEndpoint,
		DefaultRegions: cfg.RunRegions(),
	})

	var notifier scheduler.Notifier = &notifiers.NullNotifier{}
	if scenario.Notify {
		slackURL := fmt.Sprintf("https://localhost:%d/api/", slackAddr.Port)
		notifier = notifiers.NewSlackNotifierWithAPIURL("xoxb-verify", "#verify", slackURL)
	}

	engine := app.NewEngine(cfg, clientManager.Fleet, logger, notifier, nil)
	appInst := app.NewWithEngine(cfg, engine, clientManager, storage.NewMemoryStore())

	if verbose {
		fmt.Printf("\n  Application Output:\n")
	}

	req := app.RunRequest{
		Action:         scenario.Action,
		ScheduleTagKey: scenario.TagKey,
		Regions:        scenario.Regions,
	}

	var processErr error
	var result *types.RunResult
	var plan []types.PlanEntry
	if scenario.Plan {
		plan, processErr = appInst.Plan(ctx, req)
	} else {
		result, processErr = appInst.Run(ctx, req)
	}

	if err := checkError(scenario.ExpectError, processErr); err != nil {
		return err
	}
	if verbose && processErr != nil {
		fmt.Printf("  Expected error occurred: %v\n", processErr)
	}

	if result != nil {
		if verbose {
			printResult(result)
		}
		if err := validateReport(scenario, result); err != nil {
			return err
		}
	}
	if scenario.Plan && len(scenario.ExpectWouldAct) > 0 {
		if err := validatePlan(scenario.ExpectWouldAct, plan); err != nil {
			return err
		}
	}

	rdsReqs := rdsMock.GetRequests()
	slackReqs := slackMock.GetRequests()

	allReqs := map[string][]RequestRecord{
		"rds":   rdsReqs,
		"slack": slackReqs,
	}

	if err := validateActions(scenario.ExpectedActions, scenario.ForbiddenAction, rdsReqs); err != nil {
		fmt.Printf("\n  Validation:\n")
		fmt.Printf("    FAILED: %v\n", err)
		fmt.Printf("\n  Captured RDS actions:\n")
		for i, req := range rdsReqs {
			fmt.Printf("      [%d] %s %s\n", i+1, req.Action, req.Target)
		}
		return err
	}

	if err := validateExpectedCalls(scenario.ExpectedCalls, allReqs); err != nil {
		fmt.Printf("\n  Validation:\n")
		fmt.Printf("    FAILED: %v\n", err)
		fmt.Printf("\n  Captured requests:\n")
		if len(rdsReqs) > 0 {
			fmt.Printf("    RDS (%d):\n", len(rdsReqs))
			for i, req := range rdsReqs {
				fmt.Printf("      [%d] %s %s [%s %s]\n", i+1, req.Method, req.Path, req.Action, req.Target)
			}
		}
		if len(slackReqs) > 0 {
			fmt.Printf("    Slack (%d):\n", len(slackReqs))
			for i, req := range slackReqs {
				fmt.Printf("      [%d] %s %s\n", i+1, req.Method, req.Path)
			}
		}
		return err
	}

	duration := time.Since(startTime)
	fmt.Printf("  PASSED (%.2fs)\n", duration.Seconds())
	return nil
}

// checkError compares the run error against the expected error class.
func checkError(expect string, err error) error {
	switch expect {
	case "":
		if err != nil {
			return fmt.Errorf("unexpected error: %w", err)
		}
	case "discovery":
		if !internalerrors.IsDiscovery(err) {
			return fmt.Errorf("expected discovery error, got %v", err)
		}
	case "invalid_action":
		if !internalerrors.IsInvalidAction(err) {
			return fmt.Errorf("expected invalid action error, got %v", err)
		}
	default:
		return fmt.Errorf("unknown expect_error %q", expect)
	}
	return nil
}

func printResult(result *types.RunResult) {
	fmt.Printf("  Run %s (%s):\n", result.RunID, result.Action)
	for _, o := range result.Outcomes {
		fmt.Printf("    %-24s %-9s attempts=%d %s\n", o.ResourceID, o.Kind, o.Attempts, o.Reason)
	}
}

// validateReport compares the tri-partite report and per-cluster attempts.
func validateReport(scenario TestScenario, result *types.RunResult) error {
	if exp := scenario.ExpectReport; exp != nil {
		lists := []struct {
			name      string
			got, want []string
		}{
			{"processed", result.Report.ProcessedClusters, exp.Processed},
			{"skipped", result.Report.SkippedClusters, exp.Skipped},
			{"failed", result.Report.FailedClusters, exp.Failed},
		}
		for _, l := range lists {
			if !sameSet(l.got, l.want) {
				return fmt.Errorf("%s clusters = %v, want %v", l.name, l.got, l.want)
			}
		}
	}

	for id, want := range scenario.ExpectAttempts {
		idx := slices.IndexFunc(result.Outcomes, func(o types.ActionOutcome) bool { return o.ResourceID == id })
		if idx < 0 {
			return fmt.Errorf("no outcome recorded for %s", id)
		}
		if got := result.Outcomes[idx].Attempts; got != want {
			return fmt.Errorf("%s attempts = %d, want %d", id, got, want)
		}
	}
	return nil
}

// validatePlan checks which clusters the plan would act on.
func validatePlan(want []string, plan []types.PlanEntry) error {
	var got []string
	for _, entry := range plan {
		if entry.WouldAct {
			got = append(got, entry.ResourceID)
		}
	}
	if !sameSet(got, want) {
		return fmt.Errorf("plan would act on %v, want %v", got, want)
	}
	return nil
}

func sameSet(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	a := slices.Clone(got)
	b := slices.Clone(want)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// validateExpectedCalls verifies that all expected calls were made.
func validateExpectedCalls(expected []ExpectedCall, allReqs map[string][]RequestRecord) error {
	for _, exp := range expected {
		reqs := allReqs[exp.Service]
		found := false
		for _, req := range reqs {
			methodMatch := req.Method == exp.Method
			pathMatch := matchPath(req.Path, exp.Path)
			actionMatch := exp.Action == "" || req.Action == exp.Action
			targetMatch := exp.Target == "" || req.Target == exp.Target

			if methodMatch && pathMatch && actionMatch && targetMatch {
				found = true
				break
			}
		}
		if !found {
			if exp.Action != "" {
				return fmt.Errorf("expected call not found: %s %s %s [%s %s]", exp.Service, exp.Method, exp.Path, exp.Action, exp.Target)
			}
			return fmt.Errorf("expected call not found: %s %s %s", exp.Service, exp.Method, exp.Path)
		}
	}
	return nil
}

// validateActions verifies that all expected AWS actions were called and no
// forbidden action was.
func validateActions(expected, forbidden []string, reqs []RequestRecord) error {
	actionCounts := make(map[string]int)
	for _, req := range reqs {
		if req.Action != "" {
			actionCounts[req.Action]++
		}
	}

	for _, exp := range expected {
		if actionCounts[exp] == 0 {
			return fmt.Errorf("expected action not found: %s", exp)
		}
	}
	for _, f := range forbidden {
		if actionCounts[f] > 0 {
			return fmt.Errorf("forbidden action called %d times: %s", actionCounts[f], f)
		}
	}
	return nil
}
