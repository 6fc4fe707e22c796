// Package main runs scheduler scenarios offline against canned RDS HTTP
// responses, without live AWS credentials.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func main() {
	scenarioFile := flag.String("scenarios", "fixtures/scenarios.yaml", "path to test scenarios file")
	verbose := flag.Bool("verbose", false, "enable verbose output")
	scenarioFilter := flag.String("filter", "", "run only scenarios matching this name")
	list := flag.Bool("list", false, "list scenarios and exit")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	loadEnv(logger)

	scenarios, err := loadScenarios(*scenarioFile)
	if err != nil {
		logger.Error("failed to load scenarios", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if *list {
		for _, s := range scenarios {
			fmt.Printf("%-32s %s\n", s.Name, s.Description)
		}
		return
	}

	ctx := context.Background()
	var passed, skipped int
	var failures []string

	for _, scenario := range scenarios {
		if *scenarioFilter != "" && !strings.Contains(scenario.Name, *scenarioFilter) {
			skipped++
			continue
		}

		if err := runScenario(ctx, scenario, *verbose, logger); err != nil {
			fmt.Printf("  FAILED: %v\n\n", err)
			failures = append(failures, scenario.Name)
			continue
		}
		passed++
	}

	separator := strings.Repeat("=", 60)
	fmt.Printf("\n%s\n", separator)
	if len(failures) > 0 {
		fmt.Printf("  Test Results: %d passed, %d failed, %d skipped\n", passed, len(failures), skipped)
		for _, name := range failures {
			fmt.Printf("    - %s\n", name)
		}
	} else {
		fmt.Printf("  Test Results: All %d tests passed, %d skipped\n", passed, skipped)
	}
	fmt.Printf("%s\n", separator)

	if len(failures) > 0 {
		os.Exit(1)
	}
}

// loadEnv loads cmd/verify/.env, falling back to .env.test.
func loadEnv(logger *slog.Logger) {
	for _, name := range []string{".env", ".env.test"} {
		path := filepath.Join("cmd", "verify", name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			logger.Warn("failed to load env file", slog.String("path", path), slog.String("error", err.Error()))
		}
		return
	}
}

func loadScenarios(path string) ([]TestScenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}

	var scenarios []TestScenario
	if err := yaml.Unmarshal(raw, &scenarios); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return scenarios, nil
}
