// Package constants provides shared constant values used throughout the application.
package constants

import "time"

// Scheduling defaults
const (
	// DefaultScheduleTagKey is the opt-in tag key used when a request omits one.
	DefaultScheduleTagKey = "Schedule"

	// DefaultMaxConcurrency bounds the number of clusters processed at once.
	DefaultMaxConcurrency = 5

	// DefaultMaxAttempts is the start/stop attempt cap per cluster.
	DefaultMaxAttempts = 3

	// DefaultRetryInitialInterval is the first backoff delay between attempts.
	DefaultRetryInitialInterval = 1 * time.Second

	// DefaultRetryMaxInterval caps the backoff delay between attempts.
	DefaultRetryMaxInterval = 10 * time.Second

	// DefaultRetryMultiplier is the backoff growth factor.
	DefaultRetryMultiplier = 2.0

	// DefaultRetryJitter is the randomization factor applied to each delay.
	DefaultRetryJitter = 0.1

	// DefaultActionTimeout is the deadline for a single start/stop call.
	DefaultActionTimeout = 30 * time.Second

	// DefaultRunTimeout is the deadline for a whole run.
	DefaultRunTimeout = 10 * time.Minute

	// DescribeClustersPageSize is the MaxRecords value used when listing clusters.
	DescribeClustersPageSize = 100
)

// Outcome reasons. These are recorded verbatim in ActionOutcome.Reason.
const (
	ReasonServerlessV1   = "serverless v1 not stoppable"
	ReasonMultiMaster    = "multi-master not stoppable"
	ReasonParallelQuery  = "parallel query not stoppable"
	ReasonGlobal         = "global database not stoppable"
	ReasonMultiAZCluster = "multi-AZ DB cluster variant not supported"

	ReasonAlreadyRunning = "already running"
	ReasonAlreadyStopped = "already stopped"
	ReasonInTransition   = "transition in progress"

	ReasonTagLookupError   = "tag lookup error"
	ReasonStateLookupError = "state lookup error"
	ReasonRetriesExhausted = "transient error exhausted retries"
	ReasonRunCancelled     = "run cancelled before action completed"
)

// Default region
const (
	// DefaultAWSRegion is the default AWS region when not specified.
	DefaultAWSRegion = "us-east-1"

	// AllRegions selects every enabled region of the account.
	AllRegions = "all"
)

// HTTP server defaults
const (
	// DefaultHTTPPort is the default HTTP server port.
	DefaultHTTPPort = "8080"

	// DefaultReadTimeout is the default HTTP read timeout.
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout. A synchronous run
	// may take several minutes, so this is longer than the read timeout.
	DefaultWriteTimeout = 11 * time.Minute

	// DefaultIdleTimeout is the default HTTP idle timeout.
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout.
	DefaultShutdownTimeout = 30 * time.Second

	// DemoShutdownTimeout is the shutdown timeout for demo mode.
	DemoShutdownTimeout = 5 * time.Second
)

// Run archive
const (
	// DefaultRunListLimit is the number of runs returned by GET /api/runs.
	DefaultRunListLimit = 50
)

// File permissions
const (
	// DefaultDirMode is the default permission mode for directories.
	DefaultDirMode = 0755

	// DefaultFileMode is the default permission mode for files.
	DefaultFileMode = 0644
)

// Demo mode constants
const (
	// DemoModeRetryAttempts is the SDK retry attempt count in demo mode.
	// The executor does its own retrying.
	DemoModeRetryAttempts = 1

	// DemoRetryInitialInterval shortens executor backoff against the mock.
	DemoRetryInitialInterval = 50 * time.Millisecond
)
