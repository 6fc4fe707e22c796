package rds

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/cockroachdb/errors"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/constants"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/scheduler"
)

// demoRegions is the static region list served in demo mode.
var demoRegions = []string{
	"us-east-1",
	"us-east-2",
	"us-west-2",
	"eu-west-1",
	"eu-central-1",
	"ap-southeast-2",
}

// ClientManager manages RDS clients for multiple regions.
// It lazily creates clients as needed and caches them for reuse.
type ClientManager struct {
	mu             sync.RWMutex
	clients        map[string]*Client
	baseConfig     aws.Config
	profile        string
	demoMode       bool
	baseURL        string // for demo mode
	rateLimit      float64
	defaultRegions []string
}

// ClientManagerConfig contains configuration for the ClientManager.
type ClientManagerConfig struct {
	// BaseConfig is the base AWS configuration (used for credentials).
	BaseConfig aws.Config
	// Profile is the AWS profile to use (optional).
	Profile string
	// DemoMode indicates if we're running in demo mode.
	DemoMode bool
	// BaseURL is the mock server URL for demo mode.
	BaseURL string
	// RateLimit caps RDS calls per second per region (0 = unlimited).
	RateLimit float64
	// DefaultRegions are used when a run names no regions. Defaults to the
	// base config region.
	DefaultRegions []string
}

// NewClientManager creates a new ClientManager.
func NewClientManager(cfg ClientManagerConfig) *ClientManager {
	defaults := cfg.DefaultRegions
	if len(defaults) == 0 {
		region := cfg.BaseConfig.Region
		if region == "" {
			region = constants.DefaultAWSRegion
		}
		defaults = []string{region}
	}

	return &ClientManager{
		clients:        make(map[string]*Client),
		baseConfig:     cfg.BaseConfig,
		profile:        cfg.Profile,
		demoMode:       cfg.DemoMode,
		baseURL:        cfg.BaseURL,
		rateLimit:      cfg.RateLimit,
		defaultRegions: defaults,
	}
}

// GetClient returns an RDS client for the specified region.
// Clients are cached and reused.
func (m *ClientManager) GetClient(ctx context.Context, region string) (*Client, error) {
	// Check cache first
	m.mu.RLock()
	client, ok := m.clients[region]
	m.mu.RUnlock()
	if ok {
		return client, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if client, ok := m.clients[region]; ok {
		return client, nil
	}

	var awsCfg aws.Config
	var err error

	if m.demoMode {
		// Demo mode: use anonymous credentials, the executor does the retrying.
		// The base config still supplies the HTTP client.
		awsCfg = m.baseConfig.Copy()
		awsCfg.Region = region
		awsCfg.RetryMaxAttempts = constants.DemoModeRetryAttempts
		awsCfg.Credentials = aws.AnonymousCredentials{}
	} else {
		opts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(region),
		}
		if m.profile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(m.profile))
		}

		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, errors.Wrapf(err, "load aws config for region %s", region)
		}
	}

	client = NewClient(ClientConfig{
		AWSConfig: awsCfg,
		BaseURL:   m.baseURL,
		RateLimit: m.rateLimit,
	})
	m.clients[region] = client

	return client, nil
}

// ListRegions returns the list of enabled AWS regions.
func (m *ClientManager) ListRegions(ctx context.Context) ([]string, error) {
	if m.demoMode {
		return slices.Clone(demoRegions), nil
	}

	ec2Client := ec2.NewFromConfig(m.baseConfig)
	out, err := ec2Client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{
		AllRegions: aws.Bool(false), // Only enabled regions
	})
	if err != nil {
		return nil, errors.Wrap(err, "describe regions")
	}

	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		if r.RegionName != nil {
			regions = append(regions, *r.RegionName)
		}
	}
	slices.Sort(regions)

	return regions, nil
}

// ResolveRegions expands a requested region list. Empty selects the default
// regions; "all" selects every enabled region. Duplicates are dropped.
func (m *ClientManager) ResolveRegions(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return slices.Clone(m.defaultRegions), nil
	}

	var regions []string
	seen := make(map[string]bool)
	for _, r := range requested {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if strings.EqualFold(r, constants.AllRegions) {
			return m.ListRegions(ctx)
		}
		if !seen[r] {
			seen[r] = true
			regions = append(regions, r)
		}
	}
	if len(regions) == 0 {
		return slices.Clone(m.defaultRegions), nil
	}
	return regions, nil
}

// Fleet builds a fleet spanning the requested regions. It satisfies
// scheduler.FleetResolver.
func (m *ClientManager) Fleet(ctx context.Context, requested []string) (scheduler.Fleet, error) {
	regions, err := m.ResolveRegions(ctx, requested)
	if err != nil {
		return nil, err
	}

	clients := make([]*Client, 0, len(regions))
	for _, region := range regions {
		client, err := m.GetClient(ctx, region)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return NewRegionalFleet(clients...), nil
}

// IsDemoMode returns whether the manager is in demo mode.
func (m *ClientManager) IsDemoMode() bool {
	return m.demoMode
}
