// Package notifiers provides notification integrations.
package notifiers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

// maxListedClusters caps how many identifiers are spelled out per list.
const maxListedClusters = 10

// SlackNotifier sends notifications to Slack.
type SlackNotifier struct {
	client  *slack.Client
	channel string
	apiURL  string
}

// NewSlackNotifier creates a new Slack notifier.
func NewSlackNotifier(token, channel string) *SlackNotifier {
	return &SlackNotifier{
		client:  slack.New(token),
		channel: channel,
	}
}

// NewSlackNotifierWithAPIURL creates a Slack notifier with a custom API URL (for testing).
func NewSlackNotifierWithAPIURL(token, channel, apiURL string) *SlackNotifier {
	opts := []slack.Option{}
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return &SlackNotifier{
		client:  slack.New(token, opts...),
		channel: channel,
		apiURL:  apiURL,
	}
}

// NotifyRunCompleted posts the tri-partite report of a finished run.
func (n *SlackNotifier) NotifyRunCompleted(ctx context.Context, result *types.RunResult) error {
	icon := ":white_check_mark:"
	if len(result.Report.FailedClusters) > 0 {
		icon = ":warning:"
	}

	text := fmt.Sprintf("%s *RDS Cluster %s Run Completed*\n"+
		"• *Run*: `%s`\n"+
		"• *Tag*: `%s`\n"+
		"• *Regions*: %s\n"+
		"• *Duration*: %s\n"+
		"• *Processed* (%d): %s\n"+
		"• *Skipped* (%d): %s\n"+
		"• *Failed* (%d): %s",
		icon, result.Action, result.RunID, result.TagKey, regionList(result.Regions),
		result.Duration().Round(time.Second),
		len(result.Report.ProcessedClusters), clusterList(result.Report.ProcessedClusters),
		len(result.Report.SkippedClusters), clusterList(result.Report.SkippedClusters),
		len(result.Report.FailedClusters), clusterList(result.Report.FailedClusters))

	_, _, err := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	return err
}

// NotifyRunFailed posts a run that could not discover its clusters.
func (n *SlackNotifier) NotifyRunFailed(ctx context.Context, result *types.RunResult) error {
	text := fmt.Sprintf(":x: *RDS Cluster %s Run Failed*\n"+
		"• *Run*: `%s`\n"+
		"• *Tag*: `%s`\n"+
		"• *Regions*: %s\n"+
		"• *Error*: %s",
		result.Action, result.RunID, result.TagKey, regionList(result.Regions), result.Error)

	_, _, err := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	return err
}

func clusterList(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	quoted := make([]string, 0, min(len(ids), maxListedClusters))
	for _, id := range ids[:min(len(ids), maxListedClusters)] {
		quoted = append(quoted, "`"+id+"`")
	}
	list := strings.Join(quoted, ", ")
	if extra := len(ids) - maxListedClusters; extra > 0 {
		list += fmt.Sprintf(" and %d more", extra)
	}
	return list
}

func regionList(regions []string) string {
	if len(regions) == 0 {
		return "default"
	}
	return strings.Join(regions, ", ")
}

// NullNotifier is a no-op notifier for testing.
type NullNotifier struct{}

func (n *NullNotifier) NotifyRunCompleted(ctx context.Context, result *types.RunResult) error {
	return nil
}

func (n *NullNotifier) NotifyRunFailed(ctx context.Context, result *types.RunResult) error {
	return nil
}
