// Package notify delivers checkpoint summaries.
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/wonny/gapwatch/internal/contracts"
	"github.com/wonny/gapwatch/internal/observability"
	"github.com/wonny/gapwatch/pkg/logger"
)

// SNSAPI is the slice of the SNS client the notifier uses
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes summaries to an SNS topic
type SNSNotifier struct {
	client   SNSAPI
	topicARN string
	logger   *logger.Logger
}

var _ contracts.Notifier = (*SNSNotifier)(nil)

// NewSNSNotifier creates a notifier over client
func NewSNSNotifier(client SNSAPI, topicARN string, log *logger.Logger) *SNSNotifier {
	return &SNSNotifier{
		client:   client,
		topicARN: topicARN,
		logger:   log.WithField("module", "notify"),
	}
}

// NewSNSNotifierFromEnv builds the SNS client from the default AWS credential chain
func NewSNSNotifierFromEnv(ctx context.Context, region, topicARN string, log *logger.Logger) (*SNSNotifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSNSNotifier(sns.NewFromConfig(awsCfg), topicARN, log), nil
}

// Notify publishes the checkpoint summary
func (n *SNSNotifier) Notify(ctx context.Context, r *contracts.CheckpointResult) error {
	return n.publish(ctx, FormatSummary(r))
}

// NotifyFailure publishes a failure alert
func (n *SNSNotifier) NotifyFailure(ctx context.Context, date, label string, cause error) error {
	return n.publish(ctx, FormatFailure(date, label, cause))
}

func (n *SNSNotifier) publish(ctx context.Context, msg Message) error {
	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(msg.Subject),
		Message:  aws.String(msg.Body),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}

	n.logger.WithField("subject", msg.Subject).Info("SNS notification sent")
	return nil
}

// LogNotifier writes summaries to the log (development, dry runs)
type LogNotifier struct {
	logger *logger.Logger
}

var _ contracts.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log.WithField("module", "notify")}
}

// Notify logs the summary
func (n *LogNotifier) Notify(ctx context.Context, r *contracts.CheckpointResult) error {
	msg := FormatSummary(r)
	n.logger.WithFields(map[string]interface{}{
		"subject": msg.Subject,
		"body":    msg.Body,
	}).Info("Checkpoint summary")
	return nil
}

// NotifyFailure logs the alert
func (n *LogNotifier) NotifyFailure(ctx context.Context, date, label string, cause error) error {
	msg := FormatFailure(date, label, cause)
	n.logger.WithError(cause).WithField("subject", msg.Subject).Error("Checkpoint failure alert")
	return nil
}

// Dispatch sends the summary. A notifier error is logged and counted, never
// returned: the checkpoint is already durable.
func Dispatch(ctx context.Context, n contracts.Notifier, r *contracts.CheckpointResult, m *observability.Metrics, log *logger.Logger) {
	err := n.Notify(ctx, r)
	m.ObserveNotification("summary", err)
	if err != nil {
		log.WithError(err).WithFields(map[string]interface{}{
			"date":       r.Date,
			"checkpoint": r.Label,
		}).Error("Failed to send notification")
	}
}

// DispatchFailure sends a failure alert when enabled; errors are logged only
func DispatchFailure(ctx context.Context, n contracts.Notifier, enabled bool, date, label string, cause error, m *observability.Metrics, log *logger.Logger) {
	if !enabled {
		return
	}
	err := n.NotifyFailure(ctx, date, label, cause)
	m.ObserveNotification("failure", err)
	if err != nil {
		log.WithError(err).WithFields(map[string]interface{}{
			"date":       date,
			"checkpoint": label,
		}).Error("Failed to send failure alert")
	}
}
