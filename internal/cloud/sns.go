package cloud

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog/log"
)

// Publisher is the subset of the SNS client used for alerts.
type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// AlertNotifier publishes operational alerts to an SNS topic.
type AlertNotifier struct {
	svc      Publisher
	topicArn string
	now      func() time.Time
}

func NewAlertNotifier(ctx context.Context, region, topicArn string) (*AlertNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return NewAlertNotifierWith(sns.NewFromConfig(cfg), topicArn), nil
}

func NewAlertNotifierWith(svc Publisher, topicArn string) *AlertNotifier {
	return &AlertNotifier{svc: svc, topicArn: topicArn, now: time.Now}
}

func (n *AlertNotifier) SendAlert(ctx context.Context, subject, message string) error {
	result, err := n.svc.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	log.Info().Str("message_id", aws.ToString(result.MessageId)).Str("subject", subject).Msg("alert sent")
	return nil
}

// NotifyCollectionFailure reports a failed telemetry collection.
func (n *AlertNotifier) NotifyCollectionFailure(ctx context.Context, cause error, consecutive int) error {
	subject := fmt.Sprintf("Carbon Portal: telemetry collection failed (%d in a row)", consecutive)
	message := fmt.Sprintf(
		"Telemetry Collection Failure\n\n"+
			"Error: %v\n"+
			"Consecutive failures: %d\n"+
			"Time: %s\n\n"+
			"A retry is scheduled automatically until the retry limit is reached.",
		cause,
		consecutive,
		n.now().Format(time.RFC3339),
	)
	return n.SendAlert(ctx, subject, message)
}
