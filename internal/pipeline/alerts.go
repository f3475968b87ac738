// internal/pipeline/alerts.go
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	awsclient "pages-deployer/internal/common/aws"
	apperrors "pages-deployer/internal/common/errors"
	"pages-deployer/internal/models"
)

// Alerter tells operators about fatal runs.
type Alerter interface {
	Alert(ctx context.Context, run models.BuildRun) error
}

// SNSAlerter publishes fatal runs as JSON to a topic.
type SNSAlerter struct {
	client   awsclient.SNSService
	topicARN string
}

func NewSNSAlerter(client awsclient.SNSService, topicARN string) *SNSAlerter {
	return &SNSAlerter{client: client, topicARN: topicARN}
}

func (a *SNSAlerter) Alert(ctx context.Context, run models.BuildRun) error {
	body, err := json.Marshal(run)
	if err != nil {
		return apperrors.NewAlertPublishFailedError(err)
	}

	_, err = a.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(a.topicARN),
		Subject:  aws.String(truncate(fmt.Sprintf("Build failed: %s round %d", run.Identity, run.Round), 100)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"errorCode": {DataType: aws.String("String"), StringValue: aws.String(nonEmpty(run.ErrorCode, "UNKNOWN"))},
			"round":     {DataType: aws.String("Number"), StringValue: aws.String(fmt.Sprint(run.Round))},
		},
	})
	if err != nil {
		return apperrors.NewAlertPublishFailedError(err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
