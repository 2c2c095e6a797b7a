// internal/common/broadcast/sns.go
package broadcast

import (
	"context"
	"encoding/json"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	pipelineerrors "gearbox-workers/internal/common/errors"
)

// SuggestionEvent is the message published when a reply suggestion is
// created, so downstream conversation services can surface it.
type SuggestionEvent struct {
	SuggestionID   string    `json:"suggestionId"`
	TenantID       string    `json:"tenantId"`
	ConversationID string    `json:"conversationId"`
	Text           string    `json:"text"`
	Confidence     float64   `json:"confidence"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Broadcaster delivers suggestion events to interested consumers.
type Broadcaster interface {
	PublishSuggestion(ctx context.Context, event SuggestionEvent) error
}

// SNSBroadcaster publishes suggestion events to an SNS topic.
type SNSBroadcaster struct {
	client   *sns.Client
	topicARN string
	logger   *zap.Logger
}

func NewSNSBroadcaster(ctx context.Context, region, topicARN string, logger *zap.Logger) (*SNSBroadcaster, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &SNSBroadcaster{
		client:   sns.NewFromConfig(cfg),
		topicARN: topicARN,
		logger:   logger,
	}, nil
}

func (b *SNSBroadcaster) PublishSuggestion(ctx context.Context, event SuggestionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return pipelineerrors.NewSuggestionDeliveryError(err)
	}

	message := string(body)
	tenantID := event.TenantID

	_, err = b.client.Publish(ctx, &sns.PublishInput{
		TopicArn: &b.topicARN,
		Message:  &message,
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"tenantId": {
				DataType:    strPtr("String"),
				StringValue: &tenantID,
			},
		},
	})
	if err != nil {
		return pipelineerrors.NewSuggestionDeliveryError(err)
	}

	b.logger.Debug("suggestion event published",
		zap.String("suggestionId", event.SuggestionID),
		zap.String("conversationId", event.ConversationID))

	return nil
}

func strPtr(s string) *string { return &s }

// NoopBroadcaster discards events. Used when broadcasting is disabled.
type NoopBroadcaster struct{}

func (NoopBroadcaster) PublishSuggestion(context.Context, SuggestionEvent) error { return nil }
