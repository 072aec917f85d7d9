package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fatflowers/paydesk/pkg/config"
)

// Transport delivers an encoded message to a topic. key groups messages about
// the same subscription.
type Transport interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close() error
}

func NewTransport(cfg *config.Config, log *zap.SugaredLogger) (Transport, error) {
	nc := cfg.Notification
	switch nc.Transport {
	case "sns":
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(nc.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return &SNSTransport{client: sns.NewFromConfig(awsCfg)}, nil
	case "kafka":
		if len(nc.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("notification.kafka_brokers is empty")
		}
		return &KafkaTransport{writer: &kafka.Writer{
			Addr:                   kafka.TCP(nc.KafkaBrokers...),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: !cfg.IsProd(),
		}}, nil
	default:
		return &LogTransport{log: log}, nil
	}
}

// LogTransport writes messages to the process log. Used in development and
// where the mail collaborator tails logs.
type LogTransport struct {
	log *zap.SugaredLogger
}

func (t *LogTransport) Publish(ctx context.Context, topic, key string, payload []byte) error {
	t.log.Infow("notification published", "topic", topic, "key", key, "payload", string(payload))
	return nil
}

func (t *LogTransport) Close() error { return nil }

type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSTransport treats topic as a topic ARN.
type SNSTransport struct {
	client snsPublisher
}

func (t *SNSTransport) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if topic == "" {
		return fmt.Errorf("sns publish: empty topic arn")
	}
	_, err := t.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topic),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"key": {DataType: aws.String("String"), StringValue: aws.String(key)},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish to %s: %w", topic, err)
	}
	return nil
}

func (t *SNSTransport) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaTransport sets the topic per message; the writer has none of its own.
type KafkaTransport struct {
	writer messageWriter
}

func (t *KafkaTransport) Publish(ctx context.Context, topic, key string, payload []byte) error {
	err := t.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: []byte(key), Value: payload})
	if err != nil {
		return fmt.Errorf("kafka publish to %s: %w", topic, err)
	}
	return nil
}

func (t *KafkaTransport) Close() error { return t.writer.Close() }
