package queue

import (
	"context"
	"time"

	"reelpipe/infrastructure/logger"
	"reelpipe/infrastructure/utils"

	"cloud.google.com/go/pubsub"
)

const (
	notBeforeAttr = "not_before"
	// maxHold is the longest a consumer keeps a deferred message in a
	// receive slot. Longer deferrals are nacked and come back through the
	// subscription retry policy.
	maxHold = 10 * time.Second
)

var jobRetryPolicy = &pubsub.RetryPolicy{
	MinimumBackoff: 10 * time.Second,
	MaximumBackoff: 600 * time.Second,
}

// PubSubTransport carries jobs over Google Cloud Pub/Sub. Pub/Sub has no
// delayed delivery, so a due time travels as an attribute. Messages due
// within maxHold are held; later ones are nacked and redelivered after the
// subscription backoff, so a deferred job never pins a worker slot.
type PubSubTransport struct {
	client       *pubsub.Client
	topic        *pubsub.Topic
	subscription string
}

func NewPubSubTransport(ctx context.Context, projectID, topicName, subscription string) (*PubSubTransport, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	topic := client.Topic(topicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, err
	}
	if !exists {
		logger.GetLogger().WithField("topic", topicName).Info("Topic doesn't exist - creating it")
		if topic, err = client.CreateTopic(ctx, topicName); err != nil {
			client.Close()
			return nil, err
		}
	}
	sub := client.Subscription(subscription)
	if ok, err := sub.Exists(ctx); err != nil {
		client.Close()
		return nil, err
	} else if !ok {
		if _, err := client.CreateSubscription(ctx, subscription, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: time.Minute,
			RetryPolicy: jobRetryPolicy,
		}); err != nil {
			client.Close()
			return nil, err
		}
	} else if _, err := sub.Update(ctx, pubsub.SubscriptionConfigToUpdate{RetryPolicy: jobRetryPolicy}); err != nil {
		logger.GetLogger().WithError(err).WithField("subscription", subscription).Warn("Failed to set subscription retry policy")
	}
	return &PubSubTransport{client: client, topic: topic, subscription: subscription}, nil
}

func (t *PubSubTransport) Publish(ctx context.Context, job Job, delay time.Duration) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = utils.GetCurrentTime()
	}
	payload, err := job.Encode()
	if err != nil {
		return err
	}
	msg := &pubsub.Message{Data: payload}
	if delay > 0 {
		msg.Attributes = map[string]string{notBeforeAttr: utils.FormatTimestamp(time.Now().Add(delay))}
	}
	serverID, err := t.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return err
	}
	logger.GetLogger().WithField("server_id", serverID).WithField("task_id", job.TaskID).Debug("Message published")
	return nil
}

func (t *PubSubTransport) Consume(ctx context.Context, workers int, handle Handler) error {
	sub := t.client.Subscription(t.subscription)
	sub.ReceiveSettings.MaxOutstandingMessages = workers
	sub.ReceiveSettings.MaxExtension = 6 * time.Hour
	return sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		job, err := DecodeJob(m.Data)
		if err != nil {
			logger.GetLogger().WithError(err).Error("dropping malformed job")
			m.Ack()
			return
		}
		hold, ok := holdFor(m.Attributes, time.Now(), maxHold)
		if !ok || !utils.SleepWithContext(ctx, hold) {
			m.Nack()
			return
		}
		if err := handle(ctx, job); err != nil {
			m.Nack()
			return
		}
		m.Ack()
	})
}

// holdFor reports how long to keep a message before handling it. ok is false
// when the message is due later than limit and should be nacked instead.
func holdFor(attrs map[string]string, now time.Time, limit time.Duration) (hold time.Duration, ok bool) {
	due, found := attrs[notBeforeAttr]
	if !found {
		return 0, true
	}
	at, err := utils.ParseTimestamp(due)
	if err != nil {
		return 0, true
	}
	hold = at.Sub(now)
	if hold <= 0 {
		return 0, true
	}
	return hold, hold <= limit
}

func (t *PubSubTransport) Close() error {
	t.topic.Stop()
	return t.client.Close()
}
