package queue

import (
	"context"
	"time"

	"reelpipe/infrastructure/logger"
	"reelpipe/infrastructure/utils"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"golang.org/x/sync/errgroup"
)

const lockRenewInterval = 30 * time.Second

// ServiceBusTransport carries jobs over an Azure Service Bus queue and uses
// scheduled enqueue time for delayed redelivery.
type ServiceBusTransport struct {
	client *azservicebus.Client
	queue  string
}

func NewServiceBusTransport(namespace, queue string) (*ServiceBusTransport, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	client, err := azservicebus.NewClient(namespace, cred, nil)
	if err != nil {
		return nil, err
	}
	return &ServiceBusTransport{client: client, queue: queue}, nil
}

func (t *ServiceBusTransport) Publish(ctx context.Context, job Job, delay time.Duration) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = utils.GetCurrentTime()
	}
	payload, err := job.Encode()
	if err != nil {
		return err
	}
	sender, err := t.client.NewSender(t.queue, nil)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Error while making new sender service bus.")
		return err
	}
	defer func() {
		if err := sender.Close(context.Background()); err != nil {
			logger.GetLogger().WithError(err).Error("Error while closing sender.")
		}
	}()

	contentType := "application/json"
	msg := &azservicebus.Message{Body: payload, ContentType: &contentType}
	if delay > 0 {
		at := time.Now().Add(delay)
		msg.ScheduledEnqueueTime = &at
	}
	return sender.SendMessage(ctx, msg, nil)
}

func (t *ServiceBusTransport) Consume(ctx context.Context, workers int, handle Handler) error {
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error { return t.work(ctx, handle) })
	}
	return g.Wait()
}

func (t *ServiceBusTransport) work(ctx context.Context, handle Handler) error {
	receiver, err := t.client.NewReceiverForQueue(t.queue, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := receiver.Close(context.Background()); err != nil {
			logger.GetLogger().WithError(err).Error("Error while closing receiver.")
		}
	}()

	for {
		messages, err := receiver.ReceiveMessages(ctx, 1, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.GetLogger().WithError(err).Warn("service bus receive failed")
			utils.SleepWithContext(ctx, time.Second)
			continue
		}
		for _, message := range messages {
			t.dispatch(ctx, receiver, message, handle)
		}
	}
}

func (t *ServiceBusTransport) dispatch(ctx context.Context, receiver *azservicebus.Receiver, message *azservicebus.ReceivedMessage, handle Handler) {
	job, err := DecodeJob(message.Body)
	if err != nil {
		logger.GetLogger().WithError(err).Error("dead-lettering malformed job")
		_ = receiver.DeadLetterMessage(ctx, message, nil)
		return
	}

	// Uploads outlive the message lock; renew until the handler returns.
	renewCtx, stopRenew := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(lockRenewInterval)
		defer ticker.Stop()
		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				if err := receiver.RenewMessageLock(renewCtx, message, nil); err != nil && renewCtx.Err() == nil {
					logger.GetLogger().WithField("task_id", job.TaskID).WithError(err).Warn("failed to renew message lock")
				}
			}
		}
	}()
	err = handle(ctx, job)
	stopRenew()

	settleCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err != nil {
		_ = receiver.AbandonMessage(settleCtx, message, nil)
		return
	}
	if err := receiver.CompleteMessage(settleCtx, message, nil); err != nil {
		logger.GetLogger().WithField("task_id", job.TaskID).WithError(err).Warn("failed to complete message")
	}
}

func (t *ServiceBusTransport) Close() error {
	return t.client.Close(context.Background())
}
