package container

import (
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/samber/do"
	"github.com/serroba/admission/internal/events"
	"github.com/serroba/admission/internal/messaging"
	"go.uber.org/zap"
)

// ConsumerGroupName is the redis stream consumer group of the events consumer.
const ConsumerGroupName = "admission-events"

// PublisherGroupPackage provides the *messaging.PublisherGroup and the typed publish
// function for denied decisions. With events disabled the function discards everything
// and no redis connection is opened.
func PublisherGroupPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		client := do.MustInvoke[*RedisClient](i)
		logger := do.MustInvoke[*zap.Logger](i)

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client:     client.Client,
				Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
			},
			messaging.NewZapLogger(logger.Named("publisher")),
		)
		if err != nil {
			return nil, err
		}

		return messaging.NewPublisherGroup(publisher), nil
	})

	do.Provide(injector, func(i *do.Injector) (messaging.Publish[events.DecisionEvent], error) {
		opts := do.MustInvoke[*Options](i)
		if !opts.Events {
			return messaging.Discard[events.DecisionEvent](), nil
		}

		group := do.MustInvoke[*messaging.PublisherGroup](i)

		return messaging.NewPublishFunc[events.DecisionEvent](group.Publisher(), events.TopicDecisionDenied), nil
	})
}

// ConsumerGroupPackage provides the *messaging.Group consuming denied decisions.
func ConsumerGroupPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*messaging.Group, error) {
		opts := do.MustInvoke[*Options](i)
		client := do.MustInvoke[*RedisClient](i)
		logger := do.MustInvoke[*zap.Logger](i)

		subscriber, err := redisstream.NewSubscriber(
			redisstream.SubscriberConfig{
				Client:        client.Client,
				Unmarshaller:  redisstream.DefaultMarshallerUnmarshaller{},
				ConsumerGroup: ConsumerGroupName,
			},
			messaging.NewZapLogger(logger.Named("subscriber")),
		)
		if err != nil {
			return nil, err
		}

		group := messaging.NewGroup(subscriber, logger)
		group.Add(messaging.NewConsumer(
			subscriber,
			events.TopicDecisionDenied,
			events.Handler(events.NewLogStore(logger.Named("events"))),
			logger,
			messaging.WithMaxAttempts(opts.EventAttempts),
		))

		return group, nil
	})
}
