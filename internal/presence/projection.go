package presence

import (
	"context"
	"encoding/json"

	"counsel-chat-be/internal/pkg/logger"
	"counsel-chat-be/internal/repository/unitofwork"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

const ProjectionTopic = "presence.changed"

// Sink receives presence changes from the projection worker.
type Sink interface {
	Apply(ctx context.Context, change Change) error
}

// ProjectionPublisher forwards registry changes onto the presence topic.
type ProjectionPublisher struct {
	publisher message.Publisher
	logger    logger.ILogger
}

func NewProjectionPublisher(publisher message.Publisher, log logger.ILogger) *ProjectionPublisher {
	return &ProjectionPublisher{publisher: publisher, logger: log}
}

func (p *ProjectionPublisher) OnPresenceChange(change Change) {
	payload, err := json.Marshal(change)
	if err != nil {
		p.logger.Error("PROJECTION", "Failed to marshal presence change", map[string]interface{}{"error": err.Error()})
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.publisher.Publish(ProjectionTopic, msg); err != nil {
		p.logger.Error("PROJECTION", "Failed to publish presence change", map[string]interface{}{
			"user_id": change.UserID,
			"error":   err.Error(),
		})
	}
}

// ProjectionWorker applies presence changes to the read-models. It is eventually
// consistent with the registry and never feeds back into it.
type ProjectionWorker struct {
	subscriber message.Subscriber
	sinks      []Sink
	logger     logger.ILogger
}

func NewProjectionWorker(subscriber message.Subscriber, log logger.ILogger, sinks ...Sink) *ProjectionWorker {
	return &ProjectionWorker{subscriber: subscriber, sinks: sinks, logger: log}
}

// Run subscribes and processes messages in the background until ctx is done.
func (w *ProjectionWorker) Run(ctx context.Context) error {
	messages, err := w.subscriber.Subscribe(ctx, ProjectionTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			w.process(ctx, msg)
		}
	}()
	return nil
}

func (w *ProjectionWorker) process(ctx context.Context, msg *message.Message) {
	var change Change
	if err := json.Unmarshal(msg.Payload, &change); err != nil {
		w.logger.Error("PROJECTION", "Dropping malformed presence change", map[string]interface{}{"error": err.Error()})
		msg.Ack()
		return
	}

	// Best effort: a failing sink is logged and the next change corrects it.
	for _, sink := range w.sinks {
		if err := sink.Apply(ctx, change); err != nil {
			w.logger.Warn("PROJECTION", "Sink failed to apply presence change", map[string]interface{}{
				"user_id": change.UserID,
				"online":  change.Online,
				"error":   err.Error(),
			})
		}
	}
	msg.Ack()
}

// StoreSink mirrors presence into the profile read-model.
type StoreSink struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewStoreSink(uowFactory unitofwork.RepositoryFactory) *StoreSink {
	return &StoreSink{uowFactory: uowFactory}
}

func (s *StoreSink) Apply(ctx context.Context, change Change) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	return uow.UserRepository().UpdatePresence(ctx, change.UserID, change.Online, change.At)
}
