package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"autograde/internal/common/mq"
	"autograde/internal/grading/model"
	appErr "autograde/pkg/errors"
)

// MQResultEventPublisher publishes terminal grading records to a message queue.
type MQResultEventPublisher struct {
	producer mq.Producer
	topic    string
}

// NewMQResultEventPublisher creates a publisher for topic.
func NewMQResultEventPublisher(producer mq.Producer, topic string) *MQResultEventPublisher {
	return &MQResultEventPublisher{producer: producer, topic: topic}
}

// PublishResult publishes ev keyed by its submission id.
func (p *MQResultEventPublisher) PublishResult(ctx context.Context, ev model.ResultEvent) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("result publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("result topic is required")
	}
	if ev.SubmissionID == "" {
		return appErr.ValidationError("submissionId", "required")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal result event failed: %w", err)
	}
	message := mq.NewMessage(ev.SubmissionID, payload)
	message.SetHeader("status", string(ev.Status))
	if ev.JobID != "" {
		message.SetHeader("job_id", ev.JobID)
	}
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish result event failed")
	}
	return nil
}
