package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/urbanscope/urbanscope/internal/dataset"
)

// ErrUnknownJob is returned for messages with an unrecognised job type.
// Such messages are acked so they are not redelivered.
var ErrUnknownJob = errors.New("unknown job type")

// StatusReporter exposes the dataset cache state for health checks.
type StatusReporter interface {
	CacheStatus() dataset.CacheStatus
}

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	jobs             *JobHandler
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Jobs             *JobHandler
	Logger           zerolog.Logger
}

// RefreshMessage represents a refresh job message.
type RefreshMessage struct {
	JobType string `json:"job_type"`

	// Invalidate drops the dataset cache before refreshing, so a failed
	// upstream call does not fall back to stale data.
	Invalidate bool `json:"invalidate,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 4
	subscriber.ReceiveSettings.MaxExtension = 5 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		jobs:             cfg.Jobs,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	err := h.jobs.Handle(ctx, msg.Data)
	switch {
	case err == nil, errors.Is(err, ErrUnknownJob):
		msg.Ack()
	default:
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
	}
}

// JobHandler executes decoded job messages. It is transport independent
// so the same jobs can be triggered from the admin API.
type JobHandler struct {
	refresh *RefreshJob
	cache   DatasetInvalidator
	status  StatusReporter
	logger  zerolog.Logger
}

// DatasetInvalidator drops the cached snapshot.
type DatasetInvalidator interface {
	InvalidateCache()
}

// JobHandlerConfig configures a JobHandler.
type JobHandlerConfig struct {
	Refresh *RefreshJob
	Dataset DatasetInvalidator
	Status  StatusReporter
	Logger  zerolog.Logger
}

// NewJobHandler creates a job handler.
func NewJobHandler(cfg JobHandlerConfig) *JobHandler {
	return &JobHandler{
		refresh: cfg.Refresh,
		cache:   cfg.Dataset,
		status:  cfg.Status,
		logger:  cfg.Logger,
	}
}

// Handle decodes and runs one job message.
func (h *JobHandler) Handle(ctx context.Context, data []byte) error {
	startTime := time.Now()

	var msg RefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("parse job message: %w", err)
	}

	var err error
	switch msg.JobType {
	case JobDatasetRefresh:
		err = h.handleDatasetRefresh(ctx, msg)
	case JobHealthCheck:
		err = h.handleHealthCheck()
	default:
		h.logger.Warn().Str("job_type", msg.JobType).Msg("unknown job type")
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
	if err != nil {
		return err
	}

	h.logger.Info().
		Str("job_type", msg.JobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return nil
}

func (h *JobHandler) handleDatasetRefresh(ctx context.Context, msg RefreshMessage) error {
	if msg.Invalidate && h.cache != nil {
		h.cache.InvalidateCache()
	}

	result := h.refresh.Run(ctx)
	if result.Failed > 0 {
		return fmt.Errorf("refresh failures: %d/%d", result.Failed, result.Total)
	}
	return nil
}

func (h *JobHandler) handleHealthCheck() error {
	if h.status != nil && !h.status.CacheStatus().HasData {
		return errors.New("dataset cache is empty")
	}
	return nil
}
