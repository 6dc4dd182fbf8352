package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"autograde/internal/common/mq"
	"autograde/internal/grading/model"
	"autograde/internal/grading/observer"
	appErr "autograde/pkg/errors"
	"autograde/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ResultRepository stores the latest record per submission and its status history.
type ResultRepository interface {
	Save(ctx context.Context, rec model.ResultRecord) error
	Get(ctx context.Context, submissionID string) (model.ResultRecord, error)
	History(ctx context.Context, submissionID string) ([]model.StatusChange, error)
}

// EventPublisher announces terminal records.
type EventPublisher interface {
	PublishResult(ctx context.Context, ev model.ResultEvent) error
}

// TestPackStore loads and stores grading configurations kept in object storage.
type TestPackStore interface {
	Load(ctx context.Context, key string) (model.TestPack, error)
	Save(ctx context.Context, key string, pack model.TestPack) error
}

// Config holds service dependencies and settings.
type Config struct {
	Grader   *Grader
	Results  ResultRepository
	Events   EventPublisher
	Packs    TestPackStore
	Producer mq.Producer
	Metrics  observer.MetricsRecorder

	JobTopic          string
	MaxConcurrentJobs int
	SlotTimeout       time.Duration
	StatusTimeout     time.Duration
}

// Service runs grading requests synchronously or from the job queue and keeps their records.
type Service struct {
	grader        *Grader
	results       ResultRepository
	events        EventPublisher
	packs         TestPackStore
	producer      mq.Producer
	metrics       observer.MetricsRecorder
	jobTopic      string
	slotTimeout   time.Duration
	statusTimeout time.Duration
	sem           chan struct{}
}

// NewService creates a grading service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Grader == nil {
		return nil, fmt.Errorf("grader is required")
	}
	if cfg.Results == nil {
		return nil, fmt.Errorf("result repository is required")
	}
	poolSize := cfg.MaxConcurrentJobs
	if poolSize <= 0 {
		poolSize = 1
	}
	slotTimeout := cfg.SlotTimeout
	if slotTimeout <= 0 {
		slotTimeout = 2 * time.Second
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observer.Nop{}
	}
	return &Service{
		grader:        cfg.Grader,
		results:       cfg.Results,
		events:        cfg.Events,
		packs:         cfg.Packs,
		producer:      cfg.Producer,
		metrics:       metrics,
		jobTopic:      cfg.JobTopic,
		slotTimeout:   slotTimeout,
		statusTimeout: cfg.StatusTimeout,
		sem:           make(chan struct{}, poolSize),
	}, nil
}

// GradeNow grades req in the caller's goroutine and stores the unredacted record.
// A storage failure is logged; the graded record is still returned.
func (s *Service) GradeNow(ctx context.Context, req model.GradingRequest) (model.ResultRecord, error) {
	if req.SubmissionID == "" {
		req.SubmissionID = uuid.NewString()
	}
	if err := s.acquireSlot(ctx); err != nil {
		return model.ResultRecord{}, err
	}
	defer s.releaseSlot(ctx)

	req, err := s.resolve(ctx, req)
	if err != nil {
		return model.ResultRecord{}, err
	}
	res, err := s.grader.Grade(ctx, req)
	if err != nil {
		return model.ResultRecord{}, err
	}
	rec := model.ResultRecord{
		SubmissionID: req.SubmissionID,
		Owner:        req.Owner,
		Status:       model.StatusFinished,
		Result:       &res,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.saveRecord(ctx, rec); err != nil {
		logger.Warn(ctx, "persist grading result failed", zap.String("submission_id", rec.SubmissionID), zap.Error(err))
	}
	s.publish(ctx, rec)
	return rec, nil
}

// Enqueue checks req, records it as pending and hands it to the job queue.
func (s *Service) Enqueue(ctx context.Context, req model.GradingRequest) (string, error) {
	if s.producer == nil || s.jobTopic == "" {
		return "", appErr.New(appErr.ServiceUnavailable).WithMessage("job queue is not configured")
	}
	if err := checkRequest(req); err != nil {
		return "", err
	}
	if req.SubmissionID == "" {
		req.SubmissionID = uuid.NewString()
	}
	job := model.GradingJob{JobID: uuid.NewString(), Request: req, EnqueuedAt: time.Now().UTC()}
	body, err := json.Marshal(job)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "encode grading job failed")
	}

	pending := model.ResultRecord{
		SubmissionID: req.SubmissionID,
		JobID:        job.JobID,
		Owner:        req.Owner,
		Status:       model.StatusPending,
		UpdatedAt:    job.EnqueuedAt,
	}
	if err := s.saveRecord(ctx, pending); err != nil {
		return "", err
	}
	if err := s.producer.Publish(ctx, s.jobTopic, mq.NewMessage(job.JobID, body)); err != nil {
		return "", appErr.Wrapf(err, appErr.ServiceUnavailable, "publish grading job failed")
	}
	logger.Info(ctx, "grading job enqueued", zap.String("job_id", job.JobID), zap.String("submission_id", req.SubmissionID))
	return job.JobID, nil
}

// HandleMessage processes a grading job from the queue. Jobs that can never
// succeed are recorded as failed and acknowledged; infrastructure errors are
// returned so the queue retries them.
func (s *Service) HandleMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	var job model.GradingJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		logger.Warn(ctx, "drop undecodable grading job", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	if job.JobID == "" {
		job.JobID = msg.ID
	}
	if job.Request.SubmissionID == "" {
		logger.Warn(ctx, "drop grading job without submission id", zap.String("job_id", job.JobID))
		return nil
	}
	req := job.Request

	pending := model.ResultRecord{
		SubmissionID: req.SubmissionID,
		JobID:        job.JobID,
		Owner:        req.Owner,
		Status:       model.StatusPending,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.saveRecord(ctx, pending); err != nil {
		return err
	}

	if err := s.acquireSlot(ctx); err != nil {
		return err
	}
	defer s.releaseSlot(ctx)

	running := pending
	running.Status = model.StatusRunning
	running.UpdatedAt = time.Now().UTC()
	if err := s.saveRecord(ctx, running); err != nil {
		return err
	}

	req, err := s.resolve(ctx, req)
	if err != nil {
		return s.handleFailure(ctx, running, err)
	}
	res, err := s.grader.Grade(ctx, req)
	if err != nil {
		return s.handleFailure(ctx, running, err)
	}

	finished := running
	finished.Status = model.StatusFinished
	finished.Result = &res
	finished.UpdatedAt = time.Now().UTC()
	if err := s.saveRecord(ctx, finished); err != nil {
		return err
	}
	s.publish(ctx, finished)
	return nil
}

// GetResult returns the stored record for submissionID.
func (s *Service) GetResult(ctx context.Context, submissionID string) (model.ResultRecord, error) {
	if strings.TrimSpace(submissionID) == "" {
		return model.ResultRecord{}, appErr.ValidationError("submissionId", "required")
	}
	return s.results.Get(ctx, submissionID)
}

// GetHistory returns the status changes recorded for submissionID.
func (s *Service) GetHistory(ctx context.Context, submissionID string) ([]model.StatusChange, error) {
	if strings.TrimSpace(submissionID) == "" {
		return nil, appErr.ValidationError("submissionId", "required")
	}
	return s.results.History(ctx, submissionID)
}

// PutTestPack validates pack and stores it under key.
func (s *Service) PutTestPack(ctx context.Context, key string, pack model.TestPack) error {
	if s.packs == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("test pack storage is not configured")
	}
	if strings.TrimSpace(key) == "" {
		return appErr.ValidationError("key", "required")
	}
	if _, err := model.ParsePolicy(string(pack.Policy)); err != nil {
		return err
	}
	if err := pack.Config.Validate(); err != nil {
		return err
	}
	if pack.TimeLimitSeconds < 0 || pack.MemoryLimitKb < 0 {
		return appErr.ValidationError("limits", "must not be negative")
	}
	if err := s.packs.Save(ctx, key, pack); err != nil {
		return err
	}
	logger.Info(ctx, "test pack stored", zap.String("key", key), zap.String("mode", string(pack.Config.Mode())))
	return nil
}

func (s *Service) resolve(ctx context.Context, req model.GradingRequest) (model.GradingRequest, error) {
	if !req.Config.IsZero() || req.TestPackKey == "" {
		return req, nil
	}
	if s.packs == nil {
		return req, appErr.New(appErr.TestPackNotFound).WithMessage("test pack storage is not configured")
	}
	pack, err := s.packs.Load(ctx, req.TestPackKey)
	if err != nil {
		return req, err
	}
	req.Config = pack.Config
	if req.Policy == "" {
		req.Policy = pack.Policy
	}
	if req.TimeLimitSeconds == 0 {
		req.TimeLimitSeconds = pack.TimeLimitSeconds
	}
	if req.MemoryLimitKb == 0 {
		req.MemoryLimitKb = pack.MemoryLimitKb
	}
	return req, nil
}

// checkRequest rejects requests that would fail before any execution.
func checkRequest(req model.GradingRequest) error {
	if strings.TrimSpace(req.Code) == "" {
		return appErr.New(appErr.CodeEmpty)
	}
	if _, err := model.ParsePolicy(string(req.Policy)); err != nil {
		return err
	}
	if req.Config.IsZero() {
		if req.TestPackKey == "" {
			return appErr.Newf(appErr.GradingConfigInvalid, "grading configuration has neither tests nor groups")
		}
		return nil
	}
	return req.Config.Validate()
}

func (s *Service) acquireSlot(ctx context.Context) error {
	timer := time.NewTimer(s.slotTimeout)
	defer timer.Stop()
	select {
	case s.sem <- struct{}{}:
		s.metrics.JobStarted(ctx)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return appErr.New(appErr.GradingQueueFull)
	}
}

func (s *Service) releaseSlot(ctx context.Context) {
	select {
	case <-s.sem:
		s.metrics.JobFinished(ctx)
	default:
	}
}

func (s *Service) saveRecord(ctx context.Context, rec model.ResultRecord) error {
	ctxStatus := ctx
	if s.statusTimeout > 0 {
		var cancel context.CancelFunc
		ctxStatus, cancel = context.WithTimeout(ctx, s.statusTimeout)
		defer cancel()
	}
	return s.results.Save(ctxStatus, rec)
}

func (s *Service) publish(ctx context.Context, rec model.ResultRecord) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishResult(ctx, model.EventFromRecord(rec)); err != nil {
		logger.Warn(ctx, "publish grading result event failed", zap.String("submission_id", rec.SubmissionID), zap.Error(err))
	}
}

func (s *Service) handleFailure(ctx context.Context, running model.ResultRecord, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Partial results are discarded; the job stays running until redelivered.
		return err
	}
	code := appErr.GetCode(err)
	failed := running
	failed.Status = model.StatusFailed
	failed.ErrorCode = int(code)
	failed.ErrorMessage = err.Error()
	failed.UpdatedAt = time.Now().UTC()
	if saveErr := s.saveRecord(ctx, failed); saveErr != nil {
		logger.Warn(ctx, "update failure status failed", zap.Error(saveErr))
	}
	s.publish(ctx, failed)
	if permanent(code) {
		logger.Warn(ctx, "grading job rejected", zap.String("job_id", running.JobID), zap.Int("code", int(code)), zap.Error(err))
		return nil
	}
	return err
}

func permanent(code appErr.ErrorCode) bool {
	switch {
	case code >= appErr.GradingConfigInvalid && code < appErr.GradingQueueFull:
		return true
	case code == appErr.InvalidParams, code == appErr.ValidationFailed:
		return true
	}
	return false
}
