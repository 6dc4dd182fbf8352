package repository

import (
	"context"
	"encoding/json"
	"time"

	"autograde/internal/common/cache"
	"autograde/internal/grading/model"
	appErr "autograde/pkg/errors"
	"autograde/pkg/utils/logger"

	"go.uber.org/zap"
)

const resultKeyPrefix = "grading:result:"

// ResultRepository keeps grading records in the cache with an optional
// MySQL store behind it. Reads go through the cache and backfill it from
// the store on a miss.
type ResultRepository struct {
	cache    cache.Cache
	store    *ResultStore
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewResultRepository creates a repository. store may be nil, in which case
// records live only as long as ttl.
func NewResultRepository(cacheClient cache.Cache, store *ResultStore, ttl, emptyTTL time.Duration) *ResultRepository {
	return &ResultRepository{cache: cacheClient, store: store, ttl: ttl, emptyTTL: emptyTTL}
}

// Save persists rec to the store first, then refreshes the cache.
func (r *ResultRepository) Save(ctx context.Context, rec model.ResultRecord) error {
	if rec.SubmissionID == "" {
		return appErr.ValidationError("submissionId", "required")
	}
	if r.cache == nil && r.store == nil {
		return appErr.New(appErr.CacheError).WithMessage("result storage is not initialized")
	}
	if r.store != nil {
		if err := r.store.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	if r.cache == nil {
		return nil
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "encode grading record failed")
	}
	if err := r.cache.Set(ctx, resultKeyPrefix+rec.SubmissionID, data, cache.JitterTTL(r.ttl)); err != nil {
		if r.store != nil {
			// The store already holds the record; the next read repopulates the cache.
			logger.Warn(ctx, "refresh result cache failed", zap.String("submission_id", rec.SubmissionID), zap.Error(err))
			_ = r.cache.Del(ctx, resultKeyPrefix+rec.SubmissionID)
			return nil
		}
		return appErr.Wrapf(err, appErr.CacheError, "store grading record failed")
	}
	return nil
}

// Get returns the latest record of submissionID.
func (r *ResultRepository) Get(ctx context.Context, submissionID string) (model.ResultRecord, error) {
	if submissionID == "" {
		return model.ResultRecord{}, appErr.ValidationError("submissionId", "required")
	}
	var (
		rec model.ResultRecord
		err error
	)
	switch {
	case r.cache != nil && r.store != nil:
		rec, err = cache.GetWithCached(ctx, r.cache, resultKeyPrefix+submissionID, r.ttl, r.emptyTTL,
			func(rec model.ResultRecord) bool { return rec.SubmissionID == "" },
			encodeRecord,
			decodeRecord,
			func(ctx context.Context) (model.ResultRecord, error) {
				return r.store.Find(ctx, submissionID)
			},
		)
	case r.store != nil:
		rec, err = r.store.Find(ctx, submissionID)
	case r.cache != nil:
		rec, err = r.fromCache(ctx, submissionID)
	default:
		return model.ResultRecord{}, appErr.New(appErr.CacheError).WithMessage("result storage is not initialized")
	}
	if err != nil {
		return model.ResultRecord{}, err
	}
	if rec.SubmissionID == "" {
		return model.ResultRecord{}, appErr.New(appErr.ResultNotFound)
	}
	return rec, nil
}

// History returns the status changes of submissionID, oldest first. Only the
// MySQL store keeps history.
func (r *ResultRepository) History(ctx context.Context, submissionID string) ([]model.StatusChange, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submissionId", "required")
	}
	if r.store == nil {
		return nil, appErr.New(appErr.ServiceUnavailable).WithMessage("result history requires the database store")
	}
	changes, err := r.store.History(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, appErr.New(appErr.ResultNotFound)
	}
	return changes, nil
}

func (r *ResultRepository) fromCache(ctx context.Context, submissionID string) (model.ResultRecord, error) {
	val, err := r.cache.Get(ctx, resultKeyPrefix+submissionID)
	if err != nil {
		return model.ResultRecord{}, appErr.Wrapf(err, appErr.CacheError, "read grading record failed")
	}
	if val == "" || val == cache.NullCacheValue {
		return model.ResultRecord{}, nil
	}
	rec, err := decodeRecord(val)
	if err != nil {
		return model.ResultRecord{}, appErr.Wrapf(err, appErr.CacheError, "decode grading record failed")
	}
	return rec, nil
}

func encodeRecord(rec model.ResultRecord) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeRecord(val string) (model.ResultRecord, error) {
	var rec model.ResultRecord
	err := json.Unmarshal([]byte(val), &rec)
	return rec, err
}
