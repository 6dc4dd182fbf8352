package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"autograde/internal/common/db"
	"autograde/internal/grading/model"
	appErr "autograde/pkg/errors"
)

const (
	resultTable  = "grading_results"
	historyTable = "grading_result_history"
)

const createResultTable = `CREATE TABLE IF NOT EXISTS grading_results (
	submission_id VARCHAR(64) NOT NULL PRIMARY KEY,
	job_id VARCHAR(64) NOT NULL DEFAULT '',
	owner VARCHAR(64) NOT NULL DEFAULT '',
	status VARCHAR(16) NOT NULL,
	total_score INT NOT NULL DEFAULT 0,
	max_score INT NOT NULL DEFAULT 0,
	percentage INT NOT NULL DEFAULT 0,
	all_passed TINYINT(1) NOT NULL DEFAULT 0,
	result JSON NULL,
	error_code INT NOT NULL DEFAULT 0,
	error_message TEXT NULL,
	updated_at DATETIME(3) NOT NULL,
	KEY idx_grading_results_job (job_id),
	KEY idx_grading_results_owner (owner)
)`

const createHistoryTable = `CREATE TABLE IF NOT EXISTS grading_result_history (
	id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
	submission_id VARCHAR(64) NOT NULL,
	job_id VARCHAR(64) NOT NULL DEFAULT '',
	status VARCHAR(16) NOT NULL,
	error_code INT NOT NULL DEFAULT 0,
	recorded_at DATETIME(3) NOT NULL,
	KEY idx_grading_result_history_submission (submission_id, id)
)`

// ResultStore keeps the latest record per submission in MySQL, plus an
// append-only log of every status it went through.
type ResultStore struct {
	db db.Database
}

// NewResultStore creates a store on database.
func NewResultStore(database db.Database) *ResultStore {
	return &ResultStore{db: database}
}

// EnsureSchema creates the results and history tables when missing.
func (s *ResultStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createResultTable); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "create %s failed", resultTable)
	}
	if _, err := s.db.Exec(ctx, createHistoryTable); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "create %s failed", historyTable)
	}
	return nil
}

// Upsert writes rec, replacing any earlier record of the submission, and
// appends its status to the history in the same transaction.
func (s *ResultStore) Upsert(ctx context.Context, rec model.ResultRecord) error {
	if rec.SubmissionID == "" {
		return appErr.ValidationError("submissionId", "required")
	}
	var (
		resultJSON                       []byte
		total, maxScore, percent, passed int
	)
	if rec.Result != nil {
		data, err := json.Marshal(rec.Result)
		if err != nil {
			return fmt.Errorf("marshal grading result failed: %w", err)
		}
		resultJSON = data
		total, maxScore, percent = rec.Result.TotalScore, rec.Result.MaxScore, rec.Result.Percentage
		if rec.Result.AllPassed {
			passed = 1
		}
	}
	upsert := "INSERT INTO " + resultTable + ` (submission_id, job_id, owner, status, total_score, max_score, percentage, all_passed, result, error_code, error_message, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE job_id = VALUES(job_id), owner = VALUES(owner), status = VALUES(status), total_score = VALUES(total_score),
max_score = VALUES(max_score), percentage = VALUES(percentage), all_passed = VALUES(all_passed), result = VALUES(result),
error_code = VALUES(error_code), error_message = VALUES(error_message), updated_at = VALUES(updated_at)`
	appendHistory := "INSERT INTO " + historyTable + ` (submission_id, job_id, status, error_code, recorded_at) VALUES (?, ?, ?, ?, ?)`
	updatedAt := rec.UpdatedAt.UTC()

	err := s.db.Transaction(ctx, func(tx db.Transaction) error {
		if _, err := tx.Exec(ctx, upsert,
			rec.SubmissionID,
			rec.JobID,
			rec.Owner,
			string(rec.Status),
			total,
			maxScore,
			percent,
			passed,
			nullableJSON(resultJSON),
			rec.ErrorCode,
			rec.ErrorMessage,
			updatedAt,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, appendHistory, rec.SubmissionID, rec.JobID, string(rec.Status), rec.ErrorCode, updatedAt)
		return err
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "upsert grading result failed")
	}
	return nil
}

// Find returns the record of submissionID. A missing row returns a zero
// record and no error.
func (s *ResultStore) Find(ctx context.Context, submissionID string) (model.ResultRecord, error) {
	query := "SELECT submission_id, job_id, owner, status, result, error_code, error_message, updated_at FROM " +
		resultTable + " WHERE submission_id = ?"
	var (
		rec        model.ResultRecord
		status     string
		resultJSON []byte
		errMsg     *string
		updatedAt  time.Time
	)
	err := s.db.QueryRow(ctx, query, submissionID).Scan(
		&rec.SubmissionID,
		&rec.JobID,
		&rec.Owner,
		&status,
		&resultJSON,
		&rec.ErrorCode,
		&errMsg,
		&updatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return model.ResultRecord{}, nil
		}
		return model.ResultRecord{}, appErr.Wrapf(err, appErr.DatabaseError, "query grading result failed")
	}
	rec.Status = model.ResultStatus(status)
	rec.UpdatedAt = updatedAt.UTC()
	if errMsg != nil {
		rec.ErrorMessage = *errMsg
	}
	if len(resultJSON) > 0 {
		var res model.GradingResult
		if err := json.Unmarshal(resultJSON, &res); err != nil {
			return model.ResultRecord{}, appErr.Wrapf(err, appErr.DatabaseError, "decode grading result failed")
		}
		rec.Result = &res
	}
	return rec, nil
}

// History returns the status changes of submissionID, oldest first.
func (s *ResultStore) History(ctx context.Context, submissionID string) ([]model.StatusChange, error) {
	query := "SELECT job_id, status, error_code, recorded_at FROM " + historyTable +
		" WHERE submission_id = ? ORDER BY id"
	rows, err := s.db.Query(ctx, query, submissionID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "query grading history failed")
	}
	defer func() { _ = rows.Close() }()

	var changes []model.StatusChange
	for rows.Next() {
		var (
			change     model.StatusChange
			status     string
			recordedAt time.Time
		)
		if err := rows.Scan(&change.JobID, &status, &change.ErrorCode, &recordedAt); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan grading history failed")
		}
		change.Status = model.ResultStatus(status)
		change.RecordedAt = recordedAt.UTC()
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate grading history failed")
	}
	return changes, nil
}

func nullableJSON(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}
