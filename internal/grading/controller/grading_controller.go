package controller

import (
	"context"
	"strings"

	"autograde/internal/common/http/middleware"
	"autograde/internal/grading/model"
	appErr "autograde/pkg/errors"
	"autograde/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// GradingService is the part of the grading service the HTTP layer uses.
type GradingService interface {
	GradeNow(ctx context.Context, req model.GradingRequest) (model.ResultRecord, error)
	Enqueue(ctx context.Context, req model.GradingRequest) (string, error)
	GetResult(ctx context.Context, submissionID string) (model.ResultRecord, error)
	GetHistory(ctx context.Context, submissionID string) ([]model.StatusChange, error)
	PutTestPack(ctx context.Context, key string, pack model.TestPack) error
}

// GradingController handles grading HTTP endpoints.
type GradingController struct {
	svc GradingService
}

// NewGradingController creates a new GradingController.
func NewGradingController(svc GradingService) *GradingController {
	return &GradingController{svc: svc}
}

// RegisterRoutes mounts the grading endpoints on group behind auth.
func (h *GradingController) RegisterRoutes(group *gin.RouterGroup, auth *middleware.Authenticator) {
	privileged := middleware.AuthMiddleware(auth, middleware.RoleTeacher, middleware.RoleService)
	group.POST("/grade", privileged, h.Grade)
	group.POST("/jobs", privileged, h.Enqueue)
	group.PUT("/testpacks/*key", privileged, h.PutTestPack)
	group.GET("/submissions/:id", middleware.AuthMiddleware(auth), h.GetResult)
	group.GET("/submissions/:id/history", middleware.AuthMiddleware(auth), h.GetHistory)
}

// Grade grades a submission synchronously and returns the full result.
func (h *GradingController) Grade(c *gin.Context) {
	var req GradeRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.svc.GradeNow(c.Request.Context(), req.toModel(callerSubject(c)))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rec)
}

// Enqueue accepts a submission for asynchronous grading.
func (h *GradingController) Enqueue(c *gin.Context) {
	var req GradeRequest
	if !bindJSON(c, &req) {
		return
	}
	mreq := req.toModel(callerSubject(c))
	jobID, err := h.svc.Enqueue(c.Request.Context(), mreq)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, EnqueueResponse{JobID: jobID, SubmissionID: mreq.SubmissionID})
}

// GetResult returns the stored record. Students only see their own
// submissions, with hidden tests redacted.
func (h *GradingController) GetResult(c *gin.Context) {
	rec, principal, ok := h.visibleRecord(c)
	if !ok {
		return
	}
	response.Success(c, rec.ForViewer(principal.Privileged()))
}

// GetHistory returns the status changes of a submission the caller may see.
func (h *GradingController) GetHistory(c *gin.Context) {
	rec, _, ok := h.visibleRecord(c)
	if !ok {
		return
	}
	changes, err := h.svc.GetHistory(c.Request.Context(), rec.SubmissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, HistoryResponse{SubmissionID: rec.SubmissionID, Changes: changes})
}

// visibleRecord loads the record named in the path. Records of other
// students are reported as missing so their existence does not leak.
func (h *GradingController) visibleRecord(c *gin.Context) (model.ResultRecord, middleware.Principal, bool) {
	principal, _ := middleware.PrincipalFrom(c)
	submissionID := strings.TrimSpace(c.Param("id"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return model.ResultRecord{}, principal, false
	}
	rec, err := h.svc.GetResult(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return model.ResultRecord{}, principal, false
	}
	if !rec.VisibleTo(principal.Subject, principal.Privileged()) {
		response.Error(c, appErr.New(appErr.ResultNotFound))
		return model.ResultRecord{}, principal, false
	}
	return rec, principal, true
}

// PutTestPack stores a test pack under the key in the path.
func (h *GradingController) PutTestPack(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		response.BadRequest(c, "Invalid test pack key")
		return
	}
	var pack model.TestPack
	if !bindJSON(c, &pack) {
		return
	}
	if err := h.svc.PutTestPack(c.Request.Context(), key, pack); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, TestPackResponse{Key: key, Mode: string(pack.Config.Mode())})
}

func callerSubject(c *gin.Context) string {
	principal, _ := middleware.PrincipalFrom(c)
	return principal.Subject
}

// bindJSON decodes the body into dst. Configuration errors raised while
// decoding keep their code; anything else is a bad request.
func bindJSON(c *gin.Context, dst interface{}) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	if appErr.Is(err, appErr.GradingConfigInvalid) {
		response.Error(c, err)
		return false
	}
	response.BadRequest(c, "Invalid request parameters")
	return false
}

// GradeRequest defines the grading payload. Owner names the student the
// submission belongs to and defaults to the caller.
type GradeRequest struct {
	SubmissionID     string              `json:"submissionId"`
	TaskID           string              `json:"taskId"`
	Owner            string              `json:"owner"`
	Code             string              `json:"code" binding:"required"`
	Language         string              `json:"language"`
	Config           model.GradingConfig `json:"config"`
	TestPackKey      string              `json:"testPackKey"`
	Policy           string              `json:"policy"`
	TimeLimitSeconds float64             `json:"timeLimitSeconds"`
	MemoryLimitKb    int64               `json:"memoryLimitKb"`
}

func (r GradeRequest) toModel(caller string) model.GradingRequest {
	owner := strings.TrimSpace(r.Owner)
	if owner == "" {
		owner = caller
	}
	return model.GradingRequest{
		Owner:            owner,
		SubmissionID:     r.SubmissionID,
		TaskID:           r.TaskID,
		Code:             r.Code,
		Language:         r.Language,
		Config:           r.Config,
		TestPackKey:      r.TestPackKey,
		Policy:           model.ComparisonPolicy(r.Policy),
		TimeLimitSeconds: r.TimeLimitSeconds,
		MemoryLimitKb:    r.MemoryLimitKb,
	}
}

// EnqueueResponse acknowledges an accepted job.
type EnqueueResponse struct {
	JobID        string `json:"jobId"`
	SubmissionID string `json:"submissionId"`
}

// HistoryResponse lists a submission's status changes, oldest first.
type HistoryResponse struct {
	SubmissionID string               `json:"submissionId"`
	Changes      []model.StatusChange `json:"changes"`
}

// TestPackResponse acknowledges a stored test pack.
type TestPackResponse struct {
	Key  string `json:"key"`
	Mode string `json:"mode"`
}
