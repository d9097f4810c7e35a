package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/classflow/live-session-service/internal/models"
	"github.com/classflow/live-session-service/internal/services"
	"github.com/classflow/live-session-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type ActivityHandler struct {
	BaseHandler
	responses   services.ResponseService
	completions services.CompletionService
	reports     services.ReportService
}

func NewActivityHandler(
	responses services.ResponseService,
	completions services.CompletionService,
	reports services.ReportService,
	logger utils.Logger,
) *ActivityHandler {
	return &ActivityHandler{
		BaseHandler: NewBaseHandler(logger),
		responses:   responses,
		completions: completions,
		reports:     reports,
	}
}

// SubmitResponse records a student's answer to an activity question.
func (h *ActivityHandler) SubmitResponse(c *gin.Context) {
	activityID := h.parseIDParam(c, "id")
	if activityID == 0 {
		return
	}

	var req services.SubmitResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.ActivityID = activityID
	req.StudentID = ActorID(c)

	// Students joined via a roster account carry their account identity; join-code
	// students submit anonymously and skip completion tracking.
	if req.StudentAccountID != "" && req.StudentAccountID != ActorID(c) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Cannot submit on behalf of another account",
		})
		return
	}

	result, err := h.responses.SubmitQuestionResponse(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// SubmitSlideResponse records an ungraded response to an activity slide.
func (h *ActivityHandler) SubmitSlideResponse(c *gin.Context) {
	activityID := h.parseIDParam(c, "id")
	if activityID == 0 {
		return
	}
	slideID := h.parseIDParam(c, "slide_id")
	if slideID == 0 {
		return
	}

	var req services.SubmitActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.ActivityID = activityID
	req.SlideID = slideID
	req.StudentID = ActorID(c)

	if req.StudentAccountID != "" && req.StudentAccountID != ActorID(c) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Cannot submit on behalf of another account",
		})
		return
	}

	result, err := h.responses.SubmitActivityResponse(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// UnlockActivity clears a student's completion lock. Teacher only.
func (h *ActivityHandler) UnlockActivity(c *gin.Context) {
	activityID := h.parseIDParam(c, "id")
	if activityID == 0 {
		return
	}

	var req services.UnlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.ActivityID = activityID
	req.UnlockedBy = ActorID(c)

	h.LogRequest(c, "Unlocking activity",
		"activity_id", activityID,
		"student_account_id", req.StudentAccountID)

	unlocked, err := h.completions.Unlock(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Activity unlocked",
		Data:    unlocked,
	})
}

// GetStudentCompletions lists a student's completion records, optionally scoped
// to one session via the ?session_id query parameter.
func (h *ActivityHandler) GetStudentCompletions(c *gin.Context) {
	studentAccountID := c.Param("student_id")
	if studentAccountID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid student_id",
		})
		return
	}

	// Students may only read their own records; teachers may read anyone's.
	if ActorRole(c) != models.RoleTeacher && ActorID(c) != studentAccountID {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
		})
		return
	}

	var sessionID *uint
	if raw := c.Query("session_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid session_id",
			})
			return
		}
		id := uint(parsed)
		sessionID = &id
	}

	completions, err := h.completions.GetStudentCompletions(c.Request.Context(), studentAccountID, sessionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, completions)
}

// ExportCompletions streams the activity's completion report as an xlsx workbook.
func (h *ActivityHandler) ExportCompletions(c *gin.Context) {
	activityID := h.parseIDParam(c, "id")
	if activityID == 0 {
		return
	}

	data, err := h.reports.ExportActivityCompletions(c.Request.Context(), activityID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("activity_%d_completions.xlsx", activityID)
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
