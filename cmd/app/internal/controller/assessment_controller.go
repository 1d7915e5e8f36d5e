package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"actpath-backend/internal/model"
	"actpath-backend/internal/service"
	"actpath-backend/utilities"
)

type AssessmentController struct {
	ProgressService service.ProgressService
	TemplateService service.TemplateService
}

func NewAssessmentController(progressService service.ProgressService, templateService service.TemplateService) *AssessmentController {
	return &AssessmentController{ProgressService: progressService, TemplateService: templateService}
}

func (ac *AssessmentController) GetTemplate(c *gin.Context) {
	tmpl, err := ac.TemplateService.GetAssessmentTemplate(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

func (ac *AssessmentController) SubmitAssessment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req struct {
		TemplateID     *uint                    `json:"templateId"`
		TestType       string                   `json:"testType"`
		Items          []model.QuestionResponse `json:"items"`
		TotalScore     *float64                 `json:"totalScore"`
		Interpretation string                   `json:"interpretation"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := ac.ProgressService.RecordAssessmentSubmission(c.Request.Context(), userID, service.AssessmentInput{
		TemplateID:     req.TemplateID,
		TestType:       req.TestType,
		Items:          req.Items,
		TotalScore:     req.TotalScore,
		Interpretation: req.Interpretation,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":         "Assessment submitted successfully",
		"snapshot":        res.Snapshot,
		"historyRecordId": res.HistoryRecordID,
	})
}

func (ac *AssessmentController) GetHistory(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	ac.writeHistory(c, userID)
}

// GetClientHistory serves another user's history to staff, or a client's own.
func (ac *AssessmentController) GetClientHistory(c *gin.Context) {
	callerID, role, ok := utilities.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	target, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId must be an integer"})
		return
	}
	if uint(target) != callerID && !role.IsStaff() {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to view this history"})
		return
	}
	ac.writeHistory(c, uint(target))
}

func (ac *AssessmentController) writeHistory(c *gin.Context, userID uint) {
	history, err := ac.ProgressService.AssessmentHistory(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}
