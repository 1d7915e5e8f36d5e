package controller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"actpath-backend/internal/model"
	"actpath-backend/internal/service"
)

type SessionController struct {
	ProgressService service.ProgressService
	TemplateService service.TemplateService
}

func NewSessionController(progressService service.ProgressService, templateService service.TemplateService) *SessionController {
	return &SessionController{ProgressService: progressService, TemplateService: templateService}
}

type completeSessionRequest struct {
	SessionNumber        int                  `json:"sessionNumber"`
	SessionTitle         string               `json:"sessionTitle"`
	Status               model.SessionStatus  `json:"status"`
	Timestamp            *time.Time           `json:"timestamp"`
	MoodBefore           *float64             `json:"moodBefore"`
	MoodAfter            *float64             `json:"moodAfter"`
	Reflections          map[string]any       `json:"reflections"`
	StepProgress         []model.StepProgress `json:"stepProgress"`
	Metadata             map[string]any       `json:"metadata"`
	InterruptionCount    int                  `json:"interruptionCount"`
	StartTime            *time.Time           `json:"startTime"`
	EndTime              *time.Time           `json:"endTime"`
	TotalDurationMinutes *int                 `json:"totalDurationMinutes"`
}

func (sc *SessionController) CompleteSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req completeSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := sc.ProgressService.RecordSessionCompletion(c.Request.Context(), userID, service.SessionSubmission{
		SessionNumber:        req.SessionNumber,
		SessionTitle:         req.SessionTitle,
		Status:               req.Status,
		Timestamp:            req.Timestamp,
		MoodBefore:           req.MoodBefore,
		MoodAfter:            req.MoodAfter,
		Reflections:          req.Reflections,
		StepProgress:         req.StepProgress,
		Metadata:             req.Metadata,
		InterruptionCount:    req.InterruptionCount,
		StartTime:            req.StartTime,
		EndTime:              req.EndTime,
		TotalDurationMinutes: req.TotalDurationMinutes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Session saved successfully",
		"duration":    res.Duration,
		"nextSession": res.NextSession,
	})
}

func (sc *SessionController) GetHistory(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	history, err := sc.ProgressService.SessionHistory(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (sc *SessionController) GetTemplate(c *gin.Context) {
	sessionNumber, err := strconv.Atoi(c.Param("sessionNumber"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionNumber must be an integer"})
		return
	}
	tmpl, err := sc.TemplateService.GetSessionTemplate(c.Request.Context(), sessionNumber)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

func (sc *SessionController) ListTemplates(c *gin.Context) {
	templates, err := sc.TemplateService.ListSessionTemplates(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, templates)
}
