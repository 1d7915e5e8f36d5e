package controller

import (
	"github.com/gin-gonic/gin"

	"actpath-backend/internal/service"
	"actpath-backend/pkg/middleware"
	"actpath-backend/utilities"
)

// Services groups what the HTTP layer calls into.
type Services struct {
	Auth     service.AuthService
	Profile  service.ProfileService
	Progress service.ProgressService
	Template service.TemplateService
}

// RegisterRoutes registers all route groups and their endpoints under basePath.
func RegisterRoutes(
	r *gin.Engine,
	basePath string,
	services Services,
	issuer *utilities.TokenIssuer,
	authLimiter *middleware.IPRateLimiter,
	db Pinger,
) {
	api := r.Group(basePath)
	requireAuth := utilities.AuthMiddleware(issuer)

	healthCtrl := NewHealthController(db)
	api.GET("/health", healthCtrl.Health)

	// Auth routes.
	authCtrl := NewAuthController(services.Auth)
	authRoutes := api.Group("/auth", middleware.RateLimitMiddleware(authLimiter))
	{
		authRoutes.POST("/register", authCtrl.Register)
		authRoutes.POST("/login", authCtrl.Login)
		authRoutes.POST("/verify-mfa", authCtrl.VerifyMFA)
		authRoutes.POST("/refresh", authCtrl.Refresh)
	}

	// Profile routes.
	profileCtrl := NewProfileController(services.Profile)
	userRoutes := api.Group("/user", requireAuth)
	{
		userRoutes.GET("/profile", profileCtrl.GetProfile)
		userRoutes.PUT("/profile", profileCtrl.UpdateProfile)
	}

	// Session routes.
	sessionCtrl := NewSessionController(services.Progress, services.Template)
	api.GET("/templates", sessionCtrl.ListTemplates)
	api.GET("/templates/:sessionNumber", sessionCtrl.GetTemplate)
	sessionRoutes := api.Group("/sessions", requireAuth)
	{
		sessionRoutes.POST("/complete", sessionCtrl.CompleteSession)
		sessionRoutes.GET("/history", sessionCtrl.GetHistory)
	}

	// Assessment routes.
	assessmentCtrl := NewAssessmentController(services.Progress, services.Template)
	assessRoutes := api.Group("/assessments")
	{
		assessRoutes.GET("/template/:code", assessmentCtrl.GetTemplate)
		assessRoutes.POST("/submit", requireAuth, assessmentCtrl.SubmitAssessment)
		assessRoutes.GET("/history", requireAuth, assessmentCtrl.GetHistory)
		assessRoutes.GET("/history/:userId", requireAuth, assessmentCtrl.GetClientHistory)
	}
}
