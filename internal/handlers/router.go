package handlers

import (
	"net/http"

	"github.com/classflow/live-session-service/internal/cache"
	"github.com/classflow/live-session-service/internal/realtime"
	"github.com/classflow/live-session-service/internal/services"
	"github.com/classflow/live-session-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type HandlerManager struct {
	sessionHandler  *SessionHandler
	activityHandler *ActivityHandler
	wsHandler       *WSHandler
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	hub *realtime.Hub,
	presence cache.PresenceRegistry,
	logger utils.Logger,
) *HandlerManager {
	// The gateway wires itself into the hub's dispatch hooks.
	NewSessionGateway(hub, serviceManager, presence, logger)

	return &HandlerManager{
		sessionHandler: NewSessionHandler(
			serviceManager.Session(),
			serviceManager.Pacing(),
			serviceManager.Navigation(),
			presence,
			logger,
		),
		activityHandler: NewActivityHandler(
			serviceManager.Response(),
			serviceManager.Completion(),
			serviceManager.Report(),
			logger,
		),
		wsHandler: NewWSHandler(hub, serviceManager.Session(), logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "live-session-service",
		})
	})

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(IdentityMiddleware())
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", RequireTeacher(), hm.sessionHandler.CreateSession)
			sessions.GET("/:id", hm.sessionHandler.GetSession)
			sessions.POST("/:id/pause", RequireTeacher(), hm.sessionHandler.PauseSession)
			sessions.POST("/:id/resume", RequireTeacher(), hm.sessionHandler.ResumeSession)
			sessions.POST("/:id/end", RequireTeacher(), hm.sessionHandler.EndSession)
			sessions.POST("/:id/push", RequireTeacher(), hm.sessionHandler.PushActivity)

			// Pacing and navigation
			sessions.GET("/:id/state", hm.sessionHandler.GetPresentationState)
			sessions.PUT("/:id/mode", RequireTeacher(), hm.sessionHandler.SetPacingMode)
			sessions.PUT("/:id/checkpoints", RequireTeacher(), hm.sessionHandler.SetCheckpoints)
			sessions.POST("/:id/navigate", hm.sessionHandler.Navigate)

			sessions.GET("/:id/presence", RequireTeacher(), hm.sessionHandler.ListPresence)

			// Room subscription
			sessions.GET("/:id/ws", hm.wsHandler.Subscribe)
		}

		activities := v1.Group("/activities")
		{
			activities.POST("/:id/responses", hm.activityHandler.SubmitResponse)
			activities.POST("/:id/slides/:slide_id/responses", hm.activityHandler.SubmitSlideResponse)
			activities.POST("/:id/unlock", RequireTeacher(), hm.activityHandler.UnlockActivity)
			activities.GET("/:id/completions/export", RequireTeacher(), hm.activityHandler.ExportCompletions)
		}

		completions := v1.Group("/completions")
		{
			completions.GET("/students/:student_id", hm.activityHandler.GetStudentCompletions)
		}
	}
}
