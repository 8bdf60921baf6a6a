package main

import (
	"github.com/gin-gonic/gin"

	"github.com/opencircles/backend/internal/middleware"
	"github.com/opencircles/backend/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// Rate limiters for authentication and mutation endpoints
	authLimiter := middleware.AuthRateLimiter()
	writeLimiter := middleware.WriteRateLimiter()

	// Health check
	r.GET("/health", svc.healthHandler.CheckHealth)

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public, rate limited)
		auth := api.Group("/auth", authLimiter.Middleware())
		{
			auth.POST("/login", svc.authHandler.Login)
			auth.POST("/refresh", svc.authHandler.Refresh)
			auth.GET("/config", svc.authHandler.GetAuthConfig)
		}

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired(), middleware.AuditLog(svc.auditService))
		{
			// Auth
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)

			// Dashboard
			protected.GET("/dashboard/stats", svc.dashboardHandler.GetStats)

			// Circles
			protected.GET("/circles", svc.circleHandler.List)
			protected.GET("/circles/:id", svc.circleHandler.Get)
			protected.GET("/circles/:id/members", svc.circleHandler.ListMembers)

			// Transfers
			protected.GET("/transfers/mine", svc.transferHandler.ListMine)
			protected.GET("/transfers/pending", svc.transferHandler.ListPending)
			protected.GET("/transfers/statistics", svc.transferHandler.Statistics)

			// Mutations carry their own rate limit on top of auth
			writes := protected.Group("", writeLimiter.Middleware())
			{
				writes.POST("/circles", svc.circleHandler.Create)
				writes.PUT("/circles/:id/status", svc.circleHandler.Transition)
				writes.POST("/circles/:id/members", svc.circleHandler.AddMember)
				writes.DELETE("/circles/:id/members/:userID", svc.circleHandler.RemoveMember)
				writes.PUT("/circles/:id/members/:userID/payment", svc.circleHandler.SetPayment)

				writes.POST("/transfers", svc.transferHandler.Create)
				writes.POST("/transfers/:id/approve", svc.transferHandler.Approve)
				writes.POST("/transfers/:id/deny", svc.transferHandler.Deny)
				writes.POST("/transfers/:id/cancel", svc.transferHandler.Cancel)
			}
		}

		// Admin only routes
		admin := api.Group("")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired(), middleware.AuditLog(svc.auditService))
		{
			admin.GET("/users", svc.userHandler.List)
			admin.POST("/users", svc.userHandler.Create)
			admin.PUT("/users/:id", svc.userHandler.Update)
			admin.DELETE("/users/:id", svc.userHandler.Delete)
		}
	}
}
