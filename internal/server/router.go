package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/memoirvault-backend/internal/handlers"
	"github.com/yungbote/memoirvault-backend/internal/middleware"
)

type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string
	AuthMiddleware *middleware.AuthMiddleware

	JobsHandler       *handlers.JobsHandler
	ImportsHandler    *handlers.ImportsHandler
	MessagesHandler   *handlers.MessagesHandler
	DeadLetterHandler *handlers.DeadLetterHandler
	SSEHandler        *handlers.SSEHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.AttachTraceContext())

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())

	// Imports
	api.POST("/import/upload", cfg.ImportsHandler.UploadArchive)
	api.POST("/import/upload/chunk", cfg.ImportsHandler.UploadChunk)
	api.POST("/import/upload/complete", cfg.ImportsHandler.CompleteUpload)
	api.POST("/import/path", cfg.ImportsHandler.ImportPath)
	api.GET("/import/batches", cfg.ImportsHandler.ListBatches)
	api.GET("/import/batch/:id", cfg.ImportsHandler.GetBatch)

	// Jobs
	api.GET("/jobs", cfg.JobsHandler.ListJobs)
	api.GET("/jobs/:id", cfg.JobsHandler.GetJobByID)
	api.POST("/jobs/:id/cancel", cfg.JobsHandler.CancelJob)
	api.DELETE("/jobs/:id", cfg.JobsHandler.DeleteJob)
	api.GET("/jobs/:id/stream", cfg.SSEHandler.StreamJob)
	api.POST("/backup", cfg.JobsHandler.RunBackup)

	// Threads and search
	api.GET("/threads/:id/messages", cfg.MessagesHandler.ListThreadMessages)
	api.POST("/threads/:id/export", cfg.MessagesHandler.ExportThread)
	api.GET("/search", cfg.MessagesHandler.Search)

	// Dead letters
	api.GET("/dlq", cfg.DeadLetterHandler.ListRecent)

	return router
}

// SplitOrigins parses a comma-separated origin list from config.
func SplitOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
