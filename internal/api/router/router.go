package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuongbtq/recording-worker/internal/api/handler"
)

// SetupRouter configures the recordings API router
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := newEngine(deps)

	recordingHandler := handler.NewRecordingHandler(deps)

	v1 := r.Group("/api/v1")
	{
		recordings := v1.Group("/recordings")
		{
			// POST /api/v1/recordings - Queue a recording job
			recordings.POST("", recordingHandler.CreateRecording)

			// GET /api/v1/recordings - List runs with filtering and pagination
			recordings.GET("", recordingHandler.ListRecordings)

			// GET /api/v1/recordings/:run_id - Get one run
			recordings.GET("/:run_id", recordingHandler.GetRecording)
		}
	}

	return r
}

// SetupHealthRouter serves only /health and /metrics; the worker uses it
func SetupHealthRouter(deps *handler.Dependencies) *gin.Engine {
	return newEngine(deps)
}

func newEngine(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	healthHandler := handler.NewHealthHandler(deps)
	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
