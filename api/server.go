// Package api exposes the margin engine over HTTP.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/Aidin1998/marginx_unified/pkg/errors"

	"github.com/Aidin1998/marginx_unified/internal/margin"
	"github.com/Aidin1998/marginx_unified/internal/trades"
)

// Server represents the API server
type Server struct {
	router    *gin.Engine
	logger    *zap.Logger
	margins   margin.Service
	trades    trades.Store
	validator *validator.Validate
}

// NewServer creates a new API server with injected service interfaces
func NewServer(logger *zap.Logger, margins margin.Service, tradeStore trades.Store) *Server {
	server := &Server{
		logger:    logger,
		margins:   margins,
		trades:    tradeStore,
		validator: validator.New(),
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware("marginx-api"))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	server.router = router
	server.registerRoutes()
	return server
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Router returns the internal Gin engine for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	public := s.router.Group("/api/v1")
	{
		public.GET("/metrics", gin.WrapH(promhttp.Handler()))
		public.GET("/health", s.healthCheck)

		marginGroup := public.Group("/margin")
		{
			marginGroup.POST("/uploads", s.uploadCRIF)
			marginGroup.GET("/uploads", s.listUploads)
			marginGroup.GET("/uploads/:id", s.getUpload)

			marginGroup.POST("/generate", s.generateSensitivities)

			marginGroup.POST("/calculations", s.createCalculation)
			marginGroup.GET("/calculations", s.listCalculations)
			marginGroup.GET("/calculations/:id", s.getCalculation)

			marginGroup.GET("/parameter-sets", s.listParameterSets)
		}

		tradeGroup := public.Group("/trades")
		{
			tradeGroup.POST("", s.createTrade)
			tradeGroup.GET("/:id", s.getTrade)
		}
	}
}

// healthCheck handles the health check endpoint
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now(),
	})
}

// writeError maps service errors to HTTP responses.
func (s *Server) writeError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus(), gin.H{"error": appErr.Message, "kind": appErr.Kind, "fields": appErr.Fields})
		return
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.logger.Error("handler error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
