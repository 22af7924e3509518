package api

import (
	"context"
	"fmt"
	"time"

	"agentbacktest/internal/app"
	"agentbacktest/internal/config"
	"agentbacktest/internal/domain"
	"agentbacktest/internal/repository"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ApiHandler struct {
	// BaseConfig is what a request body is decoded over
	BaseConfig  config.File
	NewEngine   func(ctx context.Context, cfg domain.BacktestConfig) (*app.BacktestEngine, error)
	OpenJournal func() (repository.ResultJournal, error)
	JWTSecret   string
	Port        int
	Log         *zap.SugaredLogger
}

func (m ApiHandler) InitializeRouterEngine() *gin.Engine {
	router := gin.Default()
	router.Use(cors.Default())
	router.Use(m.logRequestMiddleware)

	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(200, map[string]string{"message": "welcome to agentbacktest"})
	})
	router.POST("/backtest", authMiddleware(m.JWTSecret), m.backtest)
	router.GET("/runs/:id", m.getRun)

	return router
}

func (m ApiHandler) StartApi(port int) error {
	return m.InitializeRouterEngine().Run(fmt.Sprintf(":%d", port))
}

func (m ApiHandler) logger() *zap.SugaredLogger {
	if m.Log == nil {
		return zap.NewNop().Sugar()
	}
	return m.Log
}

func returnErrorJson(err error, c *gin.Context) {
	returnErrorJsonCode(err, c, 500)
}

func returnErrorJsonCode(err error, c *gin.Context, code int) {
	c.AbortWithStatusJSON(code, gin.H{
		"error": err.Error(),
	})
}

func (m ApiHandler) logRequestMiddleware(ctx *gin.Context) {
	start := time.Now().UTC()
	ctx.Next()

	log := m.logger().With(
		"ip", ctx.ClientIP(),
		"method", ctx.Request.Method,
		"route", ctx.Request.URL.Path,
		"status", ctx.Writer.Status(),
		"durationMs", time.Since(start).Milliseconds(),
	)
	if len(ctx.Errors) > 0 {
		log.Warnw("request failed", "errors", ctx.Errors.String())
		return
	}
	log.Infow("request")
}
