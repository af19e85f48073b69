package controller

import (
	"context"
	"net/http"
	"smart_edu_backend/internal/service"
	"smart_edu_backend/internal/util"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// HealthController DB 和 Redis 为 nil 时表示未启用（memory 驱动）
type HealthController struct {
	DB    *gorm.DB
	Redis *redis.Client
	AI    *service.AIService
}

func NewHealthController(db *gorm.DB, rdb *redis.Client, ai *service.AIService) *HealthController {
	return &HealthController{DB: db, Redis: rdb, AI: ai}
}

// @Summary 健康检查
// @Description 检查服务状态
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	components := gin.H{
		"database": "memory",
		"redis":    "disabled",
		"ai":       "disabled",
	}

	if c.DB != nil {
		sqlDB, err := c.DB.DB()
		if err != nil {
			util.InternalServerError(ctx)
			return
		}
		if err := sqlDB.PingContext(pingCtx); err != nil {
			util.Error(ctx, http.StatusServiceUnavailable, "Database unavailable")
			return
		}
		components["database"] = "up"
	}

	if c.Redis != nil {
		if err := c.Redis.Ping(pingCtx).Err(); err != nil {
			util.Error(ctx, http.StatusServiceUnavailable, "Redis unavailable")
			return
		}
		components["redis"] = "up"
	}

	if c.AI.Available() {
		components["ai"] = c.AI.ProviderName()
	}

	util.Success(ctx, gin.H{
		"status":     "ok",
		"components": components,
	})
}
