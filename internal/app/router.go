package app

import (
	"smart_edu_backend/docs"
	"smart_edu_backend/internal/middleware"
	"smart_edu_backend/internal/model"
	"smart_edu_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(a.services.auth))
	{
		// 学生/通用 授权接口
		a.registerStudentRoutes(authGroup, c)

		// 教师相关接口，管理员同样可以访问
		a.registerTeacherRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}
}

func (a *App) registerStudentRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.POST("/logout", c.auth.Logout)
	rg.GET("/profile", c.auth.GetProfile)

	// 测评（学生只能看到已发布的测评，且不含答案）
	rg.GET("/assessments", c.assessment.List)
	rg.GET("/assessments/:id", c.assessment.Get)
	rg.GET("/courses/:id/assessments", c.assessment.ListByCourse)

	// 作答
	rg.POST("/assessments/:id/submit", c.submission.Submit)
	rg.PUT("/assessments/:id/draft", c.submission.SaveDraft)
	rg.GET("/submissions/:id", c.submission.Get)
	rg.GET("/students/:id/submissions", c.submission.ListByStudent)
	rg.POST("/uploads", c.upload.UploadAttachment)
}

func (a *App) registerTeacherRoutes(rg *gin.RouterGroup, c *controllers) {
	teacher := rg.Group("")
	teacher.Use(middleware.RoleMiddleware(model.Teacher))
	{
		// 测评管理
		teacher.POST("/assessments", c.assessment.Create)
		teacher.PUT("/assessments/:id", c.assessment.Update)
		teacher.PATCH("/assessments/:id/publish", c.assessment.SetPublished)
		teacher.DELETE("/assessments/:id", c.assessment.Delete)
		teacher.GET("/assessments/:id/stats", c.assessment.Stats)
		teacher.GET("/assessments/:id/submission-count", c.assessment.SubmissionCount)
		teacher.GET("/assessments/:id/submissions", c.submission.ListByAssessment)

		// 评分
		teacher.POST("/submissions/:id/grade", c.grade.Grade)
		teacher.POST("/submissions/:id/finalize", c.grade.Finalize)
		teacher.POST("/submissions/:id/regrade", c.grade.Regrade)
		teacher.POST("/assessments/:id/regrade", c.grade.RegradeAssessment)

		// AI 出题与辅助评分
		teacher.POST("/assessments/ai-generate", c.ai.Generate)
		teacher.GET("/assessments/ai-generate/:request_id", c.ai.GenerateStatus)
		teacher.POST("/submissions/:id/ai-grade", c.ai.Grade)
		teacher.GET("/submissions/ai-grade/:request_id", c.ai.GradeStatus)
	}
}
