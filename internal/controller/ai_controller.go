package controller

import (
	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/service"
	"smart_edu_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AIController struct {
	Jobs *service.AIJobService
}

func NewAIController(jobs *service.AIJobService) *AIController {
	return &AIController{Jobs: jobs}
}

type jobAccepted struct {
	RequestID string            `json:"request_id"`
	Status    model.AIJobStatus `json:"status"`
}

// @Summary AI 生成测评
// @Description 立即返回 request_id，完成后生成一份未发布的测评
// @Tags AI
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body model.GenerateRequest true "出题参数"
// @Success 202 {object} util.Response{data=jobAccepted}
// @Failure 503 {object} util.Response "未配置 AI 服务"
// @Router /assessments/ai-generate [post]
func (c *AIController) Generate(ctx *gin.Context) {
	var req model.GenerateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	job, err := c.Jobs.EnqueueGeneration(ctx.Request.Context(), util.GetSession(ctx), req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Accepted(ctx, jobAccepted{RequestID: job.ID, Status: job.Status})
}

// @Summary 查询 AI 出题任务
// @Tags AI
// @Produce json
// @Security ApiKeyAuth
// @Param request_id path string true "任务ID"
// @Success 200 {object} util.Response{data=model.AIJob}
// @Router /assessments/ai-generate/{request_id} [get]
func (c *AIController) GenerateStatus(ctx *gin.Context) {
	c.status(ctx, model.AIJobGenerateAssessment)
}

// @Summary AI 辅助评分
// @Description 为待评分的主观题生成评分建议，需教师在评分接口中确认
// @Tags AI
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作答ID"
// @Success 202 {object} util.Response{data=jobAccepted}
// @Router /submissions/{id}/ai-grade [post]
func (c *AIController) Grade(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	job, err := c.Jobs.EnqueueGrading(ctx.Request.Context(), util.GetSession(ctx), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Accepted(ctx, jobAccepted{RequestID: job.ID, Status: job.Status})
}

// @Summary 查询 AI 评分任务
// @Tags AI
// @Produce json
// @Security ApiKeyAuth
// @Param request_id path string true "任务ID"
// @Success 200 {object} util.Response{data=model.AIJob}
// @Router /submissions/ai-grade/{request_id} [get]
func (c *AIController) GradeStatus(ctx *gin.Context) {
	c.status(ctx, model.AIJobGradeSubmission)
}

func (c *AIController) status(ctx *gin.Context, kind model.AIJobKind) {
	job, err := c.Jobs.GetJob(ctx.Request.Context(), util.GetSession(ctx), ctx.Param("request_id"), kind)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, job)
}
