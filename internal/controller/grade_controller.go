package controller

import (
	"smart_edu_backend/internal/service"
	"smart_edu_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type GradeController struct {
	GradingService *service.GradingService
}

func NewGradeController(gradingService *service.GradingService) *GradeController {
	return &GradeController{GradingService: gradingService}
}

// @Summary 教师评分
// @Description 逐题评分 answers，或在只剩一道待评分题时直接给 score。可确认 AI 评分建议。全部评完且 finalize 不为 false 时自动结束评分
// @Tags 评分
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作答ID"
// @Param body body service.GradeRequest true "评分"
// @Success 200 {object} util.Response{data=model.Submission}
// @Failure 409 {object} util.Response "已完成评分"
// @Router /submissions/{id}/grade [post]
func (c *GradeController) Grade(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	var req service.GradeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	sub, err := c.GradingService.Grade(ctx.Request.Context(), util.GetSession(ctx), id, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, sub)
}

// @Summary 结束评分
// @Description 所有题目都已评分时计算总分并记录 graded_at
// @Tags 评分
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response{data=model.Submission}
// @Failure 400 {object} util.Response "仍有待评分题目"
// @Failure 409 {object} util.Response "已完成评分"
// @Router /submissions/{id}/finalize [post]
func (c *GradeController) Finalize(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	sub, err := c.GradingService.Finalize(ctx.Request.Context(), util.GetSession(ctx), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, sub)
}

// @Summary 重新评分
// @Description 按当前题目内容重新判客观题，作答回到 partially_graded
// @Tags 评分
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response{data=model.Submission}
// @Router /submissions/{id}/regrade [post]
func (c *GradeController) Regrade(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	sub, err := c.GradingService.Regrade(ctx.Request.Context(), util.GetSession(ctx), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, sub)
}

// @Summary 批量重新评分
// @Description 对测评下所有非草稿作答重新判分
// @Tags 评分
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response{data=service.RegradeSummary}
// @Router /assessments/{id}/regrade [post]
func (c *GradeController) RegradeAssessment(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	summary, err := c.GradingService.RegradeAssessment(ctx.Request.Context(), util.GetSession(ctx), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, summary)
}
