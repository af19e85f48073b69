package controller

import (
	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/service"
	"smart_edu_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SubmissionController struct {
	Service *service.SubmissionService
}

func NewSubmissionController(svc *service.SubmissionService) *SubmissionController {
	return &SubmissionController{Service: svc}
}

// @Summary 提交作答
// @Description 客观题即时判分；主观题等待人工或 AI 评分。超过截止时间的提交标记为 late
// @Tags 作答
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "测评ID"
// @Param body body service.SubmitRequest true "作答内容"
// @Success 201 {object} util.Response{data=model.Submission}
// @Failure 400 {object} util.Response "答案结构不符合题目"
// @Failure 409 {object} util.Response "超过作答次数"
// @Failure 422 {object} util.Response "测评未开放"
// @Router /assessments/{id}/submit [post]
func (c *SubmissionController) Submit(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	var req service.SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	sub, err := c.Service.Submit(ctx.Request.Context(), util.GetSession(ctx), id, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Created(ctx, sub)
}

// @Summary 保存草稿
// @Description 草稿不判分也不占用作答次数，提交时转为正式作答
// @Tags 作答
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "测评ID"
// @Param body body service.SubmitRequest true "作答内容"
// @Success 200 {object} util.Response{data=model.Submission}
// @Router /assessments/{id}/draft [put]
func (c *SubmissionController) SaveDraft(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	var req service.SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	sub, err := c.Service.SaveDraft(ctx.Request.Context(), util.GetSession(ctx), id, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, sub)
}

// @Summary 作答详情
// @Tags 作答
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response{data=model.Submission}
// @Failure 403 {object} util.Response
// @Router /submissions/{id} [get]
func (c *SubmissionController) Get(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	sub, err := c.Service.Get(ctx.Request.Context(), util.GetSession(ctx), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, sub)
}

// @Summary 测评下的作答列表
// @Tags 作答
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "测评ID"
// @Param status query string false "draft | submitted | partially_graded | graded"
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /assessments/{id}/submissions [get]
func (c *SubmissionController) ListByAssessment(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	status := model.SubmissionStatus(ctx.Query("status"))
	if status != "" && !status.Valid() {
		util.BadRequest(ctx, "invalid status")
		return
	}

	page, limit := util.Pagination(ctx)
	items, total, err := c.Service.ListByAssessment(ctx.Request.Context(), id, status, page, limit)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{List: items, Total: total, Page: page, Limit: limit})
}

// @Summary 学生的作答列表
// @Description 学生只能查看自己的作答
// @Tags 作答
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "学生ID"
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /students/{id}/submissions [get]
func (c *SubmissionController) ListByStudent(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	page, limit := util.Pagination(ctx)
	items, total, err := c.Service.ListByStudent(ctx.Request.Context(), util.GetSession(ctx), id, page, limit)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{List: items, Total: total, Page: page, Limit: limit})
}
