package controller

import (
	"smart_edu_backend/internal/model"
	"smart_edu_backend/internal/service"
	"smart_edu_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type AssessmentController struct {
	Service *service.AssessmentService
}

func NewAssessmentController(svc *service.AssessmentService) *AssessmentController {
	return &AssessmentController{Service: svc}
}

// @Summary 创建测评
// @Description 校验失败返回 400 和逐字段错误；分值不一致等问题作为 warnings 返回
// @Tags 测评
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body service.AssessmentInput true "测评内容"
// @Success 201 {object} util.Response{data=service.AssessmentResult}
// @Failure 400 {object} util.Response
// @Router /assessments [post]
func (c *AssessmentController) Create(ctx *gin.Context) {
	var in service.AssessmentInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.Service.Create(ctx.Request.Context(), util.GetSession(ctx), in)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Created(ctx, result)
}

// @Summary 获取测评
// @Description 学生只能看到已发布且启用的测评，且不包含答案
// @Tags 测评
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response{data=model.Assessment}
// @Failure 404 {object} util.Response
// @Router /assessments/{id} [get]
func (c *AssessmentController) Get(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	a, err := c.Service.Get(ctx.Request.Context(), util.GetSession(ctx), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, a)
}

// @Summary 测评列表
// @Tags 测评
// @Produce json
// @Security ApiKeyAuth
// @Param course_id query int false "课程ID"
// @Param type query string false "测评类型"
// @Param published query bool false "是否已发布"
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /assessments [get]
func (c *AssessmentController) List(ctx *gin.Context) {
	filter := service.AssessmentFilter{
		CourseID: util.MustParseUint(ctx.Query("course_id")),
		Type:     model.AssessmentType(ctx.Query("type")),
	}
	if v := ctx.Query("published"); v != "" {
		published, err := strconv.ParseBool(v)
		if err != nil {
			util.BadRequest(ctx, "invalid published")
			return
		}
		filter.Published = &published
	}
	c.list(ctx, filter)
}

// @Summary 课程下的测评列表
// @Tags 测评
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "课程ID"
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /courses/{id}/assessments [get]
func (c *AssessmentController) ListByCourse(ctx *gin.Context) {
	courseID, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	c.list(ctx, service.AssessmentFilter{CourseID: courseID})
}

func (c *AssessmentController) list(ctx *gin.Context, filter service.AssessmentFilter) {
	filter.Page, filter.Limit = util.Pagination(ctx)
	items, total, err := c.Service.List(ctx.Request.Context(), util.GetSession(ctx), filter)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{
		List:  items,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	})
}

// @Summary 修改测评
// @Description 已有提交时只允许修改题目内容，增删题目或修改题型返回 409
// @Tags 测评
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "测评ID"
// @Param body body service.AssessmentInput true "测评内容"
// @Success 200 {object} util.Response{data=service.AssessmentResult}
// @Failure 409 {object} util.Response
// @Router /assessments/{id} [put]
func (c *AssessmentController) Update(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	var in service.AssessmentInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.Service.Update(ctx.Request.Context(), util.GetSession(ctx), id, in)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// @Summary 发布或下线测评
// @Tags 测评
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "测评ID"
// @Param body body service.PublishRequest true "发布状态"
// @Success 200 {object} util.Response{data=model.Assessment}
// @Router /assessments/{id}/publish [patch]
func (c *AssessmentController) SetPublished(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	var req service.PublishRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	a, err := c.Service.SetPublished(ctx.Request.Context(), util.GetSession(ctx), id, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, a)
}

// @Summary 删除测评
// @Description 已有提交的测评不能删除
// @Tags 测评
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /assessments/{id} [delete]
func (c *AssessmentController) Delete(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	if err := c.Service.Delete(ctx.Request.Context(), util.GetSession(ctx), id); err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, nil)
}

// @Summary 测评统计
// @Tags 测评
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response{data=service.AssessmentStats}
// @Router /assessments/{id}/stats [get]
func (c *AssessmentController) Stats(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	stats, err := c.Service.Stats(ctx.Request.Context(), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, stats)
}

// @Summary 测评提交数量
// @Tags 测评
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response
// @Router /assessments/{id}/submission-count [get]
func (c *AssessmentController) SubmissionCount(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	count, err := c.Service.SubmissionCount(ctx.Request.Context(), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"assessment_id": id, "count": count})
}
