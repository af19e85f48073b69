package controller

import (
	"smart_edu_backend/internal/service"
	"smart_edu_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type UploadController struct {
	StorageService *service.StorageService
}

func NewUploadController(storage *service.StorageService) *UploadController {
	return &UploadController{StorageService: storage}
}

// UploadAttachment godoc
// @Summary 上传作答附件
// @Description 返回的 File 可在提交作答时放入 answers[].files
// @Tags 作答
// @Accept  multipart/form-data
// @Produce  json
// @Security ApiKeyAuth
// @Param   file formData file true "附件"
// @Success 201 {object} util.Response{data=model.File}
// @Failure 400 {object} util.Response "文件类型或大小不符合要求"
// @Router /uploads [post]
func (c *UploadController) UploadAttachment(ctx *gin.Context) {
	file, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "File is required")
		return
	}

	f, err := c.StorageService.SaveAttachment(ctx.Request.Context(), file)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Created(ctx, f)
}
