/*
 * @Description: 图片上传、查询与二进制下载接口
 * @Author: 安知鱼
 * @Date: 2026-09-15 14:26:09
 * @LastEditTime: 2026-10-14 18:05:44
 * @LastEditors: 安知鱼
 */
package photo_handler

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/anzhiyu-c/anheyu-gallery/internal/app/middleware"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/idgen"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/response"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/blob"
)

// blobMaxAge 是图片文件的浏览器缓存秒数，文件写入后不再修改
const blobMaxAge = 86400

// Uploader 是上传编排服务的抽象
type Uploader interface {
	Ingest(ctx context.Context, body io.Reader, boundary string, caller model.Identity) ([]*model.PhotoSummary, error)
}

// BlobReader 是图片读取服务的抽象
type BlobReader interface {
	FindPhoto(ctx context.Context, ref string, caller model.Identity) (*model.Photo, error)
	GetBlob(ctx context.Context, ref string, dim model.Dimension, caller model.Identity) (*blob.Blob, error)
}

// Handler 封装了图片相关的控制器方法
type Handler struct {
	uploader Uploader
	blobs    BlobReader
	debug    bool
}

// NewHandler 是 Handler 的构造函数，debug 为 true 时 500 错误会返回详细信息
func NewHandler(uploader Uploader, blobs BlobReader, debug bool) *Handler {
	return &Handler{uploader: uploader, blobs: blobs, debug: debug}
}

// Upload 处理图片上传
// @Summary      上传图片
// @Description  以 multipart/form-data 上传一张或多张图片，title/slug/summary/tags 字段只作用于紧随其后的文件
// @Tags         图片
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Success      201  {object}  response.Response{data=[]model.PhotoSummary}  "上传成功"
// @Failure      400  {object}  response.Response  "文件不合法"
// @Failure      403  {object}  response.Response  "没有上传权限"
// @Router       /photos [post]
func (h *Handler) Upload(c *gin.Context) {
	mediaType, params, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		response.Fail(c, http.StatusBadRequest, "请求必须是 multipart/form-data")
		return
	}

	summaries, err := h.uploader.Ingest(c.Request.Context(), c.Request.Body, params["boundary"], middleware.IdentityFrom(c))
	if err != nil {
		log.Printf("[PhotoHandler] 上传失败: %v", err)
		response.Error(c, err, h.debug)
		return
	}
	response.SuccessWithStatus(c, http.StatusCreated, summaries, fmt.Sprintf("成功上传 %d 张图片", len(summaries)))
}

// Get 返回图片信息
// @Summary      获取图片信息
// @Tags         图片
// @Produce      json
// @Param        ref  path  string  true  "公共ID或slug"
// @Success      200  {object}  response.Response{data=model.PhotoSummary}  "获取成功"
// @Failure      404  {object}  response.Response  "图片不存在"
// @Router       /photos/{ref} [get]
func (h *Handler) Get(c *gin.Context) {
	photo, err := h.blobs.FindPhoto(c.Request.Context(), c.Param("ref"), middleware.IdentityFrom(c))
	if err != nil {
		response.Error(c, err, h.debug)
		return
	}
	publicID, err := idgen.GeneratePublicID(photo.ID, idgen.EntityTypePhoto)
	if err != nil {
		response.Error(c, fmt.Errorf("%w: 生成公共ID失败: %v", constant.ErrInternalServer, err), h.debug)
		return
	}
	response.Success(c, photo.ToSummary(publicID), "获取成功")
}

// Blob 输出图片的某个尺寸
// @Summary      下载图片文件
// @Tags         图片
// @Produce      octet-stream
// @Param        ref        path  string  true  "公共ID或slug"
// @Param        dimension  path  string  true  "source / medium / thumbnail"
// @Success      200  {file}    binary  "图片内容"
// @Failure      404  {object}  response.Response  "该尺寸不存在"
// @Failure      423  {object}  response.Response  "文件被锁定"
// @Router       /photos/{ref}/blob/{dimension} [get]
func (h *Handler) Blob(c *gin.Context) {
	dim, err := model.ParseDimension(c.Param("dimension"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	b, err := h.blobs.GetBlob(c.Request.Context(), c.Param("ref"), dim, middleware.IdentityFrom(c))
	if err != nil {
		response.Error(c, err, h.debug)
		return
	}
	defer b.Reader.Close()

	size := b.Size
	if size <= 0 {
		size = -1
	}
	c.DataFromReader(http.StatusOK, size, b.ContentType, b.Reader, map[string]string{
		"X-Content-Type-Options": "nosniff",
		"Cache-Control":          "public, max-age=" + strconv.Itoa(blobMaxAge),
	})
}
