/*
 * @Description: 图片领域模型
 * @Author: 安知鱼
 * @Date: 2026-09-02 14:21:07
 * @LastEditTime: 2026-10-14 11:02:45
 * @LastEditors: 安知鱼
 */
package model

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Dimension 是图片存储的尺寸等级
type Dimension string

const (
	DimensionSource    Dimension = "source"
	DimensionMedium    Dimension = "medium"
	DimensionThumbnail Dimension = "thumbnail"
)

// AllDimensions 按写入顺序列出所有尺寸等级
var AllDimensions = []Dimension{DimensionSource, DimensionMedium, DimensionThumbnail}

// ParseDimension 将路由参数解析为 Dimension，大小写不敏感
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("未知的尺寸等级: %q", s)
	}
	return d, nil
}

// Valid 判断是否为已知的尺寸等级
func (d Dimension) Valid() bool {
	switch d {
	case DimensionSource, DimensionMedium, DimensionThumbnail:
		return true
	}
	return false
}

func (d Dimension) String() string { return string(d) }

// FilepathRecord 描述某个尺寸的一个物理文件，写入后不再修改
type FilepathRecord struct {
	Dimension Dimension `json:"dimension"`
	Directory string    `json:"directory"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}

// Key 返回存储层使用的对象键，如 "source/2026-10-14/beach.jpg"
func (r FilepathRecord) Key() string {
	return path.Join(r.Directory, r.Filename)
}

// PhotoDraft 是尚未入库的图片聚合
type PhotoDraft struct {
	Slug          string
	Title         string
	Summary       string
	Description   string
	DateBucket    string
	CapturedAt    time.Time
	UploadedAt    time.Time
	PrimaryColor  string
	ViewPrivilege Boolset
	Filepaths     []FilepathRecord
	TagNames      []string
}

// Filepath 返回指定尺寸的文件记录
func (d *PhotoDraft) Filepath(dim Dimension) (FilepathRecord, bool) {
	return findFilepath(d.Filepaths, dim)
}

// Photo 是已入库的图片
type Photo struct {
	ID            uint             `json:"id"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Slug          string           `json:"slug"`
	Title         string           `json:"title"`
	Summary       string           `json:"summary"`
	Description   string           `json:"description"`
	DateBucket    string           `json:"date_bucket"`
	CapturedAt    time.Time        `json:"captured_at"`
	UploadedAt    time.Time        `json:"uploaded_at"`
	PrimaryColor  string           `json:"primary_color"`
	ViewPrivilege Boolset          `json:"view_privilege"`
	Filepaths     []FilepathRecord `json:"filepaths"`
	Tags          []*Tag           `json:"tags"`
}

// Filepath 返回指定尺寸的文件记录
func (p *Photo) Filepath(dim Dimension) (FilepathRecord, bool) {
	return findFilepath(p.Filepaths, dim)
}

// HasDerived 判断是否生成了中图或缩略图
func (p *Photo) HasDerived() bool {
	_, medium := p.Filepath(DimensionMedium)
	_, thumb := p.Filepath(DimensionThumbnail)
	return medium || thumb
}

// TagNames 返回标签名列表
func (p *Photo) TagNames() []string {
	names := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		names = append(names, t.Name)
	}
	return names
}

func findFilepath(records []FilepathRecord, dim Dimension) (FilepathRecord, bool) {
	for _, r := range records {
		if r.Dimension == dim {
			return r, true
		}
	}
	return FilepathRecord{}, false
}

// RepresentationSummary 是返回给客户端的尺寸信息
type RepresentationSummary struct {
	Dimension Dimension `json:"dimension"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Size      int64     `json:"size"`
}

// PhotoSummary 是上传接口和查询接口的响应体
type PhotoSummary struct {
	ID              string                  `json:"id"`
	Slug            string                  `json:"slug"`
	Title           string                  `json:"title"`
	Summary         string                  `json:"summary"`
	Description     string                  `json:"description"`
	Tags            []string                `json:"tags"`
	PrimaryColor    string                  `json:"primary_color,omitempty"`
	CapturedAt      time.Time               `json:"captured_at"`
	UploadedAt      time.Time               `json:"uploaded_at"`
	Representations []RepresentationSummary `json:"representations"`
}

// ToSummary 使用公共ID构建响应体
func (p *Photo) ToSummary(publicID string) *PhotoSummary {
	reps := make([]RepresentationSummary, 0, len(p.Filepaths))
	for _, r := range p.Filepaths {
		reps = append(reps, RepresentationSummary{
			Dimension: r.Dimension,
			Width:     r.Width,
			Height:    r.Height,
			Size:      r.Size,
		})
	}
	return &PhotoSummary{
		ID:              publicID,
		Slug:            p.Slug,
		Title:           p.Title,
		Summary:         p.Summary,
		Description:     p.Description,
		Tags:            p.TagNames(),
		PrimaryColor:    p.PrimaryColor,
		CapturedAt:      p.CapturedAt,
		UploadedAt:      p.UploadedAt,
		Representations: reps,
	}
}

// UploadBatchOptions 是一次上传请求内由表单字段累积的默认值。
// 只在遍历 multipart 分段期间被修改，每个文件定稿后通过 ResetFileOverrides 清空。
type UploadBatchOptions struct {
	Title   string
	Slug    string
	Summary string
	Tags    []string
}

// Snapshot 为一个文件分段生成不可变的上传命令
func (o *UploadBatchOptions) Snapshot(rawFilename string, uploadedAt time.Time) UploadFileCommand {
	tags := make([]string, len(o.Tags))
	copy(tags, o.Tags)
	return UploadFileCommand{
		RawFilename: rawFilename,
		Title:       o.Title,
		Slug:        o.Slug,
		Summary:     o.Summary,
		Tags:        tags,
		UploadedAt:  uploadedAt,
	}
}

// ResetFileOverrides 清空按文件生效的字段
func (o *UploadBatchOptions) ResetFileOverrides() {
	o.Title = ""
	o.Slug = ""
	o.Summary = ""
	o.Tags = nil
}

// UploadFileCommand 是单个文件入库所需的全部参数，构建后不再修改
type UploadFileCommand struct {
	RawFilename string
	Title       string
	Slug        string
	Summary     string
	Tags        []string
	UploadedAt  time.Time
}

// AnalysisResult 是推理服务返回的内容
type AnalysisResult struct {
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Empty 判断推理结果是否没有任何内容
func (r *AnalysisResult) Empty() bool {
	return r == nil || (r.Summary == "" && r.Description == "" && len(r.Tags) == 0)
}
