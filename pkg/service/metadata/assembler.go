/*
 * @Description: 根据文件信息生成图片的 slug、标题、摘要、描述与自动标签
 * @Author: 安知鱼
 * @Date: 2026-09-05 09:42:13
 * @LastEditTime: 2026-10-14 15:41:26
 * @LastEditors: 安知鱼
 */
package metadata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/anzhiyu-c/anheyu-gallery/internal/pkg/strutil"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/repository"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/filename"
)

const (
	// DateBucketLayout 是日期分桶目录名的格式
	DateBucketLayout = "2006-01-02"

	MaxSlugLength        = 127
	MaxTitleLength       = 255
	MaxSummaryLength     = 255
	MaxDescriptionLength = 2048

	TagHD   = "HD"
	TagSD   = "SD"
	TagCopy = "Copy"

	maxSlugAttempts = 10000
)

// DateBucket 返回上传时间对应的分桶目录名（UTC）
func DateBucket(uploadedAt time.Time) string {
	return uploadedAt.UTC().Format(DateBucketLayout)
}

// Thresholds 是 HD / SD 标签的字节数阈值
type Thresholds struct {
	Large int64
	Small int64
}

// AssembleInput 是组装一张图片草稿所需的全部输入
type AssembleInput struct {
	Command model.UploadFileCommand
	// SanitizedName 是清洗后、冲突处理前的文件名
	SanitizedName string
	// Conflicts 为冲突处理追加后缀的次数
	Conflicts    int
	Source       model.FilepathRecord
	Derived      []model.FilepathRecord
	CapturedAt   *time.Time
	PrimaryColor string
	// ViewPrivilege 是查看该图片所需的权限位
	ViewPrivilege model.Boolset
}

// Assembler 组装 PhotoDraft
type Assembler struct {
	photos     repository.PhotoRepository
	tags       repository.TagRepository
	thresholds Thresholds
}

// NewAssembler 创建组装器
func NewAssembler(photos repository.PhotoRepository, tags repository.TagRepository, thresholds Thresholds) *Assembler {
	return &Assembler{photos: photos, tags: tags, thresholds: thresholds}
}

// Assemble 生成草稿，slug 会与已有的全部 slug 去重
func (a *Assembler) Assemble(ctx context.Context, in AssembleInput) (*model.PhotoDraft, error) {
	uploadedAt := in.Command.UploadedAt.UTC()
	bucket := DateBucket(uploadedAt)

	capturedAt := uploadedAt
	taken := false
	if in.CapturedAt != nil && !in.CapturedAt.IsZero() {
		capturedAt = in.CapturedAt.UTC()
		taken = DateBucket(capturedAt) != bucket
	}

	slug, err := a.uniqueSlug(ctx, a.baseSlug(bucket, in))
	if err != nil {
		return nil, err
	}

	title := a.title(in)
	summary := in.Command.Summary
	if summary == "" {
		summary = fmt.Sprintf("%s - %dx%d, %s.", title, in.Source.Width, in.Source.Height, humanize.Bytes(uint64(in.Source.Size)))
	}

	filepaths := make([]model.FilepathRecord, 0, 1+len(in.Derived))
	filepaths = append(filepaths, in.Source)
	filepaths = append(filepaths, in.Derived...)

	return &model.PhotoDraft{
		Slug:          slug,
		Title:         title,
		Summary:       strutil.Truncate(summary, MaxSummaryLength),
		Description:   strutil.Truncate(describe(in, capturedAt, uploadedAt, taken), MaxDescriptionLength),
		DateBucket:    bucket,
		CapturedAt:    capturedAt,
		UploadedAt:    uploadedAt,
		PrimaryColor:  in.PrimaryColor,
		ViewPrivilege: in.ViewPrivilege,
		Filepaths:     filepaths,
		TagNames:      mergeTags(in.Command.Tags, a.autoTags(in, capturedAt, taken)),
	}, nil
}

// ResolveTags 通过标签仓储查找或创建草稿上的全部标签
func (a *Assembler) ResolveTags(ctx context.Context, draft *model.PhotoDraft) ([]*model.Tag, error) {
	if len(draft.TagNames) == 0 {
		return []*model.Tag{}, nil
	}
	tags, err := a.tags.FindOrCreate(ctx, draft.TagNames)
	if err != nil {
		return nil, fmt.Errorf("%w: 解析标签失败: %v", constant.ErrExternal, err)
	}
	return tags, nil
}

func (a *Assembler) baseSlug(bucket string, in AssembleInput) string {
	if in.Command.Slug != "" {
		if s := Slugify(in.Command.Slug); s != "" {
			return strutil.TruncateWithLengthSuffix(s, MaxSlugLength)
		}
	}
	stem, _ := filename.SplitExt(in.SanitizedName)
	s := Slugify(stem)
	if s == "" {
		s = "photo"
	}
	return strutil.TruncateWithLengthSuffix(bucket+"-"+s, MaxSlugLength)
}

// uniqueSlug 在全表范围内为 base 去重，与 photos.slug 的唯一约束一致
func (a *Assembler) uniqueSlug(ctx context.Context, base string) (string, error) {
	used, err := a.photos.SlugsWithPrefix(ctx, base)
	if err != nil {
		return "", fmt.Errorf("%w: 查询已用 slug 失败: %v", constant.ErrExternal, err)
	}
	taken := make(map[string]struct{}, len(used))
	for _, s := range used {
		taken[s] = struct{}{}
	}
	if _, ok := taken[base]; !ok {
		return base, nil
	}
	for n := 2; n < maxSlugAttempts; n++ {
		suffix := "-" + strconv.Itoa(n)
		candidate := clampRunes(base, MaxSlugLength-len(suffix)) + suffix
		if _, ok := taken[candidate]; !ok {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: 无法为 %s 生成唯一的 slug", constant.ErrIO, base)
}

func (a *Assembler) title(in AssembleInput) string {
	title := in.Command.Title
	if title == "" {
		title = in.SanitizedName
		if in.Conflicts > 0 {
			title = fmt.Sprintf("%s (#%d)", title, in.Conflicts)
		}
	}
	return strutil.Truncate(title, MaxTitleLength)
}

func (a *Assembler) autoTags(in AssembleInput, capturedAt time.Time, taken bool) []string {
	var tags []string
	if taken {
		tags = append(tags, strconv.Itoa(capturedAt.Year()))
	}
	switch size := in.Source.Size; {
	case a.thresholds.Large > 0 && size >= a.thresholds.Large:
		tags = append(tags, TagHD)
	case a.thresholds.Small > 0 && size < a.thresholds.Small:
		tags = append(tags, TagSD)
	}
	if in.Conflicts > 0 {
		tags = append(tags, TagCopy)
	}
	return tags
}

func describe(in AssembleInput, capturedAt, uploadedAt time.Time, taken bool) string {
	var b strings.Builder
	if taken {
		fmt.Fprintf(&b, "Taken in %s, uploaded to %s.", capturedAt.Format("January 2006"), in.Source.Directory)
	} else {
		fmt.Fprintf(&b, "Uploaded in %s to %s.", uploadedAt.Format("January 2006"), in.Source.Directory)
	}
	fmt.Fprintf(&b, " %dx%d pixels, %s.", in.Source.Width, in.Source.Height, humanize.Bytes(uint64(in.Source.Size)))
	if in.Conflicts > 0 {
		fmt.Fprintf(&b, " Renamed to %s because the name was already taken.", in.Source.Filename)
	}
	return b.String()
}

// Slugify 转为小写，并把 [a-z0-9-_] 以外的字符替换为 "-"，连续的 "-" 合并
func Slugify(s string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func mergeTags(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, t := range list {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func clampRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
