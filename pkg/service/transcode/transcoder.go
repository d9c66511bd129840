/*
 * @Description: 解码源图并派生中图、缩略图。派生图使用与源图相同的编码格式。
 * @Author: 安知鱼
 * @Date: 2025-07-12 16:09:46
 * @LastEditTime: 2026-10-14 13:02:17
 * @LastEditors: 安知鱼
 */
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/filetype"
)

// Tier 描述一个派生尺寸的目标像素与上下限
type Tier struct {
	Dimension model.Dimension
	Base      int
	Min       int
	Max       int
}

// DefaultTiers 按从大到小的顺序列出派生尺寸
var DefaultTiers = []Tier{
	{Dimension: model.DimensionMedium, Base: 960, Min: 640, Max: 1920},
	{Dimension: model.DimensionThumbnail, Base: 256, Min: 128, Max: 512},
}

// Target 根据宽高比计算该等级的目标边长：clamp(Base * max/min, Min, Max)
func (t Tier) Target(width, height int) int {
	long, short := width, height
	if short > long {
		long, short = short, long
	}
	if short <= 0 {
		return t.Min
	}
	multiplier := float64(long) / float64(short)
	target := int(float64(t.Base) * multiplier)
	if target < t.Min {
		target = t.Min
	}
	if target > t.Max {
		target = t.Max
	}
	return target
}

// Representation 是一个派生出的尺寸，Width/Height 为缩放后的实际大小
type Representation struct {
	Dimension model.Dimension
	Data      []byte
	Width     int
	Height    int
}

// Result 是一次转码的结果
type Result struct {
	Width        int
	Height       int
	Derived      []Representation
	PrimaryColor string
}

// Representation 返回指定尺寸的派生图
func (r *Result) Representation(dim model.Dimension) (*Representation, bool) {
	for i := range r.Derived {
		if r.Derived[i].Dimension == dim {
			return &r.Derived[i], true
		}
	}
	return nil, false
}

// Smallest 返回最小的派生图，用于推理等场景
func (r *Result) Smallest() (*Representation, bool) {
	if len(r.Derived) == 0 {
		return nil, false
	}
	return &r.Derived[len(r.Derived)-1], true
}

// Transcoder 负责解码与缩放
type Transcoder struct {
	tiers        []Tier
	jpegQuality  int
	primaryColor bool
}

// Option 配置 Transcoder
type Option func(*Transcoder)

// WithTiers 替换默认的派生尺寸表
func WithTiers(tiers ...Tier) Option {
	return func(t *Transcoder) { t.tiers = tiers }
}

// WithJPEGQuality 设置 JPEG 重新编码的质量
func WithJPEGQuality(q int) Option {
	return func(t *Transcoder) { t.jpegQuality = q }
}

// WithPrimaryColor 开启主色调提取
func WithPrimaryColor(enabled bool) Option {
	return func(t *Transcoder) { t.primaryColor = enabled }
}

// NewTranscoder 创建转码器
func NewTranscoder(opts ...Option) *Transcoder {
	t := &Transcoder{
		tiers:       DefaultTiers,
		jpegQuality: 90,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transcode 解码一次源图，为每个目标尺寸小于源图的等级生成派生图。
// 源图在任一轴上不大于目标尺寸时不生成该等级，从不放大。
func (t *Transcoder) Transcode(ctx context.Context, src []byte, format *filetype.Format) (*Result, error) {
	srcImage, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: 解码图片失败: %v", constant.ErrFormat, err)
	}

	bounds := srcImage.Bounds()
	result := &Result{Width: bounds.Dx(), Height: bounds.Dy()}

	encodeFormat, canEncode := imagingFormat(format)
	if !canEncode {
		log.Printf("[Transcoder] 格式 %s 没有可用的编码器，跳过派生尺寸", format)
	}

	smallest := srcImage
	for _, tier := range t.tiers {
		if !canEncode {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		target := tier.Target(result.Width, result.Height)
		if result.Width <= target || result.Height <= target {
			continue
		}

		resized := imaging.Fit(srcImage, target, target, imaging.Lanczos)
		data, err := t.encode(resized, encodeFormat)
		if err != nil {
			return nil, fmt.Errorf("%w: 编码 %s 尺寸失败: %v", constant.ErrFormat, tier.Dimension, err)
		}

		rb := resized.Bounds()
		result.Derived = append(result.Derived, Representation{
			Dimension: tier.Dimension,
			Data:      data,
			Width:     rb.Dx(),
			Height:    rb.Dy(),
		})
		smallest = resized
	}

	if t.primaryColor {
		color, err := PrimaryColor(smallest)
		if err != nil {
			log.Printf("[Transcoder] 提取主色调失败（不影响入库）: %v", err)
		} else {
			result.PrimaryColor = color
		}
	}

	return result, nil
}

func (t *Transcoder) encode(img image.Image, format imaging.Format) ([]byte, error) {
	var buf bytes.Buffer
	var opts []imaging.EncodeOption
	if format == imaging.JPEG {
		opts = append(opts, imaging.JPEGQuality(t.jpegQuality))
	}
	if err := imaging.Encode(&buf, img, format, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// imagingFormat 将嗅探到的格式映射为 imaging 的编码格式
func imagingFormat(f *filetype.Format) (imaging.Format, bool) {
	switch f {
	case filetype.JPEG:
		return imaging.JPEG, true
	case filetype.PNG:
		return imaging.PNG, true
	case filetype.GIF:
		return imaging.GIF, true
	case filetype.TIFF:
		return imaging.TIFF, true
	case filetype.BMP:
		return imaging.BMP, true
	}
	return 0, false
}
