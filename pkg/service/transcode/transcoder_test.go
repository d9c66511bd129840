package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/filetype"
)

func patterned(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x*7%200 + 30),
				G: uint8(y*5%200 + 30),
				B: uint8((x+y)%200 + 30),
				A: 255,
			})
		}
	}
	return img
}

func encodeImage(t *testing.T, img image.Image, format imaging.Format) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

func TestTierTarget(t *testing.T) {
	medium := DefaultTiers[0]
	thumb := DefaultTiers[1]

	tests := []struct {
		name     string
		tier     Tier
		w, h     int
		expected int
	}{
		{name: "中图4比3", tier: medium, w: 2000, h: 1500, expected: 1280},
		{name: "中图正方形", tier: medium, w: 3000, h: 3000, expected: 960},
		{name: "中图超长全景被上限截断", tier: medium, w: 9000, h: 1000, expected: 1920},
		{name: "缩略图4比3", tier: thumb, w: 2000, h: 1500, expected: 341},
		{name: "缩略图竖图", tier: thumb, w: 1500, h: 2000, expected: 341},
		{name: "缩略图超长", tier: thumb, w: 5000, h: 500, expected: 512},
		{name: "零尺寸返回下限", tier: thumb, w: 0, h: 0, expected: 128},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.tier.Target(tt.w, tt.h))
		})
	}
}

func TestTranscodeProducesBothTiers(t *testing.T) {
	src := encodeImage(t, imaging.New(2000, 1500, color.NRGBA{R: 40, G: 120, B: 200, A: 255}), imaging.JPEG)

	res, err := NewTranscoder().Transcode(context.Background(), src, filetype.JPEG)
	require.NoError(t, err)
	require.Equal(t, 2000, res.Width)
	require.Equal(t, 1500, res.Height)
	require.Len(t, res.Derived, 2)

	medium, ok := res.Representation(model.DimensionMedium)
	require.True(t, ok)
	require.Equal(t, 1280, medium.Width)
	require.Equal(t, 960, medium.Height)

	thumb, ok := res.Representation(model.DimensionThumbnail)
	require.True(t, ok)
	require.Equal(t, 341, thumb.Width)
	require.Equal(t, 256, thumb.Height)

	for _, rep := range res.Derived {
		f, found := filetype.Detect(rep.Data)
		require.True(t, found)
		require.Equal(t, filetype.JPEG, f, "派生图应保持源图编码")
		require.LessOrEqual(t, rep.Width, res.Width)
		require.LessOrEqual(t, rep.Height, res.Height)
	}

	smallest, ok := res.Smallest()
	require.True(t, ok)
	require.Equal(t, model.DimensionThumbnail, smallest.Dimension)
}

func TestTranscodeNeverUpscales(t *testing.T) {
	tests := []struct {
		name     string
		w, h     int
		expected []model.Dimension
	}{
		{name: "只生成缩略图", w: 600, h: 400, expected: []model.Dimension{model.DimensionThumbnail}},
		{name: "小图不生成派生", w: 200, h: 200, expected: nil},
		{name: "恰好等于目标不生成", w: 256, h: 256, expected: nil},
		{name: "一条边不足不生成", w: 900, h: 300, expected: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := encodeImage(t, imaging.New(tt.w, tt.h, color.NRGBA{R: 90, G: 90, B: 90, A: 255}), imaging.PNG)
			res, err := NewTranscoder().Transcode(context.Background(), src, filetype.PNG)
			require.NoError(t, err)

			var got []model.Dimension
			for _, rep := range res.Derived {
				got = append(got, rep.Dimension)
				require.Less(t, rep.Width, tt.w)
				require.Less(t, rep.Height, tt.h)
				f, _ := filetype.Detect(rep.Data)
				require.Equal(t, filetype.PNG, f)
			}
			require.Equal(t, tt.expected, got)
		})
	}
}

func TestTranscodeRejectsUndecodable(t *testing.T) {
	_, err := NewTranscoder().Transcode(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0x00, 0x01}, filetype.JPEG)
	require.Error(t, err)
	require.True(t, errors.Is(err, constant.ErrFormat))
}

func TestTranscodeHonoursCancellation(t *testing.T) {
	src := encodeImage(t, imaging.New(1200, 900, color.NRGBA{A: 255}), imaging.JPEG)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTranscoder().Transcode(ctx, src, filetype.JPEG)
	require.ErrorIs(t, err, context.Canceled)
}

func TestImagingFormat(t *testing.T) {
	_, ok := imagingFormat(filetype.WEBP)
	require.False(t, ok, "WEBP 没有纯 Go 编码器")

	f, ok := imagingFormat(filetype.GIF)
	require.True(t, ok)
	require.Equal(t, imaging.GIF, f)
}

func TestPrimaryColor(t *testing.T) {
	c, err := PrimaryColor(patterned(64, 48))
	require.NoError(t, err)
	require.Len(t, c, 7)
	require.Equal(t, byte('#'), c[0])

	_, err = PrimaryColor(nil)
	require.Error(t, err)
}

func TestPrimaryColorIsSingleCluster(t *testing.T) {
	// 左侧 3/4 为蓝色，右侧 1/4 为红色，单一聚类的中心应接近两者按面积的加权平均
	img := image.NewNRGBA(image.Rect(0, 0, 160, 120))
	for y := 0; y < 120; y++ {
		for x := 0; x < 160; x++ {
			c := color.NRGBA{R: 40, G: 60, B: 200, A: 255}
			if x >= 120 {
				c = color.NRGBA{R: 200, G: 60, B: 40, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}

	hex, err := PrimaryColor(img)
	require.NoError(t, err)

	var r, g, b int
	_, err = fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b)
	require.NoError(t, err)
	require.InDelta(t, 80, r, 20, "红色分量应为混合值而不是某一种纯色，实际 %s", hex)
	require.InDelta(t, 60, g, 20)
	require.InDelta(t, 160, b, 20, "蓝色分量应为混合值而不是某一种纯色，实际 %s", hex)
}

func TestTranscoderWithPrimaryColor(t *testing.T) {
	src := encodeImage(t, patterned(800, 600), imaging.PNG)
	res, err := NewTranscoder(WithPrimaryColor(true)).Transcode(context.Background(), src, filetype.PNG)
	require.NoError(t, err)
	require.NotEmpty(t, res.PrimaryColor)
}
