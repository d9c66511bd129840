/*
 * @Description: 尽力而为地从嵌入元数据中提取拍摄时间，任何失败都不会中断入库
 * @Author: 安知鱼
 * @Date: 2026-09-04 16:03:51
 * @LastEditTime: 2026-10-14 13:25:09
 * @LastEditors: 安知鱼
 */
package exifdate

import (
	"bytes"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/dsoprea/go-exif/v3"
	goexif "github.com/rwcarlsen/goexif/exif"
	"github.com/spf13/cast"

	heicexif "github.com/dsoprea/go-heic-exif-extractor"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure"
	pngstructure "github.com/dsoprea/go-png-image-structure"
	tiffstructure "github.com/dsoprea/go-tiff-image-structure"
	riimage "github.com/dsoprea/go-utility/image"
)

// LegacyLayout 是 EXIF 规范中 DateTimeOriginal 的固定格式 (yyyy:MM:dd HH:mm:ss)
const LegacyLayout = "2006:01:02 15:04:05"

// captureTags 按优先级列出表示拍摄时间的标签
var captureTags = []string{"DateTimeOriginal", "CreateDate", "DateTimeDigitized", "DateTime"}

type (
	exifParser interface {
		Parse(rs io.ReadSeeker, size int) (ec riimage.MediaContext, err error)
	}
)

func getExifParser(ext string) exifParser {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return jpegstructure.NewJpegMediaParser()
	case ".png":
		return pngstructure.NewPngMediaParser()
	case ".tif", ".tiff":
		return tiffstructure.NewTiffMediaParser()
	case ".heic", ".heif", ".avif":
		return heicexif.NewHeicExifMediaParser()
	default:
		// 其余格式依赖蛮力搜索
		return nil
	}
}

// ExtractCaptureDate 返回图片的拍摄时间，找不到或无法解析时返回 nil，调用方应回退到上传时间
func ExtractCaptureDate(data []byte, ext string) *time.Time {
	if len(data) == 0 {
		return nil
	}

	for _, raw := range rawCaptureValues(data, ext) {
		if t, ok := ParseTimestamp(raw); ok {
			return &t
		}
	}

	if t, ok := fallbackDateTime(data); ok {
		return &t
	}
	return nil
}

// rawCaptureValues 使用 go-exif 读取候选的拍摄时间字符串
func rawCaptureValues(data []byte, ext string) (values []string) {
	defer func() {
		// dsoprea 的解析器在遇到畸形数据时可能 panic
		if r := recover(); r != nil {
			log.Printf("[ExifDate] 解析 EXIF 时发生 panic，已忽略: %v", r)
			values = nil
		}
	}()

	readSeeker := bytes.NewReader(data)
	var exifData []byte

	// 1. 优先使用对应格式的结构解析器
	if parser := getExifParser(ext); parser != nil {
		if res, err := parser.Parse(readSeeker, len(data)); err == nil && res != nil {
			if _, raw, err := res.Exif(); err == nil {
				exifData = raw
			}
		}
	}

	// 2. 回退到蛮力搜索
	if len(exifData) == 0 {
		if _, err := readSeeker.Seek(0, io.SeekStart); err != nil {
			return nil
		}
		raw, err := exif.SearchAndExtractExifWithReader(readSeeker)
		if err != nil {
			if !errors.Is(err, exif.ErrNoExif) {
				log.Printf("[ExifDate] 蛮力搜索 EXIF 失败: %v", err)
			}
			return nil
		}
		exifData = raw
	}

	entries, _, err := exif.GetFlatExifData(exifData, nil)
	if err != nil {
		log.Printf("[ExifDate] 解析 EXIF 条目失败: %v", err)
		return nil
	}

	found := make(map[string]string)
	for _, tag := range entries {
		if tag.TagName == "" {
			continue
		}
		cleaned := strings.TrimSpace(strings.ReplaceAll(tag.FormattedFirst, "\x00", ""))
		if cleaned != "" {
			if _, exists := found[tag.TagName]; !exists {
				found[tag.TagName] = cleaned
			}
		}
	}

	for _, name := range captureTags {
		if v, ok := found[name]; ok {
			values = append(values, v)
		}
	}
	return values
}

// fallbackDateTime 在 go-exif 未能给出结果时使用 goexif 再尝试一次
func fallbackDateTime(data []byte) (t time.Time, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	x, err := goexif.Decode(bytes.NewReader(data))
	if err != nil {
		return time.Time{}, false
	}
	dt, err := x.DateTime()
	if err != nil || dt.IsZero() {
		return time.Time{}, false
	}
	return dt, true
}

// ParseTimestamp 先做宽松解析，失败后再尝试 EXIF 固定格式
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := cast.ToTimeE(raw); err == nil && !t.IsZero() {
		return t, true
	}
	if t, err := time.Parse(LegacyLayout, raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}
