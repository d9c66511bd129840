/*
 * @Description: 基于魔数的图片格式嗅探
 * @Author: 安知鱼
 * @Date: 2026-09-03 09:12:44
 * @LastEditTime: 2026-10-14 12:05:31
 * @LastEditors: 安知鱼
 */
package filetype

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
)

// HeaderSize 覆盖签名表中所有窗口所需读取的字节数
const HeaderSize = 16

// window 是文件头中的一个签名窗口，任一候选签名前缀匹配即视为命中
type window struct {
	offset     int64
	signatures [][]byte
}

// Format 描述一种受支持的图片格式
type Format struct {
	Name       string
	MIME       string
	Extensions []string
	windows    []window
}

func (f *Format) String() string { return f.Name }

var (
	JPEG = &Format{
		Name:       "jpeg",
		MIME:       "image/jpeg",
		Extensions: []string{".jpg", ".jpeg"},
		windows:    []window{{0, [][]byte{{0xFF, 0xD8, 0xFF}}}},
	}
	PNG = &Format{
		Name:       "png",
		MIME:       "image/png",
		Extensions: []string{".png"},
		windows:    []window{{0, [][]byte{{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}}}},
	}
	GIF = &Format{
		Name:       "gif",
		MIME:       "image/gif",
		Extensions: []string{".gif"},
		windows:    []window{{0, [][]byte{[]byte("GIF87a"), []byte("GIF89a")}}},
	}
	// WEBP 是 RIFF 容器，需要同时命中 0-4 与 8-12 两个不相邻的窗口
	WEBP = &Format{
		Name:       "webp",
		MIME:       "image/webp",
		Extensions: []string{".webp"},
		windows: []window{
			{0, [][]byte{[]byte("RIFF")}},
			{8, [][]byte{[]byte("WEBP")}},
		},
	}
	BMP = &Format{
		Name:       "bmp",
		MIME:       "image/bmp",
		Extensions: []string{".bmp"},
		windows:    []window{{0, [][]byte{[]byte("BM")}}},
	}
	TIFF = &Format{
		Name:       "tiff",
		MIME:       "image/tiff",
		Extensions: []string{".tif", ".tiff"},
		windows:    []window{{0, [][]byte{{0x49, 0x49, 0x2A, 0x00}, {0x4D, 0x4D, 0x00, 0x2A}}}},
	}
)

// formats 的顺序即 Detect 的扫描顺序
var formats = []*Format{JPEG, PNG, GIF, WEBP, TIFF, BMP}

var byExtension = func() map[string]*Format {
	m := make(map[string]*Format)
	for _, f := range formats {
		for _, ext := range f.Extensions {
			m[ext] = f
		}
	}
	return m
}()

// Formats 返回全部受支持的格式
func Formats() []*Format {
	out := make([]*Format, len(formats))
	copy(out, formats)
	return out
}

// Lookup 根据扩展名（可带或不带点，大小写不敏感）或完整文件名查找格式
func Lookup(extOrName string) (*Format, bool) {
	ext := strings.ToLower(extOrName)
	if !strings.HasPrefix(ext, ".") || strings.Count(ext, ".") > 1 {
		if e := filepath.Ext(ext); e != "" {
			ext = e
		} else {
			ext = "." + ext
		}
	}
	f, ok := byExtension[ext]
	return f, ok
}

// Validate 校验 rs 的文件头是否与扩展名声明的格式一致。
// 扩展名不受支持或签名不匹配时返回包装了 constant.ErrFormat 的错误。
// 返回前会把读取位置恢复到起点。
func Validate(ext string, rs io.ReadSeeker) (*Format, error) {
	f, ok := Lookup(ext)
	if !ok {
		return nil, fmt.Errorf("%w: 不支持的扩展名 %q", constant.ErrFormat, ext)
	}

	matched, err := f.matchReader(rs)
	if _, seekErr := rs.Seek(0, io.SeekStart); seekErr != nil && err == nil {
		err = seekErr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: 读取文件头失败: %v", constant.ErrIO, err)
	}
	if !matched {
		return nil, fmt.Errorf("%w: 文件头与扩展名 %q 不匹配", constant.ErrFormat, ext)
	}
	return f, nil
}

// ValidateBytes 是 Validate 针对内存缓冲区的版本，用于写盘之前的校验
func ValidateBytes(ext string, data []byte) (*Format, error) {
	return Validate(ext, bytes.NewReader(data))
}

// Detect 不依赖扩展名，按签名表扫描文件头并返回第一个命中的格式
func Detect(header []byte) (*Format, bool) {
	for _, f := range formats {
		if f.Match(header) {
			return f, true
		}
	}
	return nil, false
}

// Match 判断内存中的文件头是否命中该格式的全部窗口
func (f *Format) Match(header []byte) bool {
	for _, w := range f.windows {
		if !w.matchBytes(header) {
			return false
		}
	}
	return true
}

func (f *Format) matchReader(rs io.ReadSeeker) (bool, error) {
	for _, w := range f.windows {
		if _, err := rs.Seek(w.offset, io.SeekStart); err != nil {
			return false, err
		}
		buf := make([]byte, w.longest())
		n, err := io.ReadFull(rs, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return false, err
		}
		if !w.matchAt(buf[:n]) {
			return false, nil
		}
	}
	return true, nil
}

func (w window) longest() int {
	n := 0
	for _, sig := range w.signatures {
		if len(sig) > n {
			n = len(sig)
		}
	}
	return n
}

func (w window) matchBytes(header []byte) bool {
	if int64(len(header)) <= w.offset {
		return false
	}
	return w.matchAt(header[w.offset:])
}

func (w window) matchAt(data []byte) bool {
	for _, sig := range w.signatures {
		if bytes.HasPrefix(data, sig) {
			return true
		}
	}
	return false
}
