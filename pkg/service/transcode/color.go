// anheyu-gallery/pkg/service/transcode/color.go
package transcode

import (
	"fmt"
	"image"

	"github.com/EdlinOrg/prominentcolor"
)

// primaryColorK 只聚一类，结果即整张图的平均色
const primaryColorK = 1

// PrimaryColor 使用 'prominentcolor' (K-Means算法) 查找图片主色调，返回 #rrggbb
func PrimaryColor(img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("图片为空")
	}

	colors, err := prominentcolor.KmeansWithAll(primaryColorK, img, prominentcolor.ArgumentNoCropping, prominentcolor.DefaultSize, prominentcolor.GetDefaultMasks())
	if err != nil {
		return "", fmt.Errorf("使用 prominentcolor (K-Means) 提取主色调失败: %w", err)
	}
	if len(colors) == 0 {
		return "", fmt.Errorf("prominentcolor (K-Means) 未能找到任何主色调")
	}

	dominant := colors[0].Color
	return fmt.Sprintf("#%02x%02x%02x", dominant.R, dominant.G, dominant.B), nil
}
