package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
)

const analysisPrompt = `Describe this photograph for a photo gallery.
Reply with a single JSON object and nothing else, using exactly these keys:
{"summary": "one sentence, at most 200 characters",
 "description": "two or three sentences about the subject, setting and mood",
 "tags": ["3 to 8 short lowercase keywords"]}`

// parseResult 解析模型回复，容忍 Markdown 代码块包裹以及前后的多余文字
func parseResult(text string) (*model.AnalysisResult, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("模型回复中没有 JSON 对象: %q", abbreviate(text))
	}

	var result model.AnalysisResult
	if err := json.Unmarshal([]byte(text[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("解析模型回复失败: %w", err)
	}
	return &result, nil
}

func abbreviate(s string) string {
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
