/*
 * @Description: 基于本地 Ollama 多模态模型的图片分析
 * @Author: 安知鱼
 * @Date: 2026-09-09 11:02:16
 * @LastEditTime: 2026-10-14 16:14:05
 * @LastEditors: 安知鱼
 */
package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
)

// DefaultOllamaModel 是未配置 AI.Model 时使用的模型
const DefaultOllamaModel = "llava"

// OllamaInferrer 调用 Ollama 的 /api/generate 接口
type OllamaInferrer struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaInferrer 创建 Ollama 推理器
func NewOllamaInferrer(baseURL, modelName string) *OllamaInferrer {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = DefaultOllamaModel
	}
	return &OllamaInferrer{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// Infer 以 base64 附带图片调用模型
func (o *OllamaInferrer) Infer(ctx context.Context, data []byte, dim model.Dimension) (*model.AnalysisResult, error) {
	requestBody, err := json.Marshal(map[string]interface{}{
		"model":  o.model,
		"prompt": analysisPrompt,
		"images": []string{base64.StdEncoding.EncodeToString(data)},
		"format": "json",
		"stream": false,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化 Ollama 请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("创建 Ollama 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: 请求 Ollama 失败: %v", constant.ErrExternal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: Ollama 返回状态码 %d: %s", constant.ErrExternal, resp.StatusCode, string(body))
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%w: 解析 Ollama 响应失败: %v", constant.ErrExternal, err)
	}

	result, err := parseResult(response.Response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constant.ErrExternal, err)
	}
	return result, nil
}
