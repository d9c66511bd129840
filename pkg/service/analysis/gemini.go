/*
 * @Description: 基于 Google Gemini 的图片分析
 * @Author: 安知鱼
 * @Date: 2026-09-09 10:20:41
 * @LastEditTime: 2026-10-14 16:11:37
 * @LastEditors: 安知鱼
 */
package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/filetype"
)

// DefaultGeminiModel 是未配置 AI.Model 时使用的模型
const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiInferrer 调用 Gemini 多模态模型
type GeminiInferrer struct {
	client *genai.Client
	model  string
}

// NewGeminiInferrer 创建 Gemini 客户端，调用方负责在退出时调用 Close
func NewGeminiInferrer(ctx context.Context, apiKey, modelName string) (*GeminiInferrer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("AI.GeminiKey 未配置")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("创建 Gemini 客户端失败: %w", err)
	}
	return &GeminiInferrer{client: client, model: modelName}, nil
}

// Infer 发送图片与提示词，期望模型返回 JSON
func (g *GeminiInferrer) Infer(ctx context.Context, data []byte, dim model.Dimension) (*model.AnalysisResult, error) {
	format, ok := filetype.Detect(data)
	if !ok {
		return nil, fmt.Errorf("%w: 无法识别 %s 图片的格式", constant.ErrFormat, dim)
	}

	m := g.client.GenerativeModel(g.model)
	m.SetTemperature(0.4)
	m.ResponseMIMEType = "application/json"

	resp, err := m.GenerateContent(ctx,
		genai.ImageData(strings.TrimPrefix(format.MIME, "image/"), data),
		genai.Text(analysisPrompt),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: Gemini 生成内容失败: %v", constant.ErrExternal, err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: Gemini 没有返回候选结果", constant.ErrExternal)
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: Gemini 返回了空内容", constant.ErrExternal)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	result, err := parseResult(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constant.ErrExternal, err)
	}
	return result, nil
}

// Close 释放底层连接
func (g *GeminiInferrer) Close() error {
	return g.client.Close()
}
