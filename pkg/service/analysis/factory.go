package analysis

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/config"
)

// NewInferrerFromConfig 根据 AI.Provider 创建推理器，未配置时返回 nil 表示关闭分析
func NewInferrerFromConfig(ctx context.Context, cfg *config.Config) (Inferrer, error) {
	modelName := cfg.GetString(config.KeyAIModel)
	switch provider := strings.ToLower(strings.TrimSpace(cfg.GetString(config.KeyAIProvider))); provider {
	case "":
		log.Println("[Analysis] 未配置 AI.Provider，图片分析已关闭")
		return nil, nil
	case "gemini":
		inf, err := NewGeminiInferrer(ctx, cfg.GetString(config.KeyAIGeminiKey), modelName)
		if err != nil {
			return nil, err
		}
		log.Printf("[Analysis] 使用 Gemini 模型 %s", inf.model)
		return inf, nil
	case "ollama":
		inf := NewOllamaInferrer(cfg.GetString(config.KeyAIOllamaURL), modelName)
		log.Printf("[Analysis] 使用 Ollama 模型 %s (%s)", inf.model, inf.baseURL)
		return inf, nil
	default:
		return nil, fmt.Errorf("不支持的 AI.Provider: %s (支持: gemini, ollama)", provider)
	}
}
