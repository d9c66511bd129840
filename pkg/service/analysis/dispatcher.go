/*
 * @Description: 异步图片分析调度：上传循环中发起推理，批次结束后按调度顺序统一收取
 * @Author: 安知鱼
 * @Date: 2026-09-08 14:05:33
 * @LastEditTime: 2026-10-14 16:02:48
 * @LastEditors: 安知鱼
 */
package analysis

import (
	"context"
	"fmt"
	"log"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
)

// Inferrer 是外部推理服务的抽象
type Inferrer interface {
	Infer(ctx context.Context, data []byte, dim model.Dimension) (*model.AnalysisResult, error)
}

// Handle 是一次已发起、尚未收取的推理
type Handle struct {
	PhotoID   uint
	Dimension model.Dimension

	done   chan struct{}
	result *model.AnalysisResult
	err    error
}

// Outcome 是收取后的推理结果，Err 非空时 Result 为 nil
type Outcome struct {
	PhotoID uint
	Result  *model.AnalysisResult
	Err     error
}

// Dispatcher 调度推理调用。inferrer 为 nil 时不做任何分析。
// 同时在途的推理数量没有上限。
type Dispatcher struct {
	inferrer Inferrer
}

// NewDispatcher 创建调度器
func NewDispatcher(inferrer Inferrer) *Dispatcher {
	return &Dispatcher{inferrer: inferrer}
}

// Enabled 判断是否配置了推理服务
func (d *Dispatcher) Enabled() bool {
	return d != nil && d.inferrer != nil
}

// Schedule 立即返回，推理在后台 goroutine 中进行。未启用时返回 nil。
func (d *Dispatcher) Schedule(ctx context.Context, photoID uint, data []byte, dim model.Dimension) *Handle {
	if !d.Enabled() {
		return nil
	}
	h := &Handle{PhotoID: photoID, Dimension: dim, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				h.err = fmt.Errorf("推理发生 panic: %v", r)
			}
		}()
		h.result, h.err = d.inferrer.Infer(ctx, data, dim)
	}()
	return h
}

// Drain 按调度顺序逐个等待推理完成，每收取一个就调用一次 each（可为 nil）。
// ctx 被取消时放弃剩余的句柄，已收取的结果原样返回。
func (d *Dispatcher) Drain(ctx context.Context, handles []*Handle, each func(Outcome)) []Outcome {
	outcomes := make([]Outcome, 0, len(handles))
	for i, h := range handles {
		if h == nil {
			continue
		}
		select {
		case <-ctx.Done():
			log.Printf("[AnalysisDispatcher] 请求已取消，放弃剩余 %d 个推理结果", len(handles)-i)
			return outcomes
		case <-h.done:
		}

		out := Outcome{PhotoID: h.PhotoID, Result: h.result, Err: h.err}
		if out.Err != nil {
			out.Result = nil
			log.Printf("[AnalysisDispatcher] 图片 %d 的推理失败: %v", h.PhotoID, out.Err)
		}
		outcomes = append(outcomes, out)
		if each != nil {
			each(out)
		}
	}
	return outcomes
}
