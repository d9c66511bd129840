/*
 * @Description: 一个带固定Worker池的异步事件总线
 * @Author: 安知鱼
 * @Date: 2025-07-10 19:06:12
 * @LastEditTime: 2026-10-14 10:18:40
 * @LastEditors: 安知鱼
 */
package event

import (
	"log"
	"sync"
)

// 定义事件类型
type Topic string

const (
	// PhotoCreated 在图片及其所有尺寸落盘、入库之后发布
	PhotoCreated Topic = "photo:created"
)

// 事件处理器函数类型
type Handler func(payload interface{})

// Event 是在通道中传递的事件结构
type Event struct {
	Topic   Topic
	Payload interface{}
}

// EventBus 实现了基于Worker池的异步事件总线
type EventBus struct {
	mu        sync.RWMutex
	handlers  map[Topic][]Handler
	eventChan chan Event
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    bool
}

// 定义Worker池和通道的配置
const (
	DefaultWorkerCount = 4
	DefaultChannelSize = 1024
)

// NewEventBus 创建并启动一个新的事件总线
func NewEventBus() *EventBus {
	return NewEventBusWithSize(DefaultWorkerCount, DefaultChannelSize)
}

// NewEventBusWithSize 使用自定义的 Worker 数量和通道容量创建事件总线
func NewEventBusWithSize(workers, channelSize int) *EventBus {
	if workers <= 0 {
		workers = DefaultWorkerCount
	}
	if channelSize <= 0 {
		channelSize = DefaultChannelSize
	}
	bus := &EventBus{
		handlers:  make(map[Topic][]Handler),
		eventChan: make(chan Event, channelSize),
	}
	bus.startWorkers(workers)
	return bus
}

// startWorkers 启动固定数量的后台worker
func (b *EventBus) startWorkers(count int) {
	for i := 0; i < count; i++ {
		b.wg.Add(1)
		go b.worker(i + 1)
	}
}

// worker 是消费者，不断从通道中读取并处理事件
func (b *EventBus) worker(workerID int) {
	defer b.wg.Done()

	for event := range b.eventChan {
		b.mu.RLock()
		handlers := b.handlers[event.Topic]
		b.mu.RUnlock()

		for _, handler := range handlers {
			b.safeInvoke(workerID, event, handler)
		}
	}
}

// safeInvoke 执行处理器，单个处理器 panic 不会拖垮整个 worker
func (b *EventBus) safeInvoke(workerID int, event Event, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[EventBus] Worker %d 处理主题 '%s' 时发生 panic: %v", workerID, event.Topic, r)
		}
	}()
	handler(event.Payload)
}

// Subscribe 订阅一个事件
func (b *EventBus) Subscribe(topic Topic, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
}

// Publish 发布一个事件，非阻塞
func (b *EventBus) Publish(topic Topic, payload interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		log.Printf("[EventBus] WARN: 总线已关闭，丢弃主题 '%s' 的事件", topic)
		return
	}

	select {
	case b.eventChan <- Event{Topic: topic, Payload: payload}:
	default:
		log.Printf("[EventBus] WARN: Event channel is full. Dropping event for topic '%s'.", topic)
	}
}

// Shutdown 优雅地关闭事件总线，等待已入队的事件处理完毕
func (b *EventBus) Shutdown() {
	b.closeOnce.Do(func() {
		log.Println("[EventBus] Shutting down...")
		b.mu.Lock()
		b.closed = true
		close(b.eventChan)
		b.mu.Unlock()
		b.wg.Wait()
		log.Println("[EventBus] All workers have stopped.")
	})
}
