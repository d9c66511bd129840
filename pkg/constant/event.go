/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-10-09 18:07:37
 * @LastEditTime: 2026-10-14 10:20:11
 * @LastEditors: 安知鱼
 */
package constant

import "github.com/anzhiyu-c/anheyu-gallery/internal/pkg/event"

// EventTopic 事件主题类型
type EventTopic = event.Topic

// 导出事件主题常量，供外部使用
const (
	// EventPhotoCreated 图片入库事件
	EventPhotoCreated EventTopic = event.PhotoCreated
)
