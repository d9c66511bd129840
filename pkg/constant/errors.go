/*
 * @Description: 图片管线的标准错误分类
 * @Author: 安知鱼
 * @Date: 2025-06-27 12:08:15
 * @LastEditTime: 2026-10-14 10:12:30
 * @LastEditors: 安知鱼
 */
package constant

import "errors"

// 定义业务逻辑相关的标准错误
var (
	// ErrValidation 表示上传内容或文件名不合法（空文件、超大文件、非法文件名），可以由 Handler 转换为 400
	ErrValidation = errors.New("参数校验失败")

	// ErrFormat 表示文件头签名与声明的格式不匹配或无法解码，可以由 Handler 转换为 400
	ErrFormat = errors.New("文件格式不正确")

	// ErrIO 表示文件系统的创建、写入或权限错误，可以由 Handler 转换为 500
	ErrIO = errors.New("存储读写失败")

	// ErrNotFound 表示资源未找到，可以由 Handler 转换为 404
	ErrNotFound = errors.New("资源未找到")

	// ErrExternal 表示持久化、标签或推理等外部协作方失败，可以由 Handler 转换为 500
	ErrExternal = errors.New("外部服务调用失败")

	// ErrForbidden 表示无权访问，可以由 Handler 转换为 403
	ErrForbidden = errors.New("操作禁止")

	// ErrUnauthorized 表示未授权，可以由 Handler 转换为 401
	ErrUnauthorized = errors.New("未经授权的访问")

	// ErrLocked 表示存储层拒绝打开文件（权限被锁定），可以由 Handler 转换为 423
	ErrLocked = errors.New("资源已被锁定")

	// ErrBadRequest 表示请求参数错误，可以由 Handler 转换为 400
	ErrBadRequest = errors.New("错误的请求")

	// ErrInvalidPublicID 表示无效的公共ID，可以由 Handler 转换为 400
	ErrInvalidPublicID = errors.New("无效的公共ID")

	// ErrInternalServer 表示服务器内部错误，可以由 Handler 转换为 500
	ErrInternalServer = errors.New("内部服务器错误")
)
