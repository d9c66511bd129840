/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-06-28 00:21:55
 * @LastEditTime: 2026-10-14 18:48:30
 * @LastEditors: 安知鱼
 */
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anzhiyu-c/anheyu-gallery/cmd/server"
	"github.com/anzhiyu-c/anheyu-gallery/internal/pkg/auth"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/config"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/idgen"
)

func main() {
	// 解析命令行参数
	var (
		issueToken bool
		userID     uint
		admin      bool
		ttl        time.Duration
	)
	flag.BoolVar(&issueToken, "issue-token", false, "签发一个带上传权限的 Bearer Token 后退出（用于本地测试）")
	flag.UintVar(&userID, "user-id", 1, "Token 中的用户ID")
	flag.BoolVar(&admin, "admin", false, "签发管理员 Token")
	flag.DurationVar(&ttl, "ttl", 24*time.Hour, "Token 有效期")
	flag.Parse()

	if issueToken {
		token, err := issue(userID, admin, ttl)
		if err != nil {
			log.Fatalf("签发 Token 失败: %v", err)
		}
		fmt.Println(token)
		return
	}

	// 调用位于 cmd/server 包中的 NewApp 函数来构建整个应用
	app, cleanup, err := server.NewApp()
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		log.Fatalf("应用初始化失败: %v", err)
	}
	defer cleanup()

	app.PrintBanner()

	errCh := make(chan error, 1)
	go func() { errCh <- app.Run() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			log.Printf("应用运行失败: %v", err)
		}
	case <-quit:
		log.Println("收到退出信号，正在关闭服务...")
	}
	app.Stop()
}

// issue 使用配置中的 JWT.Secret 与 IDGen.Seed 签发 Token
func issue(userID uint, admin bool, ttl time.Duration) (string, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return "", fmt.Errorf("加载配置失败: %w", err)
	}
	secret := cfg.GetString(config.KeyJWTSecret)
	if secret == "" {
		return "", fmt.Errorf("JWT.Secret 未配置，服务端无法校验签发的 Token")
	}
	if err := idgen.InitSqidsEncoderWithSeed(cfg.GetString(config.KeyIDGenSeed)); err != nil {
		return "", err
	}

	perms := model.NewBoolset(model.PermissionViewPhoto, model.PermissionCreatePhoto)
	if admin {
		perms = model.NewBoolset(model.PermissionAdmin)
	}
	return auth.GenerateToken(userID, perms, ttl, []byte(secret))
}
