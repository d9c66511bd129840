/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-10-17 10:35:28
 * @LastEditTime: 2026-10-14 18:40:57
 * @LastEditors: 安知鱼
 */
// anheyu-gallery/cmd/server/app.go
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/anzhiyu-c/anheyu-gallery/internal/app/middleware"
	"github.com/anzhiyu-c/anheyu-gallery/internal/infra/persistence/database"
	"github.com/anzhiyu-c/anheyu-gallery/internal/infra/persistence/sqlstore"
	"github.com/anzhiyu-c/anheyu-gallery/internal/infra/router"
	"github.com/anzhiyu-c/anheyu-gallery/internal/infra/storage"
	"github.com/anzhiyu-c/anheyu-gallery/internal/pkg/event"
	"github.com/anzhiyu-c/anheyu-gallery/internal/pkg/version"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/config"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
	photo_handler "github.com/anzhiyu-c/anheyu-gallery/pkg/handler/photo"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/idgen"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/analysis"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/blob"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/filename"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/metadata"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/transcode"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/upload"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/utility"
)

// shutdownTimeout 是优雅关闭时等待在途请求的最长时间
const shutdownTimeout = 30 * time.Second

// App 结构体，用于封装应用的所有核心组件
type App struct {
	cfg         *config.Config
	engine      *gin.Engine
	server      *http.Server
	sqlDB       *sql.DB
	redisClient *redis.Client
	appVersion  string
	cacheSvc    utility.CacheService
	eventBus    *event.EventBus
	inferrer    analysis.Inferrer
	jwtSecret   []byte
}

func (a *App) PrintBanner() {
	log.Println("--------------------------------------------------------")
	log.Printf(" Anheyu Gallery - Version: %s", version.GetVersionString())
	log.Println("--------------------------------------------------------")
}

// NewApp 是应用的构造函数，它执行所有的初始化和依赖注入工作
func NewApp() (*App, func(), error) {
	appVersion := version.GetVersion()

	// --- Phase 1: 加载外部配置 ---
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}
	debug := cfg.GetBool(config.KeyServerDebug)

	// --- Phase 2: 初始化 ID 编码器与密钥 ---
	if err := idgen.InitSqidsEncoderWithSeed(cfg.GetString(config.KeyIDGenSeed)); err != nil {
		return nil, nil, fmt.Errorf("初始化 ID 编码器失败: %w", err)
	}
	log.Println("✅ ID 编码器初始化成功")

	jwtSecret, err := JWTSecret(cfg)
	if err != nil {
		return nil, nil, err
	}

	// --- Phase 3: 初始化基础设施 ---
	sqlDB, err := database.NewSQLDB(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("创建数据库连接池失败: %w", err)
	}
	dialect := database.DialectOf(cfg)

	// 尝试连接 Redis（如果失败，将自动降级到内存缓存）
	redisClient, err := database.NewRedisClient(context.Background(), cfg)
	if err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("redis 初始化失败: %w", err)
	}

	app := &App{
		cfg:         cfg,
		sqlDB:       sqlDB,
		redisClient: redisClient,
		appVersion:  appVersion,
		jwtSecret:   jwtSecret,
	}
	cleanup := app.cleanup

	if err := database.NewMigrationService(sqlDB, dialect).RunMigrations(context.Background()); err != nil {
		return nil, cleanup, fmt.Errorf("数据库迁移失败: %w", err)
	}
	log.Println("✅ 数据库迁移完成")

	app.cacheSvc = utility.NewCacheServiceWithFallback(redisClient)
	app.eventBus = event.NewEventBus()

	blobStore, err := storage.NewBlobStore(context.Background(), cfg)
	if err != nil {
		return nil, cleanup, fmt.Errorf("初始化存储失败: %w", err)
	}
	log.Printf("✅ 存储驱动初始化成功: %s", cfg.GetString(config.KeyStorageType))

	// --- Phase 4: 初始化数据仓库层 ---
	store := sqlstore.NewStore(sqlDB, dialect, cfg.GetBool(config.KeyDBDebug))
	photoRepo := sqlstore.NewPhotoRepository(store)
	tagRepo := sqlstore.NewTagRepository(store)

	// --- Phase 5: 初始化业务逻辑层 ---
	inferrer, err := analysis.NewInferrerFromConfig(context.Background(), cfg)
	if err != nil {
		return nil, cleanup, fmt.Errorf("初始化图片分析失败: %w", err)
	}
	app.inferrer = inferrer

	var viewPrivilege model.Boolset
	if !cfg.GetBool(config.KeyGalleryPublicView) {
		viewPrivilege = model.NewBoolset(model.PermissionViewPhoto)
	}

	uploadSvc := upload.NewService(upload.Deps{
		Store:      blobStore,
		Resolver:   filename.NewResolver(blobStore),
		Transcoder: transcode.NewTranscoder(transcode.WithPrimaryColor(cfg.GetBool(config.KeyUploadPrimaryColor))),
		Assembler: metadata.NewAssembler(photoRepo, tagRepo, metadata.Thresholds{
			Large: cfg.GetInt64(config.KeyUploadLargeThreshold),
			Small: cfg.GetInt64(config.KeyUploadSmallThreshold),
		}),
		Photos:     photoRepo,
		Dispatcher: analysis.NewDispatcher(inferrer),
		Applier:    analysis.NewApplier(photoRepo, tagRepo),
		Bus:        app.eventBus,
	}, upload.Options{
		MaxFileSize:   cfg.GetInt64(config.KeyUploadMaxFileSize),
		ViewPrivilege: viewPrivilege,
	})
	blobSvc := blob.NewService(photoRepo, blobStore, app.cacheSvc)

	// --- Phase 6: 注册事件监听 ---
	app.eventBus.Subscribe(constant.EventPhotoCreated, blobSvc.PrimeCache)

	// --- Phase 7: 初始化表现层 ---
	var guest model.Boolset
	if cfg.GetBool(config.KeyGalleryPublicView) {
		guest = model.NewBoolset(model.PermissionViewPhoto)
	}
	mw := middleware.NewMiddleware(jwtSecret, guest)
	photoHandler := photo_handler.NewHandler(uploadSvc, blobSvc, debug)
	appRouter := router.NewRouter(photoHandler, mw, cfg.GetInt(config.KeyRateLimitUploadPerMinute))

	// --- Phase 8: 配置 Gin 引擎 ---
	if debug {
		gin.SetMode(gin.DebugMode)
		log.Println("运行模式: Debug (Gin 将打印详细路由日志)")
	} else {
		gin.SetMode(gin.ReleaseMode)
		log.Println("运行模式: Release (Gin 启动日志已禁用)")
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestID())
	if err := engine.SetTrustedProxies([]string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}); err != nil {
		return nil, cleanup, fmt.Errorf("设置信任代理失败: %w", err)
	}
	engine.ForwardedByClientIP = true
	engine.Use(middleware.Cors())
	appRouter.Setup(engine)

	port := cfg.GetString(config.KeyServerPort)
	if port == "" {
		port = "8091"
	}
	app.engine = engine
	app.server = &http.Server{
		Addr:              ":" + port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return app, cleanup, nil
}

// JWTSecret 返回配置的 JWT 密钥，未配置时生成一个随机密钥，重启后已签发的 Token 失效
func JWTSecret(cfg *config.Config) ([]byte, error) {
	if s := cfg.GetString(config.KeyJWTSecret); s != "" {
		return []byte(s), nil
	}
	seed, err := idgen.GenerateRandomSeed()
	if err != nil {
		return nil, fmt.Errorf("生成随机 JWT 密钥失败: %w", err)
	}
	log.Println("⚠️  JWT.Secret 未配置，已生成临时密钥，重启后已签发的 Token 将失效")
	return []byte(seed), nil
}

func (a *App) cleanup() {
	log.Println("执行清理操作：关闭数据库连接...")
	if a.sqlDB != nil {
		a.sqlDB.Close()
	}
	if a.redisClient != nil {
		log.Println("关闭 Redis 连接...")
		a.redisClient.Close()
	}
}

// Engine 返回 gin 引擎
func (a *App) Engine() *gin.Engine {
	return a.engine
}

// Config 返回应用配置
func (a *App) Config() *config.Config {
	return a.cfg
}

// EventBus 返回事件总线，用于发布和订阅事件
func (a *App) EventBus() *event.EventBus {
	return a.eventBus
}

// Version 返回应用的版本号
func (a *App) Version() string {
	return a.appVersion
}

// Run 启动 HTTP 服务并阻塞，直到服务关闭
func (a *App) Run() error {
	log.Printf("应用程序启动成功，正在监听地址: %s", a.server.Addr)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 等待在途请求结束后关闭服务，并停止后台组件
func (a *App) Stop() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			log.Printf("关闭 HTTP 服务失败: %v", err)
		}
	}
	if a.eventBus != nil {
		a.eventBus.Shutdown()
		log.Println("事件总线已停止。")
	}
	if c, ok := a.inferrer.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Printf("关闭推理客户端失败: %v", err)
		}
	}
}
