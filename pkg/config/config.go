/*
 * @Description: 统一配置管理 (手动加载 ini + 环境变量覆盖)
 * @Author: 安知鱼
 * @Date: 2025-06-28 00:21:55
 * @LastEditTime: 2026-10-14 11:35:52
 * @LastEditors: 安知鱼
 */
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-ini/ini"
	"github.com/spf13/viper"
)

// DefaultFilePath 是默认的配置文件位置
const DefaultFilePath = "data/conf.ini"

// 定义所有已知的配置键
var allKeys = []string{
	KeyServerPort, KeyServerDebug,
	KeyDBType, KeyDBHost, KeyDBPort, KeyDBUser, KeyDBPassword, KeyDBName, KeyDBDebug,
	KeyRedisAddr, KeyRedisPassword, KeyRedisDB,
	KeyStorageType, KeyStorageRoot,
	KeyS3Bucket, KeyS3Region, KeyS3Endpoint, KeyS3AccessKey, KeyS3SecretKey, KeyS3Prefix,
	KeyOSSBucket, KeyOSSEndpoint, KeyOSSAccessKey, KeyOSSSecretKey, KeyOSSPrefix,
	KeyKodoBucket, KeyKodoDomain, KeyKodoRegion, KeyKodoAccessKey, KeyKodoSecretKey, KeyKodoPrefix,
	KeyUploadMaxFileSize, KeyUploadLargeThreshold, KeyUploadSmallThreshold, KeyUploadPrimaryColor,
	KeyAIProvider, KeyAIModel, KeyAIGeminiKey, KeyAIOllamaURL,
	KeyJWTSecret, KeyIDGenSeed, KeyGalleryPublicView, KeyRateLimitUploadPerMinute,
}

const (
	KeyServerPort    = "System.Port"
	KeyServerDebug   = "System.Debug"
	KeyDBType        = "Database.Type"
	KeyDBHost        = "Database.Host"
	KeyDBPort        = "Database.Port"
	KeyDBUser        = "Database.User"
	KeyDBPassword    = "Database.Password"
	KeyDBName        = "Database.Name"
	KeyDBDebug       = "Database.Debug"
	KeyRedisAddr     = "Redis.Addr"
	KeyRedisPassword = "Redis.Password"
	KeyRedisDB       = "Redis.DB"

	KeyStorageType = "Storage.Type"
	KeyStorageRoot = "Storage.Root"

	KeyS3Bucket    = "S3.Bucket"
	KeyS3Region    = "S3.Region"
	KeyS3Endpoint  = "S3.Endpoint"
	KeyS3AccessKey = "S3.AccessKey"
	KeyS3SecretKey = "S3.SecretKey"
	KeyS3Prefix    = "S3.Prefix"

	KeyOSSBucket    = "OSS.Bucket"
	KeyOSSEndpoint  = "OSS.Endpoint"
	KeyOSSAccessKey = "OSS.AccessKey"
	KeyOSSSecretKey = "OSS.SecretKey"
	KeyOSSPrefix    = "OSS.Prefix"

	KeyKodoBucket    = "Kodo.Bucket"
	KeyKodoDomain    = "Kodo.Domain"
	KeyKodoRegion    = "Kodo.Region"
	KeyKodoAccessKey = "Kodo.AccessKey"
	KeyKodoSecretKey = "Kodo.SecretKey"
	KeyKodoPrefix    = "Kodo.Prefix"

	KeyUploadMaxFileSize    = "Upload.MaxFileSize"
	KeyUploadLargeThreshold = "Upload.LargeThreshold"
	KeyUploadSmallThreshold = "Upload.SmallThreshold"
	KeyUploadPrimaryColor   = "Upload.PrimaryColor"

	KeyAIProvider  = "AI.Provider"
	KeyAIModel     = "AI.Model"
	KeyAIGeminiKey = "AI.GeminiKey"
	KeyAIOllamaURL = "AI.OllamaURL"

	KeyJWTSecret                = "JWT.Secret"
	KeyIDGenSeed                = "IDGen.Seed"
	KeyGalleryPublicView        = "Gallery.PublicView"
	KeyRateLimitUploadPerMinute = "RateLimit.UploadPerMinute"
)

// 内部默认值，在 ini 与环境变量都未提供时生效
var defaults = map[string]interface{}{
	KeyServerPort:               8091,
	KeyServerDebug:              false,
	KeyDBType:                   "sqlite",
	KeyDBName:                   "anheyu_gallery.db",
	KeyStorageType:              "local",
	KeyStorageRoot:              "data/photos",
	KeyKodoRegion:               "z0",
	KeyUploadMaxFileSize:        50 << 20,
	KeyUploadLargeThreshold:     5 << 20,
	KeyUploadSmallThreshold:     1 << 20,
	KeyUploadPrimaryColor:       true,
	KeyAIOllamaURL:              "http://localhost:11434",
	KeyGalleryPublicView:        true,
	KeyRateLimitUploadPerMinute: 30,
}

type Config struct {
	vp *viper.Viper
}

// NewConfig 从默认路径加载配置
func NewConfig() (*Config, error) {
	return NewConfigFromFile(DefaultFilePath)
}

// NewConfigFromFile 手动加载配置，确保可靠性
func NewConfigFromFile(filePath string) (*Config, error) {
	vp := viper.New()
	for k, v := range defaults {
		vp.SetDefault(k, v)
	}

	// --- 步骤 1: 使用 go-ini 从文件加载配置 ---
	iniCfg, err := ini.Load(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("提示: 未找到 %s，将创建默认配置文件。", filePath)
			if err := createDefaultConfigFile(filePath); err != nil {
				log.Printf("警告: 创建默认配置文件失败: %v，将仅依赖环境变量或内部默认值。", err)
			} else {
				log.Printf("✅ 已创建默认配置文件: %s", filePath)
				iniCfg, err = ini.Load(filePath)
				if err != nil {
					log.Printf("警告: 重新加载配置文件失败: %v", err)
				}
			}
		} else {
			return nil, fmt.Errorf("错误: 解析配置文件 '%s' 失败: %w", filePath, err)
		}
	}

	if iniCfg != nil {
		for _, section := range iniCfg.Sections() {
			for _, key := range section.Keys() {
				viperKey := fmt.Sprintf("%s.%s", section.Name(), key.Name())
				if section.Name() == ini.DefaultSection {
					viperKey = key.Name()
				}
				// 空值不覆盖内部默认值
				if strings.TrimSpace(key.Value()) == "" {
					continue
				}
				vp.Set(viperKey, key.Value())
			}
		}
		log.Printf("从 %s 文件加载了配置。", filePath)
	}

	// --- 步骤 2: 手动检查并覆盖环境变量 ---
	applyEnvOverrides(vp)

	log.Println("✅ 配置加载器初始化完成。")
	return &Config{vp: vp}, nil
}

// applyEnvOverrides 使用 ANHEYU_<SECTION>_<KEY> 形式的环境变量覆盖配置
func applyEnvOverrides(vp *viper.Viper) {
	envReplacer := strings.NewReplacer(".", "_")
	envPrefix := "ANHEYU"

	for _, key := range allKeys {
		envVarName := fmt.Sprintf("%s_%s", envPrefix, envReplacer.Replace(strings.ToUpper(key)))
		if value, found := os.LookupEnv(envVarName); found {
			vp.Set(key, value)
			log.Printf("发现环境变量: %s, 已覆盖配置 '%s'。", envVarName, key)
		}
	}
}

// NewConfigFromMap 直接从键值对构建配置，主要用于测试
func NewConfigFromMap(values map[string]interface{}) *Config {
	vp := viper.New()
	for k, v := range defaults {
		vp.SetDefault(k, v)
	}
	for k, v := range values {
		vp.Set(k, v)
	}
	return &Config{vp: vp}
}

func (c *Config) GetString(key string) string {
	return c.vp.GetString(key)
}

func (c *Config) GetInt(key string) int {
	return c.vp.GetInt(key)
}

func (c *Config) GetInt64(key string) int64 {
	return c.vp.GetInt64(key)
}

func (c *Config) GetBool(key string) bool {
	return c.vp.GetBool(key)
}

// createDefaultConfigFile 创建默认的配置文件
func createDefaultConfigFile(filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	defaultConfig := `[System]
Port = 8091
Debug = false

[Database]
Type = sqlite
Name = anheyu_gallery.db
Debug = false

# Redis 配置（可选）
# 如果不配置或留空 Addr，系统将自动使用内存缓存
[Redis]
Addr =
Password =
DB = 0

# 存储配置，Type 可选 local / s3 / aliyun_oss / qiniu_kodo
[Storage]
Type = local
Root = data/photos

[S3]
Bucket =
Region =
Endpoint =
AccessKey =
SecretKey =
Prefix =

# 阿里云 OSS，Endpoint 形如 https://oss-cn-shanghai.aliyuncs.com
[OSS]
Bucket =
Endpoint =
AccessKey =
SecretKey =
Prefix =

# 七牛云 Kodo，Domain 为空间绑定的访问域名，Region 可选 z0 / z1 / z2 / na0 / as0
[Kodo]
Bucket =
Domain =
Region = z0
AccessKey =
SecretKey =
Prefix =

# 上传配置（单位：字节）
[Upload]
MaxFileSize = 52428800
LargeThreshold = 5242880
SmallThreshold = 1048576
PrimaryColor = true

# AI 分析（可选），Provider 可选 gemini / ollama，留空则关闭
[AI]
Provider =
Model =
GeminiKey =
OllamaURL = http://localhost:11434

[JWT]
Secret =

[IDGen]
Seed =

[Gallery]
PublicView = true

[RateLimit]
UploadPerMinute = 30
`

	if err := os.WriteFile(filePath, []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}

	return nil
}
