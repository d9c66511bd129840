package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/config"
)

func TestNewBlobStoreSelectsDriver(t *testing.T) {
	root := t.TempDir()
	store, err := NewBlobStore(context.Background(), config.NewConfigFromMap(map[string]interface{}{
		config.KeyStorageType: "local",
		config.KeyStorageRoot: root,
	}))
	require.NoError(t, err)
	require.IsType(t, &LocalStore{}, store)

	tests := []struct {
		name        string
		storageType string
	}{
		{name: "S3缺少配置", storageType: "s3"},
		{name: "阿里云OSS缺少配置", storageType: "aliyun_oss"},
		{name: "七牛云缺少配置", storageType: "qiniu_kodo"},
		{name: "未知类型", storageType: "ftp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBlobStore(context.Background(), config.NewConfigFromMap(map[string]interface{}{
				config.KeyStorageType: tt.storageType,
			}))
			require.Error(t, err)
		})
	}
}
