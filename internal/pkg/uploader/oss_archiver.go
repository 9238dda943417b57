package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"peb_market/internal/pkg/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// Archiver 以 JSON 对象形式归档数据，返回对象地址
type Archiver interface {
	PutJSON(ctx context.Context, key string, v interface{}) (string, error)
}

type AliyunOSSArchiver struct {
	bucket *oss.Bucket
	config config.OSSConfig
}

func NewAliyunOSSArchiver(cfg config.OSSConfig) (*AliyunOSSArchiver, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, err
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, err
	}

	return &AliyunOSSArchiver{
		bucket: bucket,
		config: cfg,
	}, nil
}

func (a *AliyunOSSArchiver) PutJSON(ctx context.Context, key string, v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", key, err)
	}

	if err := a.bucket.PutObject(key, bytes.NewReader(data),
		oss.ContentType("application/json"),
		oss.WithContext(ctx),
	); err != nil {
		return "", err
	}

	// 报告桶为私有读，这里返回对象地址供对账工具使用
	return fmt.Sprintf("oss://%s/%s", a.config.BucketName, key), nil
}
