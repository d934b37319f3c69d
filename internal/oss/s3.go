package oss

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nox-wallpaper/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store S3 兼容的媒体存储
type S3Store struct {
	client       *s3.Client
	presign      *s3.PresignClient
	httpClient   *http.Client
	endpoint     string
	region       string
	bucket       string
	signedURLTTL time.Duration
}

// S3Config S3 存储配置
type S3Config struct {
	Endpoint  string // 服务端点，例如：s3.amazonaws.com 或 oss-cn-hangzhou.aliyuncs.com
	Region    string // 区域，例如：us-east-1 或 cn-hangzhou
	AccessKey string
	SecretKey string
	Bucket    string
	// 大于 0 时 Put 返回带签名的 GET URL，否则返回对象的公开 URL
	SignedURLTTL time.Duration
}

// NewS3Store 创建新的 S3 存储
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("OSS bucket is required")
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// 自定义端点用于兼容其他 OSS 服务
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s", cfg.Endpoint))
		}
	})

	return &S3Store{
		client:       client,
		presign:      s3.NewPresignClient(client),
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		endpoint:     cfg.Endpoint,
		region:       cfg.Region,
		bucket:       cfg.Bucket,
		signedURLTTL: cfg.SignedURLTTL,
	}, nil
}

// Put 实现 MediaStore
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	common.WithFields(map[string]interface{}{
		"bucket":       s.bucket,
		"key":          key,
		"content_type": contentType,
		"size":         len(data),
	}).Debug("Starting media upload to OSS")

	var err error
	// 阿里云 OSS 不支持 SDK PutObject 使用的 aws-chunked 编码，改用预签名 PUT 上传
	if strings.Contains(s.endpoint, ".aliyuncs.com") {
		err = s.putPresigned(ctx, key, data, contentType)
	} else {
		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
	}
	if err != nil {
		common.WithError(err).WithFields(map[string]interface{}{
			"bucket": s.bucket,
			"key":    key,
		}).Error("Failed to upload media to OSS")
		return "", fmt.Errorf("failed to upload media: %w", err)
	}

	common.WithFields(map[string]interface{}{
		"bucket": s.bucket,
		"key":    key,
	}).Info("Media uploaded to OSS successfully")

	if s.signedURLTTL > 0 {
		return s.GetSignedURL(ctx, key, s.signedURLTTL)
	}
	return s.buildObjectURL(key), nil
}

// putPresigned 使用预签名 PUT URL + 原生 HTTP 客户端上传
func (s *S3Store) putPresigned(ctx context.Context, key string, data []byte, contentType string) error {
	presigned, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to presign PUT URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, presigned.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	for k, v := range presigned.SignedHeader {
		for _, hv := range v {
			req.Header.Add(k, hv)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload via presigned PUT: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("OSS upload failed: status code %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// GetSignedURL 获取对象的带签名 GET URL
func (s *S3Store) GetSignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	request, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		common.WithError(err).WithFields(map[string]interface{}{
			"bucket": s.bucket,
			"key":    key,
		}).Error("Failed to generate signed URL")
		return "", fmt.Errorf("failed to presign URL: %w", err)
	}
	return request.URL, nil
}

// buildObjectURL 构造对象的公开 URL（不带签名）
func (s *S3Store) buildObjectURL(key string) string {
	if s.endpoint != "" {
		return fmt.Sprintf("https://%s.%s/%s", s.bucket, s.endpoint, key)
	}
	if s.region != "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
}
