// Package s3는 S3 호환 객체 저장소 프로바이더를 구현합니다.
// 여러 프로세스가 공유하는 영속 최상위 계층으로 사용됩니다.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/bridgify/agingcache/core"
	"github.com/bridgify/agingcache/serializer"
)

// =============================================================================
// Provider: 객체 저장소 프로바이더
// =============================================================================
// 키마다 객체 하나(Prefix + 인코딩된 키)를 두고, 본문에는 {age, value}
// 봉투를 Codec으로 인코딩해 저장합니다. 기본 Codec은 JSON입니다.
// =============================================================================

// ObjectAPI는 프로바이더가 사용하는 S3 연산입니다. *s3.Client가 구현합니다.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config는 S3 프로바이더 설정입니다.
type Config struct {
	// Bucket은 버킷 이름입니다. 필수입니다.
	Bucket string

	// Prefix는 모든 객체 키 앞에 붙는 접두사입니다.
	Prefix string

	// Region은 AWS 리전입니다.
	Region string

	// Endpoint는 MinIO, LocalStack 같은 호환 저장소 주소입니다.
	Endpoint string

	// ForcePathStyle은 경로 방식 주소를 사용할지 여부입니다.
	ForcePathStyle bool

	// MaxRetries는 최대 재시도 횟수입니다.
	MaxRetries int

	// ContentType은 저장하는 객체의 Content-Type입니다.
	ContentType string

	// Logger는 로거입니다. nil이면 slog.Default()를 사용합니다.
	Logger *slog.Logger
}

// DefaultConfig는 기본 설정을 반환합니다.
func DefaultConfig() *Config {
	return &Config{
		Prefix:      "agingcache/",
		Region:      "us-east-1",
		MaxRetries:  3,
		ContentType: "application/json",
	}
}

// Provider는 S3 저장소 프로바이더입니다. 항상 영속 계층입니다.
type Provider[K comparable, V any] struct {
	config *Config
	client ObjectAPI
	keys   serializer.KeyCodec[K]
	codec  serializer.Codec[core.AgedValue[V]]
	logger *slog.Logger
}

// =============================================================================
// Provider 생성자
// =============================================================================

// New는 기본 AWS 자격 증명 체인으로 클라이언트를 만들어 프로바이더를 생성합니다.
func New[K comparable, V any](ctx context.Context, config *Config, keys serializer.KeyCodec[K], codec serializer.Codec[core.AgedValue[V]]) (*Provider[K, V], error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(config.Region),
		awsconfig.WithRetryMaxAttempts(config.MaxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
		if config.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, config, keys, codec)
}

// NewWithClient는 주어진 ObjectAPI로 프로바이더를 생성합니다.
func NewWithClient[K comparable, V any](client ObjectAPI, config *Config, keys serializer.KeyCodec[K], codec serializer.Codec[core.AgedValue[V]]) (*Provider[K, V], error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}
	if config.ContentType == "" {
		config.ContentType = "application/json"
	}
	if codec == nil {
		codec = serializer.JSON[core.AgedValue[V]]()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider[K, V]{
		config: config,
		client: client,
		keys:   keys,
		codec:  codec,
		logger: logger.With("component", "s3-provider", "bucket", config.Bucket),
	}, nil
}

func (p *Provider[K, V]) objectKey(key K) (string, error) {
	s, err := p.keys.EncodeKey(key)
	if err != nil {
		return "", err
	}
	return p.config.Prefix + s, nil
}

// isNotFound는 객체가 없다는 에러인지 확인합니다.
func isNotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// =============================================================================
// StorageProvider 구현
// =============================================================================

func (p *Provider[K, V]) IsPersistable() bool {
	return true
}

func (p *Provider[K, V]) Get(ctx context.Context, key K) (*core.AgedValue[V], error) {
	objectKey, err := p.objectKey(key)
	if err != nil {
		return nil, err
	}

	result, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.config.Bucket),
		Key:    aws.String(objectKey),
	})
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("s3 get object error: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	value, err := p.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("s3 decode error: %w", err)
	}
	return &value, nil
}

func (p *Provider[K, V]) Set(ctx context.Context, key K, value core.AgedValue[V]) (bool, error) {
	objectKey, err := p.objectKey(key)
	if err != nil {
		return false, err
	}
	data, err := p.codec.Encode(value)
	if err != nil {
		return false, fmt.Errorf("s3 encode error: %w", err)
	}

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.config.Bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(p.config.ContentType),
	})
	if err != nil {
		return false, fmt.Errorf("s3 put object error: %w", err)
	}
	return true, nil
}

// Delete는 객체를 삭제합니다. 없는 키여도 true입니다.
func (p *Provider[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	objectKey, err := p.objectKey(key)
	if err != nil {
		return false, err
	}

	_, err = p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.config.Bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil && !isNotFound(err) {
		return false, fmt.Errorf("s3 delete object error: %w", err)
	}
	return true, nil
}

// Keys는 접두사 아래의 모든 객체를 페이지 단위로 조회합니다.
func (p *Provider[K, V]) Keys(ctx context.Context) ([]K, error) {
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.config.Bucket),
		Prefix: aws.String(p.config.Prefix),
	})

	var keys []K
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list objects error: %w", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), p.config.Prefix)
			key, err := p.keys.DecodeKey(name)
			if err != nil {
				p.logger.Warn("skipping undecodable object", "object", aws.ToString(obj.Key), "error", err)
				continue
			}
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (p *Provider[K, V]) Size(ctx context.Context) (int, error) {
	keys, err := p.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

var _ core.StorageProvider[string, string] = (*Provider[string, string])(nil)
