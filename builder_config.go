package agingcache

import (
	"fmt"

	"github.com/bridgify/agingcache/adapters/postgres"
	"github.com/bridgify/agingcache/adapters/redis"
	"github.com/bridgify/agingcache/adapters/s3"
	"github.com/bridgify/agingcache/adapters/sqlite"
	"github.com/bridgify/agingcache/compression"
	"github.com/bridgify/agingcache/config"
	"github.com/bridgify/agingcache/serializer"
)

// NewBuilderFromConfig는 설정 파일/환경 변수로 빌더를 구성합니다.
// 계층 0은 항상 메모리이고, 이후 설정된 순서대로 Redis, PostgreSQL, SQLite, S3 계층이 붙습니다.
// 주소나 경로가 비어 있는 계층은 건너뜁니다.
//
// Parameters:
//   - cfg: 로드된 설정
//   - keys: 키 변환 코덱
//   - memorySize: 메모리 계층 최대 크기 (0이면 무제한)
func NewBuilderFromConfig[K comparable, V any](cfg *config.Config, keys serializer.KeyCodec[K], memorySize int) (*Builder[K, V], error) {
	options, err := cfg.CoreOptions()
	if err != nil {
		return nil, err
	}
	hierarchy, err := cfg.HierarchyOptions()
	if err != nil {
		return nil, err
	}
	format, err := serializer.ParseFormat(cfg.Codec.Serializer)
	if err != nil {
		return nil, err
	}
	compressor, err := compression.New(cfg.Codec.Compression)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger()
	b := NewBuilder[K, V](keys).
		WithLogger(logger).
		WithHierarchyOptions(hierarchy).
		WithSerializer(format).
		WithOptions(func(o *Options) { *o = *options })
	if compressor != nil {
		b.WithCompression(compressor, cfg.Codec.Threshold)
	}

	b.AddMemoryLevel(memorySize)

	if cfg.Redis.Addr != "" {
		rc := redis.DefaultConfig()
		rc.Addr = cfg.Redis.Addr
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		rc.KeyPrefix = cfg.Redis.KeyPrefix
		rc.Persistable = cfg.Redis.Persistable
		b.AddRedisLevel(rc, cfg.Redis.PubSub)
	}
	if cfg.Postgres.DSN != "" {
		pc := postgres.DefaultConfig()
		pc.DSN = cfg.Postgres.DSN
		if cfg.Postgres.TableName != "" {
			pc.TableName = cfg.Postgres.TableName
		}
		b.AddPostgresLevel(pc)
	}
	if cfg.SQLite.Path != "" {
		sc := sqlite.DefaultConfig()
		sc.Path = cfg.SQLite.Path
		if cfg.SQLite.Driver != "" {
			sc.Driver = cfg.SQLite.Driver
		}
		b.AddSQLiteLevel(sc)
	}
	if cfg.S3.Bucket != "" {
		s3c := s3.DefaultConfig()
		s3c.Bucket = cfg.S3.Bucket
		s3c.Prefix = cfg.S3.Prefix
		s3c.Region = cfg.S3.Region
		s3c.Endpoint = cfg.S3.Endpoint
		s3c.ForcePathStyle = cfg.S3.ForcePathStyle
		b.AddS3Level(s3c)
	}

	if len(b.levels) < 2 {
		return nil, fmt.Errorf("%w: configure at least one of redis, postgres, sqlite or s3", ErrTooFewLevels)
	}
	return b, nil
}
