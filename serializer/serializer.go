// Package serializer는 저장 계층에 쓰이는 값과 키의 직렬화를 구현합니다.
// 네트워크/영속 프로바이더(redis, postgres, sqlite, s3)는 모두 이 패키지의
// Codec과 KeyCodec으로 바이트와 문자열을 만듭니다.
package serializer

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// =============================================================================
// Format: 직렬화 형식
// =============================================================================

// Format은 직렬화 형식 이름입니다.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgPack Format = "msgpack"
	FormatGob     Format = "gob"
	FormatRaw     Format = "raw"
)

// ParseFormat은 문자열을 Format으로 변환합니다. 빈 문자열은 json입니다.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, "":
		return FormatJSON, nil
	case FormatMsgPack, FormatGob, FormatRaw:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown serializer: %s", s)
	}
}

// =============================================================================
// Serializer Interface
// =============================================================================

// Serializer는 타입에 무관한 바이트 직렬화 인터페이스입니다.
// 타입이 정해진 값에는 NewCodec으로 감싼 Codec[T]를 사용합니다.
type Serializer interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, v any) error
	Name() string
}

// formatSerializer는 marshal/unmarshal 함수 쌍으로 Serializer를 구현합니다.
type formatSerializer struct {
	format    Format
	marshal   func(v any) ([]byte, error)
	unmarshal func(data []byte, v any) error
}

func (s *formatSerializer) Serialize(v any) ([]byte, error) {
	data, err := s.marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s serialize error: %w", s.format, err)
	}
	return data, nil
}

func (s *formatSerializer) Deserialize(data []byte, v any) error {
	if err := s.unmarshal(data, v); err != nil {
		return fmt.Errorf("%s deserialize error: %w", s.format, err)
	}
	return nil
}

func (s *formatSerializer) Name() string {
	return string(s.format)
}

// =============================================================================
// 형식별 Serializer
// =============================================================================

// NewJSON은 JSON Serializer를 반환합니다. S3 봉투 형식의 기본값입니다.
func NewJSON() Serializer {
	return &formatSerializer{format: FormatJSON, marshal: json.Marshal, unmarshal: json.Unmarshal}
}

// NewMsgPack은 MessagePack Serializer를 반환합니다. Redis 값에 권장됩니다.
func NewMsgPack() Serializer {
	return &formatSerializer{format: FormatMsgPack, marshal: msgpack.Marshal, unmarshal: msgpack.Unmarshal}
}

// NewGob은 gob Serializer를 반환합니다. Go 프로세스 사이에서만 읽을 수 있습니다.
func NewGob() Serializer {
	return &formatSerializer{
		format: FormatGob,
		marshal: func(v any) ([]byte, error) {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
		unmarshal: func(data []byte, v any) error {
			return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
		},
	}
}

// NewRaw는 []byte와 string만 그대로 통과시키는 Serializer를 반환합니다.
// AgedValue 봉투는 표현할 수 없으므로 SQL 값 컬럼처럼 age가 따로 저장되는 곳에 씁니다.
func NewRaw() Serializer {
	return &formatSerializer{
		format: FormatRaw,
		marshal: func(v any) ([]byte, error) {
			switch val := v.(type) {
			case []byte:
				return val, nil
			case string:
				return []byte(val), nil
			default:
				return nil, fmt.Errorf("only []byte or string supported, got %T", v)
			}
		},
		unmarshal: func(data []byte, v any) error {
			switch ptr := v.(type) {
			case *[]byte:
				*ptr = append([]byte(nil), data...)
				return nil
			case *string:
				*ptr = string(data)
				return nil
			default:
				return fmt.Errorf("only *[]byte or *string supported, got %T", v)
			}
		},
	}
}

// =============================================================================
// Factory
// =============================================================================

// New는 형식으로 Serializer를 생성합니다.
func New(format Format) (Serializer, error) {
	switch format {
	case FormatJSON, "":
		return NewJSON(), nil
	case FormatMsgPack:
		return NewMsgPack(), nil
	case FormatGob:
		return NewGob(), nil
	case FormatRaw:
		return NewRaw(), nil
	default:
		return nil, fmt.Errorf("unknown serializer: %s", format)
	}
}
