package serializer

import (
	"fmt"
)

// =============================================================================
// Codec: 타입이 정해진 값 코덱
// =============================================================================

// Codec은 T 값을 바이트로 변환합니다.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
	Name() string
}

// serializerCodec은 Serializer로 Codec을 구현합니다.
type serializerCodec[T any] struct {
	s Serializer
}

// NewCodec은 Serializer를 T 전용 Codec으로 감쌉니다.
func NewCodec[T any](s Serializer) Codec[T] {
	if s == nil {
		s = NewJSON()
	}
	return &serializerCodec[T]{s: s}
}

// JSON은 JSON Codec을 반환합니다.
func JSON[T any]() Codec[T] {
	return NewCodec[T](NewJSON())
}

// MsgPack은 MessagePack Codec을 반환합니다.
func MsgPack[T any]() Codec[T] {
	return NewCodec[T](NewMsgPack())
}

// CodecByName은 형식 이름으로 Codec을 생성합니다.
func CodecByName[T any](name string) (Codec[T], error) {
	format, err := ParseFormat(name)
	if err != nil {
		return nil, err
	}
	s, err := New(format)
	if err != nil {
		return nil, err
	}
	return NewCodec[T](s), nil
}

func (c *serializerCodec[T]) Encode(v T) ([]byte, error) {
	return c.s.Serialize(v)
}

func (c *serializerCodec[T]) Decode(data []byte) (T, error) {
	var v T
	if err := c.s.Deserialize(data, &v); err != nil {
		return v, err
	}
	return v, nil
}

func (c *serializerCodec[T]) Name() string {
	return c.s.Name()
}

// =============================================================================
// KeyCodec: 키 ↔ 문자열 변환
// =============================================================================
// Redis 키, SQL 기본 키, S3 객체 이름은 모두 문자열이므로
// 제네릭 키를 문자열로 바꾸고 Keys() 결과를 다시 되돌릴 수 있어야 합니다.
// =============================================================================

// KeyCodec은 키를 문자열로 변환합니다. 변환은 일대일이어야 합니다.
type KeyCodec[K comparable] interface {
	EncodeKey(key K) (string, error)
	DecodeKey(s string) (K, error)
}

// stringKeys는 문자열 계열 키를 그대로 사용합니다.
type stringKeys[K ~string] struct{}

// StringKeys는 문자열 키를 변환 없이 사용하는 KeyCodec을 반환합니다.
func StringKeys[K ~string]() KeyCodec[K] {
	return stringKeys[K]{}
}

func (stringKeys[K]) EncodeKey(key K) (string, error) { return string(key), nil }
func (stringKeys[K]) DecodeKey(s string) (K, error)   { return K(s), nil }

// jsonKeys는 키를 JSON 문자열로 변환합니다.
type jsonKeys[K comparable] struct {
	s Serializer
}

// JSONKeys는 숫자나 구조체 키를 JSON 문자열로 변환하는 KeyCodec을 반환합니다.
func JSONKeys[K comparable]() KeyCodec[K] {
	return jsonKeys[K]{s: NewJSON()}
}

func (c jsonKeys[K]) EncodeKey(key K) (string, error) {
	data, err := c.s.Serialize(key)
	if err != nil {
		return "", fmt.Errorf("encode key error: %w", err)
	}
	return string(data), nil
}

func (c jsonKeys[K]) DecodeKey(s string) (K, error) {
	var key K
	if err := c.s.Deserialize([]byte(s), &key); err != nil {
		return key, fmt.Errorf("decode key error: %w", err)
	}
	return key, nil
}
