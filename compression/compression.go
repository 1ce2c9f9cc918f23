// Package compression은 저장 계층에 쓰이는 값을 임계값 이상일 때만 압축합니다.
package compression

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"

	"github.com/bridgify/agingcache/serializer"
)

// =============================================================================
// Algorithm: 페이로드 태그
// =============================================================================
// 인코딩된 값의 첫 바이트는 압축 알고리즘 태그입니다.
// 태그가 페이로드에 실려 있으므로, 같은 계층을 공유하는 노드끼리
// 압축 설정이 달라도 서로의 값을 읽을 수 있습니다.
// =============================================================================

// Algorithm은 페이로드 첫 바이트에 기록되는 압축 알고리즘입니다.
type Algorithm byte

const (
	Raw Algorithm = iota
	Gzip
	S2
	Zstd
)

// DefaultThreshold는 압축을 시작하는 기본 크기(바이트)입니다.
const DefaultThreshold = 1024

func (a Algorithm) String() string {
	switch a {
	case Raw:
		return "none"
	case Gzip:
		return "gzip"
	case S2:
		return "s2"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("algorithm(%d)", byte(a))
	}
}

// ParseAlgorithm은 설정 문자열을 Algorithm으로 바꿉니다. 빈 문자열은 Raw입니다.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "", "none":
		return Raw, nil
	case "gzip":
		return Gzip, nil
	case "s2":
		return S2, nil
	case "zstd":
		return Zstd, nil
	default:
		return Raw, fmt.Errorf("unknown compressor: %s", name)
	}
}

// =============================================================================
// Compressor
// =============================================================================

// Compressor는 압축 결과를 dst 뒤에 이어 붙입니다.
// 해제는 태그만으로 결정되므로 Decompress가 담당합니다.
type Compressor interface {
	Algorithm() Algorithm
	AppendCompressed(dst, src []byte) ([]byte, error)
}

// New는 이름으로 Compressor를 생성합니다. "none"이나 빈 문자열이면 nil입니다.
func New(name string) (Compressor, error) {
	alg, err := ParseAlgorithm(name)
	if err != nil {
		return nil, err
	}
	switch alg {
	case Gzip:
		return NewGzip(gzip.DefaultCompression), nil
	case S2:
		return NewS2(), nil
	case Zstd:
		return NewZstd()
	default:
		return nil, nil
	}
}

type GzipCompressor struct {
	level int
}

func NewGzip(level int) *GzipCompressor {
	return &GzipCompressor{level: level}
}

func (c *GzipCompressor) Algorithm() Algorithm { return Gzip }

func (c *GzipCompressor) AppendCompressed(dst, src []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst)
	w, err := gzip.NewWriterLevel(buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer error: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		w.Close()
		return nil, fmt.Errorf("gzip write error: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close error: %w", err)
	}
	return buf.Bytes(), nil
}

type S2Compressor struct{}

func NewS2() *S2Compressor { return &S2Compressor{} }

func (c *S2Compressor) Algorithm() Algorithm { return S2 }

func (c *S2Compressor) AppendCompressed(dst, src []byte) ([]byte, error) {
	return append(dst, s2.Encode(nil, src)...), nil
}

// ZstdCompressor는 인코더를 재사용합니다. 다 쓰면 Close해야 합니다.
type ZstdCompressor struct {
	encoder *zstd.Encoder
}

func NewZstd() (*ZstdCompressor, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder error: %w", err)
	}
	return &ZstdCompressor{encoder: encoder}, nil
}

func (c *ZstdCompressor) Algorithm() Algorithm { return Zstd }

func (c *ZstdCompressor) AppendCompressed(dst, src []byte) ([]byte, error) {
	return c.encoder.EncodeAll(src, dst), nil
}

func (c *ZstdCompressor) Close() error {
	return c.encoder.Close()
}

// =============================================================================
// Decompress
// =============================================================================

// zstd 디코더는 상태가 없는 DecodeAll만 쓰므로 프로세스 전체에서 하나를 공유합니다.
var zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
	return zstd.NewReader(nil)
})

// Decompress는 태그가 가리키는 알고리즘으로 src를 해제합니다.
func Decompress(alg Algorithm, src []byte) ([]byte, error) {
	switch alg {
	case Raw:
		return src, nil
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("gzip reader error: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("gzip read error: %w", err)
		}
		return out, nil
	case S2:
		out, err := s2.Decode(nil, src)
		if err != nil {
			return nil, fmt.Errorf("s2 decode error: %w", err)
		}
		return out, nil
	case Zstd:
		dec, err := zstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("zstd decoder error: %w", err)
		}
		out, err := dec.DecodeAll(src, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode error: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("compression codec: unknown header %d", byte(alg))
	}
}

// =============================================================================
// Codec: 임계값 이상만 압축하는 값 코덱
// =============================================================================

// Codec은 serializer.Codec을 감싸 큰 값만 압축합니다.
// 디코딩은 설정된 Compressor와 무관하게 태그를 따릅니다.
type Codec[T any] struct {
	inner      serializer.Codec[T]
	compressor Compressor
	threshold  int
}

// NewCodec은 새로운 압축 코덱을 생성합니다. threshold가 0 이하면 DefaultThreshold입니다.
func NewCodec[T any](inner serializer.Codec[T], compressor Compressor, threshold int) *Codec[T] {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Codec[T]{inner: inner, compressor: compressor, threshold: threshold}
}

func (c *Codec[T]) Encode(v T) ([]byte, error) {
	data, err := c.inner.Encode(v)
	if err != nil {
		return nil, err
	}

	if c.compressor == nil || len(data) < c.threshold {
		return append([]byte{byte(Raw)}, data...), nil
	}

	out := make([]byte, 1, 1+len(data)/2)
	out[0] = byte(c.compressor.Algorithm())
	return c.compressor.AppendCompressed(out, data)
}

func (c *Codec[T]) Decode(data []byte) (T, error) {
	var zero T
	if len(data) == 0 {
		return zero, fmt.Errorf("compression codec: empty payload")
	}

	body, err := Decompress(Algorithm(data[0]), data[1:])
	if err != nil {
		return zero, err
	}
	return c.inner.Decode(body)
}

// Name은 "<serializer>+<compressor>" 형식입니다.
func (c *Codec[T]) Name() string {
	if c.compressor == nil {
		return c.inner.Name()
	}
	return c.inner.Name() + "+" + c.compressor.Algorithm().String()
}
