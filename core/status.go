// Package core는 AgingCache의 핵심 엔진을 구현합니다.
// 이 파일은 쓰기 결과 분류를 정의합니다.
package core

// =============================================================================
// WriteStatus: 계층 전체 쓰기 결과
// =============================================================================
// 모든 쓰기 전략은 이 분류로 결과를 보고합니다.
// set/delete는 부분 실패에도 에러를 반환하지 않고 상태만 돌려줍니다.
// =============================================================================

// WriteStatus는 계층에 걸친 쓰기의 결과입니다.
type WriteStatus int

const (
	// Success는 필요한 모든 계층에 쓰기가 완료되었음을 뜻합니다.
	Success WriteStatus = iota

	// Refreshed는 상위 계층 값이 우선하여 하위 계층으로 전파되었음을 뜻합니다.
	// 호출자의 값은 쓰이지 않았습니다.
	Refreshed

	// RefreshedError는 상위 값 전파를 시도했지만 실패했음을 뜻합니다.
	RefreshedError

	// PartialWrite는 일부 계층만 쓰였음을 뜻합니다.
	PartialWrite

	// UnspecifiedError는 순회 방향의 첫 계층부터 실패했음을 뜻합니다.
	UnspecifiedError
)

// String은 WriteStatus의 문자열 표현을 반환합니다.
func (s WriteStatus) String() string {
	switch s {
	case Success:
		return "success"
	case Refreshed:
		return "refreshed"
	case RefreshedError:
		return "refreshed-error"
	case PartialWrite:
		return "partial-write"
	case UnspecifiedError:
		return "unspecified-error"
	default:
		return "unknown"
	}
}

// IsSuccess는 Success 또는 Refreshed이면 true입니다.
func (s WriteStatus) IsSuccess() bool {
	return s == Success || s == Refreshed
}

// WriteResult는 계층 쓰기/삭제 한 번의 결과입니다.
type WriteResult[V any] struct {
	// IsPersisted는 영속 최상위 계층까지 쓰였는지 여부입니다.
	IsPersisted bool

	// IsPublished는 구독 가능한 계층에 쓰여 다른 노드에 알려졌는지 여부입니다.
	IsPublished bool

	// WrittenLevels는 실제로 쓰인 계층 수입니다.
	WrittenLevels int

	// WrittenValue는 쓰인 값입니다. 삭제면 nil입니다.
	WrittenValue *AgedValue[V]
}

// Classify는 쓰인 계층 수를 기대 계층 수와 비교해 상태를 정합니다.
// 같으면 Success, 0이면 UnspecifiedError, 그 사이면 PartialWrite입니다.
func (r WriteResult[V]) Classify(expected int) WriteStatus {
	return ClassifyWrite(r.WrittenLevels, expected)
}

// ClassifyWrite는 Classify의 함수 버전입니다.
func ClassifyWrite(written, expected int) WriteStatus {
	switch {
	case written >= expected:
		return Success
	case written == 0:
		return UnspecifiedError
	default:
		return PartialWrite
	}
}
