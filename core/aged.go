// Package core는 AgingCache의 핵심 엔진을 구현합니다.
// 이 파일은 계층에 저장되는 단위 데이터(AgedValue)를 정의합니다.
package core

import "time"

// =============================================================================
// AgedValue: 나이(age)가 붙은 저장 단위
// =============================================================================
// 모든 저장 계층은 값과 함께 age를 저장합니다.
// age는 비교 가능한 순서 키이며, 기본 정책(FIFO)에서는 밀리초 단위 Unix 시간입니다.
// 계층 간 충돌 해결과 퇴거 순서 결정에 모두 age가 사용됩니다.
// =============================================================================

// AgedValue는 age와 값을 함께 담습니다.
type AgedValue[V any] struct {
	// Age는 값의 순서 키입니다. 직접 빼지 말고 CompareFunc로 비교해야 합니다.
	Age int64 `json:"age" msgpack:"age"`

	// Value는 실제 값입니다.
	Value V `json:"value" msgpack:"value"`
}

// NewAgedValue는 새로운 AgedValue를 생성합니다.
func NewAgedValue[V any](age int64, value V) AgedValue[V] {
	return AgedValue[V]{Age: age, Value: value}
}

// Time은 Age를 밀리초 Unix 시간으로 해석한 값을 반환합니다.
// 기본 FIFO 정책이 아닌 경우 의미가 없을 수 있습니다.
func (v AgedValue[V]) Time() time.Time {
	return time.UnixMilli(v.Age)
}

// =============================================================================
// CompareFunc: age 비교 함수
// =============================================================================

// CompareFunc는 두 age의 전순서를 정의합니다.
// 0은 같은 순서, 양수는 a가 b보다 새로움(뒤에 정렬), 음수는 그 반대입니다.
type CompareFunc func(a, b int64) int

// CompareAscending은 기본 비교 함수입니다. 큰 age가 더 새롭습니다.
func CompareAscending(a, b int64) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}
