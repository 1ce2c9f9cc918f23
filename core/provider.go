// Package core는 AgingCache의 핵심 엔진을 구현합니다.
// 이 파일은 저장소 프로바이더 인터페이스를 정의합니다.
package core

import "context"

// =============================================================================
// StorageProvider: 모든 저장 계층의 공통 인터페이스
// =============================================================================
// StorageProvider는 메모리, Redis, PostgreSQL, SQLite, S3 등을 추상화합니다.
// 계층(Hierarchy)은 이 인터페이스만 통해 저장소에 접근합니다.
// 새로운 저장소를 추가하려면 이 인터페이스를 구현하면 됩니다.
// =============================================================================

// StorageProvider는 하나의 저장 계층 백엔드입니다.
type StorageProvider[K comparable, V any] interface {
	// IsPersistable은 이 저장소가 영속적인지 반환합니다. 인스턴스마다 고정입니다.
	IsPersistable() bool

	// Get은 키의 값을 조회합니다.
	// 키가 없으면 (nil, nil)을 반환합니다.
	Get(ctx context.Context, key K) (*AgedValue[V], error)

	// Set은 값을 저장합니다. true는 쓰기가 받아들여졌다는 뜻입니다.
	Set(ctx context.Context, key K, value AgedValue[V]) (bool, error)

	// Delete는 키를 삭제합니다.
	// 없는 키의 삭제도 받아들여진 것으로 보고 true를 반환해야 합니다.
	Delete(ctx context.Context, key K) (bool, error)

	// Keys는 현재 저장된 모든 키를 반환합니다.
	Keys(ctx context.Context) ([]K, error)

	// Size는 저장된 항목 개수를 반환합니다.
	Size(ctx context.Context) (int, error)
}

// =============================================================================
// SubscribableProvider: 외부 변경 알림을 지원하는 프로바이더 (선택적)
// =============================================================================
// 다른 프로세스가 같은 저장소에 쓴 변경을 관찰할 수 있는 프로바이더용입니다.
// Redis Pub/Sub 등이 해당됩니다.
// =============================================================================

// UpdateHandler는 외부 변경을 받는 핸들러입니다.
// 포인터 리시버 구현을 사용하면 등록/해제 시 동일성 비교가 가능합니다.
type UpdateHandler[K comparable, V any] interface {
	// OnUpdate는 키가 변경되었을 때 호출됩니다. value가 nil이면 삭제입니다.
	OnUpdate(ctx context.Context, key K, value *AgedValue[V])
}

// SubscribableProvider는 변경 구독을 지원하는 프로바이더입니다.
type SubscribableProvider[K comparable, V any] interface {
	StorageProvider[K, V]

	// Subscribe는 핸들러를 등록합니다. 이미 등록된 핸들러면 false입니다.
	Subscribe(handler UpdateHandler[K, V]) bool

	// Unsubscribe는 핸들러를 해제합니다. 등록되지 않은 핸들러면 false입니다.
	Unsubscribe(handler UpdateHandler[K, V]) bool
}

// AsSubscribable은 프로바이더가 구독을 지원하면 그 인터페이스를 반환합니다.
func AsSubscribable[K comparable, V any](p StorageProvider[K, V]) (SubscribableProvider[K, V], bool) {
	s, ok := p.(SubscribableProvider[K, V])
	return s, ok
}

// UpdateHandlerFunc는 함수를 UpdateHandler로 사용하게 해줍니다.
// 함수 값은 비교할 수 없으므로 반드시 포인터(&f)로 등록해야 합니다.
type UpdateHandlerFunc[K comparable, V any] func(ctx context.Context, key K, value *AgedValue[V])

// OnUpdate는 f를 호출합니다.
func (f *UpdateHandlerFunc[K, V]) OnUpdate(ctx context.Context, key K, value *AgedValue[V]) {
	(*f)(ctx, key, value)
}
