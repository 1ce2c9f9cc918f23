package core

import "errors"

var (
	// ErrClosed는 종료된 캐시나 계층에 작업을 요청했을 때 반환됩니다.
	ErrClosed = errors.New("aging cache is closed")

	// ErrInvalidOptions는 잘못된 옵션 조합입니다. 세부 에러가 감싸집니다.
	ErrInvalidOptions = errors.New("invalid aging cache options")

	// ErrTooFewLevels는 계층이 2개 미만일 때 반환됩니다.
	ErrTooFewLevels = errors.New("storage hierarchy needs at least two levels")

	// ErrUnsupportedPolicy는 알 수 없는 정책/모드 값입니다.
	ErrUnsupportedPolicy = errors.New("unsupported policy")

	// ErrCircuitOpen은 서킷이 열려 요청이 즉시 거절되었을 때 반환됩니다.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)
