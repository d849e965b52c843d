package pool

import "errors"

var (
	// ErrUnsupportedType is returned by Builder.Build for a pool type other
	// than TypeName.
	ErrUnsupportedType = errors.New("unsupported data source type")

	// ErrInvalidConfig is returned by Init when the sizing settings
	// contradict each other.
	ErrInvalidConfig = errors.New("invalid data source config")

	// ErrGetConnectionTimeout is returned when no connection became
	// available within maxWait.
	ErrGetConnectionTimeout = errors.New("get connection timeout")

	// ErrMaxWaitThreadCount is returned when the pool is exhausted and the
	// number of waiting callers already reached maxWaitThreadCount.
	ErrMaxWaitThreadCount = errors.New("max wait thread count reached")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("data source closed")

	// ErrWallViolation is returned by the wall filter for a rejected statement.
	ErrWallViolation = errors.New("sql rejected by wall filter")

	// ErrResetDisabled is returned by ResetStat when resetStatEnable is false.
	ErrResetDisabled = errors.New("reset stat disabled")

	// ErrClearFiltersDisabled is returned by ClearFilters when
	// clearFiltersEnable is false.
	ErrClearFiltersDisabled = errors.New("clear filters disabled")
)
