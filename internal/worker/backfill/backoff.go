package backfill

import "time"

const (
	// initialBackoff は生成失敗後の初回待機時間。
	initialBackoff = 5 * time.Minute
	// maxBackoff は待機時間の上限。
	maxBackoff = 6 * time.Hour
)

// CalculateBackoff は連続失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回5分、2倍ずつ増加、最大6時間。
func CalculateBackoff(consecutiveFailures int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveFailures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// failureState は従業員ごとのバッジ生成失敗状況。
type failureState struct {
	failures int
	nextTry  time.Time
}

// due はnowの時点で再試行してよいかを返す。
func (s failureState) due(now time.Time) bool {
	return !now.Before(s.nextTry)
}

// next は失敗を1回加算した状態を返す。
func (s failureState) next(now time.Time) failureState {
	return failureState{
		failures: s.failures + 1,
		nextTry:  now.Add(CalculateBackoff(s.failures)),
	}
}
