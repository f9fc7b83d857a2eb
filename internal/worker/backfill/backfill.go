// Package backfill は生成待ちのQRバッジを補完するバックグラウンドジョブを提供する。
// 従業員登録時にバッジ生成が失敗した場合、従業員は登録済みのまま画像だけが欠ける。
// このジョブは画像のない従業員を定期的に探し、並列数を制限しながら生成し直す。
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/attendman/internal/metrics"
	"github.com/hitoshi/attendman/internal/model"
)

// DefaultInterval はジョブの既定の実行間隔。
const DefaultInterval = 10 * time.Minute

// defaultMaxConcurrency は同時に生成するバッジ数の既定値。
const defaultMaxConcurrency = 4

// EmployeeLister は従業員一覧を取得するインターフェース。
type EmployeeLister interface {
	List(ctx context.Context) ([]*model.Employee, error)
}

// BadgeRenderer はバッジ画像の存在確認と生成を行うインターフェース。
type BadgeRenderer interface {
	Exists(employeeID int64) bool
	Render(employeeID int64) error
}

// Job は生成待ちバッジの補完ジョブ。
// 失敗した従業員は指数バックオフで再試行間隔を空ける。
type Job struct {
	employees      EmployeeLister
	badges         BadgeRenderer
	logger         *slog.Logger
	metrics        metrics.MetricsCollector
	maxConcurrency int
	now            func() time.Time

	mu       sync.Mutex
	failures map[int64]failureState
}

// NewJob はJobを生成する。maxConcurrencyが0以下の場合は既定値4を使う。
func NewJob(
	employees EmployeeLister,
	badges BadgeRenderer,
	logger *slog.Logger,
	mc metrics.MetricsCollector,
	maxConcurrency int,
) *Job {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	return &Job{
		employees:      employees,
		badges:         badges,
		logger:         logger,
		metrics:        mc,
		maxConcurrency: maxConcurrency,
		now:            time.Now,
		failures:       make(map[int64]failureState),
	}
}

// Start は起動直後に1回、その後interval毎にRunOnceを実行する。
// コンテキストがキャンセルされるまでブロックする。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("バッジ補完ジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", j.maxConcurrency),
	)

	j.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("バッジ補完ジョブを停止しました")
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *Job) runLogged(ctx context.Context) {
	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error("バッジ補完サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce はバッジのない従業員を1回走査して生成し、生成できた件数を返す。
// 個々の生成失敗はバックオフに記録し、エラーとしては返さない。
func (j *Job) RunOnce(ctx context.Context) (int, error) {
	start := j.now()

	employees, err := j.employees.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list employees: %w", err)
	}

	pending := j.pending(employees, start)
	if len(pending) == 0 {
		return 0, nil
	}

	j.logger.Info("バッジ補完サイクルを開始します",
		slog.Int("pending_count", len(pending)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, j.maxConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	rendered := 0

	for _, id := range pending {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(id int64) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := j.badges.Render(id); err != nil {
				j.recordFailure(id)
				j.metrics.RecordBadgeFailure()
				j.logger.Warn("バッジの生成に失敗しました",
					slog.Int64("employee_id", id),
					slog.String("error", err.Error()),
				)
				return
			}
			j.clearFailure(id)
			mu.Lock()
			rendered++
			mu.Unlock()
		}(id)
	}

	wg.Wait()

	j.logger.Info("バッジ補完サイクルが完了しました",
		slog.Int("pending_count", len(pending)),
		slog.Int("rendered_count", rendered),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return rendered, nil
}

// pending は画像がなく、バックオフ期間を過ぎた従業員のIDを返す。
// 削除済みの従業員の失敗記録はここで捨てる。
func (j *Job) pending(employees []*model.Employee, now time.Time) []int64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	seen := make(map[int64]bool, len(employees))
	var ids []int64
	for _, e := range employees {
		seen[e.ID] = true
		if j.badges.Exists(e.ID) {
			delete(j.failures, e.ID)
			continue
		}
		if st, ok := j.failures[e.ID]; ok && !st.due(now) {
			continue
		}
		ids = append(ids, e.ID)
	}
	for id := range j.failures {
		if !seen[id] {
			delete(j.failures, id)
		}
	}
	return ids
}

func (j *Job) recordFailure(id int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failures[id] = j.failures[id].next(j.now())
}

func (j *Job) clearFailure(id int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.failures, id)
}
