package attendance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/attendman/internal/model"
	"github.com/hitoshi/attendman/internal/repository"
)

// --- モック定義 ---

type mockEmployeeFinder struct {
	findByIDFn func(ctx context.Context, id int64) (*model.Employee, error)
}

func (m *mockEmployeeFinder) FindByID(ctx context.Context, id int64) (*model.Employee, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

// employeesByID は固定の従業員一覧から検索するEmployeeFinderを返す。
func employeesByID(employees ...*model.Employee) *mockEmployeeFinder {
	return &mockEmployeeFinder{
		findByIDFn: func(_ context.Context, id int64) (*model.Employee, error) {
			for _, e := range employees {
				if e.ID == id {
					return e, nil
				}
			}
			return nil, nil
		},
	}
}

type dayKey struct {
	employeeID int64
	day        string
}

// memStore はAttendanceRepositoryのインメモリ実装。
// InDayは (従業員, 日付) ごとのミューテックスで直列化し、fnがエラーを返した場合は書き込みを破棄する。
type memStore struct {
	mu      sync.Mutex
	locks   map[dayKey]*sync.Mutex
	records map[dayKey]*model.AttendanceRecord
	nextID  int64

	// テストから注入する障害
	findErr      error
	insertErr    error
	signOutErr   error
	beforeInsert func(key dayKey) // Insert直前に呼ばれる（競合のシミュレーション用）
	insertCalls  int
}

func newMemStore() *memStore {
	return &memStore{
		locks:   make(map[dayKey]*sync.Mutex),
		records: make(map[dayKey]*model.AttendanceRecord),
	}
}

func (s *memStore) lockFor(key dayKey) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *memStore) InDay(ctx context.Context, employeeID int64, workDate time.Time, fn func(tx repository.DayTx) error) error {
	key := dayKey{employeeID: employeeID, day: workDate.Format(time.DateOnly)}
	l := s.lockFor(key)
	l.Lock()
	defer l.Unlock()

	tx := &memDayTx{store: s, key: key, workDate: workDate}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.pending != nil {
		s.records[key] = tx.pending
	}
	return nil
}

// get は記録のコピーを返す。
func (s *memStore) get(employeeID int64, day time.Time) *model.AttendanceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[dayKey{employeeID: employeeID, day: day.Format(time.DateOnly)}]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// put はInDayを経由せずに記録を書き込む。
func (s *memStore) put(rec *model.AttendanceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	s.records[dayKey{employeeID: rec.EmployeeID, day: rec.WorkDate.Format(time.DateOnly)}] = rec
}

type memDayTx struct {
	store    *memStore
	key      dayKey
	workDate time.Time
	pending  *model.AttendanceRecord
}

func (tx *memDayTx) current() *model.AttendanceRecord {
	if tx.pending != nil {
		return tx.pending
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	rec, ok := tx.store.records[tx.key]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

func (tx *memDayTx) Find(_ context.Context) (*model.AttendanceRecord, error) {
	if tx.store.findErr != nil {
		return nil, tx.store.findErr
	}
	rec := tx.current()
	if rec == nil {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (tx *memDayTx) Insert(_ context.Context, signIn time.Time) (*model.AttendanceRecord, error) {
	tx.store.mu.Lock()
	tx.store.insertCalls++
	hook := tx.store.beforeInsert
	tx.store.mu.Unlock()

	if hook != nil {
		hook(tx.key)
	}
	if tx.store.insertErr != nil {
		return nil, tx.store.insertErr
	}
	if tx.current() != nil {
		return nil, repository.ErrDuplicateRecord
	}

	tx.store.mu.Lock()
	tx.store.nextID++
	id := tx.store.nextID
	tx.store.mu.Unlock()

	tx.pending = &model.AttendanceRecord{
		ID:         id,
		EmployeeID: tx.key.employeeID,
		WorkDate:   tx.workDate,
		SignIn:     signIn,
	}
	cp := *tx.pending
	return &cp, nil
}

func (tx *memDayTx) SetSignOut(_ context.Context, recordID int64, signOut time.Time) (*model.AttendanceRecord, error) {
	if tx.store.signOutErr != nil {
		return nil, tx.store.signOutErr
	}
	rec := tx.current()
	if rec == nil || rec.ID != recordID || rec.SignOut != nil {
		return nil, repository.ErrNotFound
	}
	if signOut.Before(rec.SignIn) {
		return nil, fmt.Errorf("sign_out before sign_in")
	}
	t := signOut
	rec.SignOut = &t
	tx.pending = rec
	cp := *rec
	return &cp, nil
}

// recordingMetrics は記録された打刻結果を保持するMetricsCollector。
type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *recordingMetrics) RecordScan(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}
func (m *recordingMetrics) RecordScanLatency(time.Duration) {}
func (m *recordingMetrics) RecordLogin(bool)                {}
func (m *recordingMetrics) RecordBadgeFailure()             {}
func (m *recordingMetrics) RecordSessionsCleaned(int64)     {}
func (m *recordingMetrics) RecordHTTPStatus(int)            {}

var (
	_ repository.AttendanceRepository = (*memStore)(nil)
	_ repository.DayTx                = (*memDayTx)(nil)
)
