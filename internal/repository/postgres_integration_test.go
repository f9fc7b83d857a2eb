package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/attendman/internal/database"
	"github.com/hitoshi/attendman/internal/model"
)

// setupIntegrationDB はマイグレーション済みの空のデータベースを返す。
// TEST_DATABASE_URL が未設定、または接続できない場合はスキップする。
func setupIntegrationDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}

	db, err := database.Open(dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	if _, err := db.Exec(`TRUNCATE attendance, employees, sessions, users RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("テーブルの初期化に失敗: %v", err)
	}
	return db
}

func createTestEmployee(t *testing.T, repo *PostgresEmployeeRepo, username string) *model.Employee {
	t.Helper()
	e := &model.Employee{Name: "Ava " + username, Username: username}
	if err := repo.Create(context.Background(), e); err != nil {
		t.Fatalf("従業員の作成に失敗: %v", err)
	}
	return e
}

func TestIntegration_EmployeeRepo_CRUD(t *testing.T) {
	db := setupIntegrationDB(t)
	repo := NewPostgresEmployeeRepo(db)
	ctx := context.Background()

	e := createTestEmployee(t, repo, "ava")
	if e.ID == 0 {
		t.Fatal("expected store-assigned ID")
	}

	t.Run("ユーザー名の重複はErrDuplicateRecord", func(t *testing.T) {
		err := repo.Create(ctx, &model.Employee{Name: "Other", Username: "ava"})
		if !errors.Is(err, ErrDuplicateRecord) {
			t.Errorf("err = %v, want ErrDuplicateRecord", err)
		}
	})

	t.Run("更新", func(t *testing.T) {
		e.City = "Osaka"
		if err := repo.Update(ctx, e); err != nil {
			t.Fatalf("Update: %v", err)
		}
		got, err := repo.FindByID(ctx, e.ID)
		if err != nil || got == nil {
			t.Fatalf("FindByID: %v, %v", got, err)
		}
		if got.City != "Osaka" {
			t.Errorf("City = %q, want %q", got.City, "Osaka")
		}
	})

	t.Run("存在しないIDはnil", func(t *testing.T) {
		got, err := repo.FindByID(ctx, e.ID+1000)
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("削除", func(t *testing.T) {
		if err := repo.Delete(ctx, e.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := repo.Delete(ctx, e.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("second Delete err = %v, want ErrNotFound", err)
		}
		count, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if count != 0 {
			t.Errorf("Count = %d, want 0", count)
		}
	})
}

func TestIntegration_AttendanceRepo_DayLifecycle(t *testing.T) {
	db := setupIntegrationDB(t)
	employees := NewPostgresEmployeeRepo(db)
	repo := NewPostgresAttendanceRepo(db)
	ctx := context.Background()

	e := createTestEmployee(t, employees, "ava")
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	signIn := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	signOut := time.Date(2026, 10, 19, 17, 30, 0, 0, time.UTC)

	var created *model.AttendanceRecord
	err := repo.InDay(ctx, e.ID, day, func(tx DayTx) error {
		rec, err := tx.Find(ctx)
		if err != nil {
			return err
		}
		if rec != nil {
			t.Fatalf("expected no record, got %+v", rec)
		}
		created, err = tx.Insert(ctx, signIn)
		return err
	})
	if err != nil {
		t.Fatalf("InDay(insert): %v", err)
	}
	if !created.SignIn.Equal(signIn) || created.SignOut != nil {
		t.Fatalf("unexpected created record: %+v", created)
	}

	err = repo.InDay(ctx, e.ID, day, func(tx DayTx) error {
		rec, err := tx.Find(ctx)
		if err != nil {
			return err
		}
		if rec == nil || rec.ID != created.ID {
			t.Fatalf("expected record %d, got %+v", created.ID, rec)
		}
		closed, err := tx.SetSignOut(ctx, rec.ID, signOut)
		if err != nil {
			return err
		}
		if closed.SignOut == nil || !closed.SignOut.Equal(signOut) {
			t.Errorf("SignOut = %v, want %v", closed.SignOut, signOut)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InDay(sign-out): %v", err)
	}

	t.Run("退勤済みの記録は再更新できない", func(t *testing.T) {
		err := repo.InDay(ctx, e.ID, day, func(tx DayTx) error {
			_, err := tx.SetSignOut(ctx, created.ID, signOut.Add(time.Hour))
			return err
		})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("同日の2件目はErrDuplicateRecord", func(t *testing.T) {
		err := repo.InDay(ctx, e.ID, day, func(tx DayTx) error {
			_, err := tx.Insert(ctx, signIn)
			return err
		})
		if !errors.Is(err, ErrDuplicateRecord) {
			t.Errorf("err = %v, want ErrDuplicateRecord", err)
		}
	})

	t.Run("fnのエラーでロールバックされる", func(t *testing.T) {
		nextDay := day.AddDate(0, 0, 1)
		sentinel := errors.New("abort")
		err := repo.InDay(ctx, e.ID, nextDay, func(tx DayTx) error {
			if _, err := tx.Insert(ctx, signIn.AddDate(0, 0, 1)); err != nil {
				return err
			}
			return sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Fatalf("err = %v, want sentinel", err)
		}
		var count int
		if err := db.QueryRow(`SELECT count(*) FROM attendance WHERE work_date = $1`, nextDay.Format(dateLayout)).Scan(&count); err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != 0 {
			t.Errorf("rows after rollback = %d, want 0", count)
		}
	})
}

// 同一 (従業員, 日付) への同時トランザクションがロックで直列化されることを検証
func TestIntegration_AttendanceRepo_ConcurrentInDaySerializes(t *testing.T) {
	db := setupIntegrationDB(t)
	employees := NewPostgresEmployeeRepo(db)
	repo := NewPostgresAttendanceRepo(db)
	ctx := context.Background()

	e := createTestEmployee(t, employees, "ava")
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	const workers = 5
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
		errs     []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.InDay(ctx, e.ID, day, func(tx DayTx) error {
				rec, err := tx.Find(ctx)
				if err != nil {
					return err
				}
				if rec != nil {
					return nil
				}
				if _, err := tx.Insert(ctx, now); err != nil {
					return err
				}
				mu.Lock()
				inserted++
				mu.Unlock()
				return nil
			})
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if inserted != 1 {
		t.Errorf("inserted = %d, want 1", inserted)
	}
}

func TestIntegration_ReportRepo(t *testing.T) {
	db := setupIntegrationDB(t)
	employees := NewPostgresEmployeeRepo(db)
	attendance := NewPostgresAttendanceRepo(db)
	reports := NewPostgresReportRepo(db)
	ctx := context.Background()

	ava := createTestEmployee(t, employees, "ava")
	ben := createTestEmployee(t, employees, "ben")

	day1 := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	insert := func(id int64, day time.Time) {
		t.Helper()
		err := attendance.InDay(ctx, id, day, func(tx DayTx) error {
			_, err := tx.Insert(ctx, day.Add(9*time.Hour))
			return err
		})
		if err != nil {
			t.Fatalf("insert attendance: %v", err)
		}
	}
	insert(ava.ID, day1)
	insert(ava.ID, day2)
	insert(ben.ID, day2)

	present, err := reports.CountPresent(ctx, day2)
	if err != nil {
		t.Fatalf("CountPresent: %v", err)
	}
	if present != 2 {
		t.Errorf("present = %d, want 2", present)
	}

	rows, err := reports.ListRows(ctx)
	if err != nil {
		t.Fatalf("ListRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	if rows[0].WorkDate.Before(rows[2].WorkDate) {
		t.Errorf("rows not ordered by date desc: %v ... %v", rows[0].WorkDate, rows[2].WorkDate)
	}

	counts, err := reports.DailyCounts(ctx, 10)
	if err != nil {
		t.Fatalf("DailyCounts: %v", err)
	}
	if len(counts) != 2 || counts[0].Count != 1 || counts[1].Count != 2 {
		t.Errorf("counts = %+v, want [1, 2] ascending", counts)
	}
}

func TestIntegration_SessionRepo(t *testing.T) {
	db := setupIntegrationDB(t)
	users := NewPostgresUserRepo(db)
	sessions := NewPostgresSessionRepo(db)
	ctx := context.Background()

	now := time.Now()
	user := &model.User{
		ID:           uuid.NewString(),
		Username:     "admin",
		PasswordHash: "hash",
		Role:         model.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, user); err != nil {
		t.Fatalf("Create user: %v", err)
	}
	if err := users.Create(ctx, user); !errors.Is(err, ErrDuplicateRecord) {
		t.Errorf("duplicate Create err = %v, want ErrDuplicateRecord", err)
	}

	active := &model.Session{ID: "active", UserID: user.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	expired := &model.Session{ID: "expired", UserID: user.ID, ExpiresAt: now.Add(-time.Hour), CreatedAt: now}
	for _, s := range []*model.Session{active, expired} {
		if err := sessions.Create(ctx, s); err != nil {
			t.Fatalf("Create session: %v", err)
		}
	}

	got, err := sessions.FindByID(ctx, "active")
	if err != nil || got == nil {
		t.Fatalf("FindByID(active) = %v, %v", got, err)
	}
	if got.Role != model.RoleAdmin {
		t.Errorf("Role = %q, want %q", got.Role, model.RoleAdmin)
	}

	if got, _ := sessions.FindByID(ctx, "expired"); got != nil {
		t.Errorf("expired session should not be returned")
	}

	n, err := sessions.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	byName, err := users.FindByUsername(ctx, "admin")
	if err != nil || byName == nil || byName.ID != user.ID {
		t.Errorf("FindByUsername = %+v, %v", byName, err)
	}
}
