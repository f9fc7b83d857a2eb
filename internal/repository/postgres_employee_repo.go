package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/attendman/internal/model"
)

// PostgresEmployeeRepo はPostgreSQLを使用した従業員リポジトリ。
type PostgresEmployeeRepo struct {
	db *sql.DB
}

// NewPostgresEmployeeRepo はPostgresEmployeeRepoを生成する。
func NewPostgresEmployeeRepo(db *sql.DB) *PostgresEmployeeRepo {
	return &PostgresEmployeeRepo{db: db}
}

const employeeColumns = `id, name, username, email, password_hash, city, photo, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row rowScanner) (*model.Employee, error) {
	e := &model.Employee{}
	err := row.Scan(&e.ID, &e.Name, &e.Username, &e.Email, &e.PasswordHash,
		&e.City, &e.Photo, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// FindByID は指定IDの従業員を取得する。見つからない場合はnilを返す。
func (r *PostgresEmployeeRepo) FindByID(ctx context.Context, id int64) (*model.Employee, error) {
	e, err := scanEmployee(r.db.QueryRowContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find employee by ID: %w", err)
	}
	return e, nil
}

// List は従業員一覧をID昇順で返す。
func (r *PostgresEmployeeRepo) List(ctx context.Context) ([]*model.Employee, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+employeeColumns+` FROM employees ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var employees []*model.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate employees: %w", err)
	}
	return employees, nil
}

// Count は従業員の総数を返す。
func (r *PostgresEmployeeRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM employees`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count employees: %w", err)
	}
	return count, nil
}

// Create は従業員を作成し、採番されたIDとタイムスタンプを設定する。
func (r *PostgresEmployeeRepo) Create(ctx context.Context, employee *model.Employee) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO employees (name, username, email, password_hash, city, photo)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		employee.Name, employee.Username, employee.Email, employee.PasswordHash,
		employee.City, employee.Photo,
	).Scan(&employee.ID, &employee.CreatedAt, &employee.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateRecord
	}
	if err != nil {
		return fmt.Errorf("failed to insert employee: %w", err)
	}
	return nil
}

// Update は従業員情報を更新する。
func (r *PostgresEmployeeRepo) Update(ctx context.Context, employee *model.Employee) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE employees
		 SET name = $2, username = $3, email = $4, password_hash = $5,
		     city = $6, photo = $7, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		employee.ID, employee.Name, employee.Username, employee.Email,
		employee.PasswordHash, employee.City, employee.Photo,
	).Scan(&employee.UpdatedAt)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if isUniqueViolation(err) {
		return ErrDuplicateRecord
	}
	if err != nil {
		return fmt.Errorf("failed to update employee: %w", err)
	}
	return nil
}

// Delete は従業員を削除する。出退勤記録はCASCADE削除される。
func (r *PostgresEmployeeRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM employees WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete employee: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ EmployeeRepository = (*PostgresEmployeeRepo)(nil)
