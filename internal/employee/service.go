// Package employee は従業員の登録・更新・削除とバッジ画像の管理を提供する。
package employee

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/hitoshi/attendman/internal/auth"
	"github.com/hitoshi/attendman/internal/metrics"
	"github.com/hitoshi/attendman/internal/model"
	"github.com/hitoshi/attendman/internal/repository"
	"github.com/hitoshi/attendman/internal/security"
)

// BadgeRenderer は従業員のQRバッジ画像を生成・削除するインターフェース。
type BadgeRenderer interface {
	Render(employeeID int64) error
	Remove(employeeID int64) error
	Exists(employeeID int64) bool
}

// PhotoStorer は従業員写真を保存・削除するインターフェース。
type PhotoStorer interface {
	Save(originalName string, r io.Reader) (string, error)
	Remove(name string) error
}

// Photo はアップロードされた写真。
type Photo struct {
	Filename string
	Content  io.Reader
}

// CreateResult は従業員登録の結果。
// BadgePendingがtrueの場合、従業員は登録済みだがバッジ画像は未生成。
type CreateResult struct {
	Employee     *model.Employee
	BadgePending bool
}

// Config は従業員サービスの設定。
type Config struct {
	BcryptCost int
}

// Service は従業員管理のサービス層。
type Service struct {
	repo      repository.EmployeeRepository
	badges    BadgeRenderer
	photos    PhotoStorer
	sanitizer security.TextSanitizerService
	metrics   metrics.MetricsCollector
	config    Config
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.EmployeeRepository,
	badges BadgeRenderer,
	photos PhotoStorer,
	sanitizer security.TextSanitizerService,
	mc metrics.MetricsCollector,
	config Config,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		repo:      repo,
		badges:    badges,
		photos:    photos,
		sanitizer: sanitizer,
		metrics:   mc,
		config:    config,
	}
}

// List は従業員一覧を返す。
func (s *Service) List(ctx context.Context) ([]*model.Employee, error) {
	employees, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("従業員一覧の取得に失敗しました: %w", err)
	}
	return employees, nil
}

// Get は指定IDの従業員を返す。存在しない場合はEMPLOYEE_NOT_FOUNDエラーを返す。
func (s *Service) Get(ctx context.Context, id int64) (*model.Employee, error) {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("従業員の取得に失敗しました: %w", err)
	}
	if e == nil {
		return nil, model.NewEmployeeNotFoundError(id)
	}
	return e, nil
}

// Create は従業員を登録し、QRバッジを生成する。
// バッジ生成に失敗しても登録は取り消さず、BadgePendingで呼び出し元に伝える。
func (s *Service) Create(ctx context.Context, in model.EmployeeInput, photo *Photo) (*CreateResult, error) {
	in = s.normalize(in)
	if err := validate(in, true); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password, s.config.BcryptCost)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		return nil, model.NewInvalidEmployeeError(err.Error())
	}
	if err != nil {
		return nil, err
	}

	e := &model.Employee{
		Name:         in.Name,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		City:         in.City,
	}

	if photo != nil {
		name, err := s.photos.Save(photo.Filename, photo.Content)
		if err != nil {
			return nil, err
		}
		e.Photo = name
	}

	if err := s.repo.Create(ctx, e); err != nil {
		s.discardPhoto(e.Photo)
		if errors.Is(err, repository.ErrDuplicateRecord) {
			return nil, model.NewDuplicateUsernameError(in.Username)
		}
		return nil, fmt.Errorf("従業員の登録に失敗しました: %w", err)
	}

	result := &CreateResult{Employee: e}
	if err := s.badges.Render(e.ID); err != nil {
		s.metrics.RecordBadgeFailure()
		slog.Warn("badge generation failed, badge pending",
			slog.Int64("employee_id", e.ID),
			slog.String("error", err.Error()),
		)
		result.BadgePending = true
	}

	slog.Info("employee created",
		slog.Int64("employee_id", e.ID),
		slog.Bool("badge_pending", result.BadgePending),
	)
	return result, nil
}

// Update は従業員情報を更新する。
// パスワードが空の場合は既存のパスワードを維持し、写真が指定された場合は差し替える。
func (s *Service) Update(ctx context.Context, id int64, in model.EmployeeInput, photo *Photo) (*model.Employee, error) {
	in = s.normalize(in)
	if err := validate(in, false); err != nil {
		return nil, err
	}

	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	e.Name = in.Name
	e.Username = in.Username
	e.Email = in.Email
	e.City = in.City
	if in.Password != "" {
		hash, err := auth.HashPassword(in.Password, s.config.BcryptCost)
		if errors.Is(err, auth.ErrPasswordTooShort) {
			return nil, model.NewInvalidEmployeeError(err.Error())
		}
		if err != nil {
			return nil, err
		}
		e.PasswordHash = hash
	}

	oldPhoto := e.Photo
	if photo != nil {
		name, err := s.photos.Save(photo.Filename, photo.Content)
		if err != nil {
			return nil, err
		}
		e.Photo = name
	}

	if err := s.repo.Update(ctx, e); err != nil {
		if e.Photo != oldPhoto {
			s.discardPhoto(e.Photo)
		}
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, model.NewEmployeeNotFoundError(id)
		case errors.Is(err, repository.ErrDuplicateRecord):
			return nil, model.NewDuplicateUsernameError(in.Username)
		}
		return nil, fmt.Errorf("従業員の更新に失敗しました: %w", err)
	}

	if e.Photo != oldPhoto {
		s.discardPhoto(oldPhoto)
	}

	slog.Info("employee updated", slog.Int64("employee_id", id))
	return e, nil
}

// Delete は従業員を削除する。出退勤記録はDB側でCASCADE削除され、
// バッジ画像と写真もファイルシステムから削除する。
func (s *Service) Delete(ctx context.Context, id int64) error {
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewEmployeeNotFoundError(id)
		}
		return fmt.Errorf("従業員の削除に失敗しました: %w", err)
	}

	if err := s.badges.Remove(id); err != nil {
		slog.Warn("failed to remove badge",
			slog.Int64("employee_id", id),
			slog.String("error", err.Error()),
		)
	}
	s.discardPhoto(e.Photo)

	slog.Info("employee deleted", slog.Int64("employee_id", id))
	return nil
}

// RegenerateBadge はQRバッジを生成し直す。
func (s *Service) RegenerateBadge(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.badges.Render(id); err != nil {
		s.metrics.RecordBadgeFailure()
		return fmt.Errorf("バッジの生成に失敗しました: %w", err)
	}
	slog.Info("badge regenerated", slog.Int64("employee_id", id))
	return nil
}

// BadgeReady はバッジ画像が生成済みかどうかを返す。
func (s *Service) BadgeReady(id int64) bool {
	return s.badges.Exists(id)
}

// Count は従業員の総数を返す。
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *Service) normalize(in model.EmployeeInput) model.EmployeeInput {
	return model.EmployeeInput{
		Name:     s.sanitizer.Sanitize(in.Name),
		Username: strings.ToLower(s.sanitizer.Sanitize(in.Username)),
		Email:    strings.TrimSpace(in.Email),
		Password: in.Password,
		City:     s.sanitizer.Sanitize(in.City),
	}
}

func validate(in model.EmployeeInput, creating bool) error {
	if in.Name == "" {
		return model.NewInvalidEmployeeError("name is required")
	}
	if in.Username == "" {
		return model.NewInvalidEmployeeError("username is required")
	}
	if strings.ContainsAny(in.Username, " \t") {
		return model.NewInvalidEmployeeError("username must not contain spaces")
	}
	if in.Email != "" {
		addr, err := mail.ParseAddress(in.Email)
		if err != nil || addr.Address != in.Email {
			return model.NewInvalidEmployeeError("email is not a valid address")
		}
	}
	if creating && in.Password == "" {
		return model.NewInvalidEmployeeError("password is required")
	}
	return nil
}

func (s *Service) discardPhoto(name string) {
	if err := s.photos.Remove(name); err != nil {
		slog.Warn("failed to remove photo",
			slog.String("photo", name),
			slog.String("error", err.Error()),
		)
	}
}
