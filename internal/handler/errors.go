package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/attendman/internal/attendance"
	"github.com/hitoshi/attendman/internal/middleware"
	"github.com/hitoshi/attendman/internal/model"
)

// handleServiceError はサービス層から返されたエラーをJSONエラーレスポンスに変換する。
// 打刻のストレージ障害は内部詳細を隠した再試行メッセージとして返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var storageErr *attendance.StorageError
	if errors.As(err, &storageErr) {
		slog.Error("attendance storage failure",
			slog.String("op", storageErr.Op),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewStorageUnavailableError())
		return
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// asAPIError はフォーム画面に表示できる入力エラーを取り出す。
// 入力エラー以外（ストレージ障害など）の場合はfalseを返す。
func asAPIError(err error) (*model.APIError, bool) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return nil, false
	}
	return apiErr, true
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeEmployeeNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidScan, model.ErrCodeInvalidEmployee,
		model.ErrCodeInvalidPhoto, model.ErrCodeInvalidDate:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials, model.ErrCodeUserNotFound:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeDuplicateUsername:
		return http.StatusConflict
	case model.ErrCodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
