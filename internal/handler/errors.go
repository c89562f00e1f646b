package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/feednest/internal/model"
)

// apiErrorResponse はAPIエラーレスポンスの統一フォーマット。
// すべてのエラーは {"error": "<メッセージ>"} の形で返す。
type apiErrorResponse struct {
	Error string `json:"error"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Error: apiErr.Message,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// APIError以外のエラーは詳細を漏らさず500として返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
// 重複購読・重複メールおよびフェッチ/解析失敗はいずれも400として扱う。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeSubscriptionNotFound, model.ErrCodeItemNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeValidation, model.ErrCodeInvalidFilter,
		model.ErrCodeDuplicateSubscription, model.ErrCodeDuplicateEmail,
		model.ErrCodeFetchFailed, model.ErrCodeParseFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
