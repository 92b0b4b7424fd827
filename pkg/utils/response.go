package utils

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/zhouzirui/anchor-coach/backend/internal/apperr"
)

// ErrorBody 是所有错误响应的统一结构。
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// RespondJSON 写出 JSON 响应，payload 为 nil 时只写状态码。
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[http] encode %T response failed: %v", payload, err)
	}
}

func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorBody{Error: message})
}

// RespondAppError 附带 apperr 分类，未分类的错误不输出 kind。
func RespondAppError(w http.ResponseWriter, status int, err error) {
	body := ErrorBody{Error: err.Error()}
	if kind := apperr.Kind(err); kind != "unknown" {
		body.Kind = kind
	}
	RespondJSON(w, status, body)
}
