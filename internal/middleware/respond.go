package middleware

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Error   errorCode `json:"error"`
}

type errorCode struct {
	Code string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Message: message, Error: errorCode{Code: code}})
}
