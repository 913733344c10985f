package http

import (
	"encoding/json"
	"net/http"
)

// SuccessEnvelope embala toda resposta 2xx: data preenchido, error nulo.
type SuccessEnvelope struct {
	Data  any `json:"data"`
	Error any `json:"error"`
}

// ErrorEnvelope embala falhas mantendo o mesmo contorno do envelope de sucesso.
type ErrorEnvelope struct {
	Data  any        `json:"data"`
	Error *ErrorBody `json:"error"`
}

// ErrorBody carrega o código estável consumido pelo front
// (VALIDATION, AUTH, FORBIDDEN, NOT_FOUND, CONFLICT, RATE_LIMIT, INTERNAL).
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON serializa o envelope de sucesso com o status informado.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessEnvelope{Data: data, Error: nil})
}

// WriteError serializa o envelope de erro. details é opcional e aparece
// apenas quando há contexto extra (campos inválidos, por exemplo).
func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorEnvelope{
		Data:  nil,
		Error: &ErrorBody{Code: code, Message: message, Details: details},
	})
}
