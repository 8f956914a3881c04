package api

import (
	"encoding/json"
	"net/http"
)

// envelope is the response shape shared by every membership service:
// success -> {status:"success", data}, validation/auth failure ->
// {status:"fail", data:<message>}, server fault ->
// {status:"error", data:"Server Error"}.
type envelope struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
}

func respondJSON(w http.ResponseWriter, code int, payload envelope) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondSuccess(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, envelope{Status: "success", Data: data})
}

func respondFail(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, envelope{Status: "fail", Data: message})
}

func respondServerError(w http.ResponseWriter) {
	respondJSON(w, http.StatusInternalServerError, envelope{Status: "error", Data: "Server Error"})
}
