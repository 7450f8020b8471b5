package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/RoleBridge/internal/models"
)

// fallbackBody is served when a response cannot be encoded.
const fallbackBody = `{"status":"error","message":"internal server error"}`

// writeJSONResponse encodes body before touching the headers, so an encoding
// failure still yields a well-formed 500.
func writeJSONResponse(w http.ResponseWriter, statusCode int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		data = []byte(fallbackBody)
		statusCode = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(data); err != nil {
		slog.Debug("Server.writeJSONResponse: client went away", "status", statusCode, "error", err)
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, models.Error(message))
}
