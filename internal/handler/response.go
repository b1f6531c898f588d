package handler

import (
	"net/http"
	"time"

	"github.com/werkstatthub/signpad-server-go/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// successEnvelope mirrors the error envelope so clients branch on one shape.
type successEnvelope struct {
	Success   bool  `json:"success"`
	Data      any   `json:"data,omitempty"`
	Timestamp int64 `json:"timestamp"`
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successEnvelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}
