package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
)

// errorResponse is the uniform error body every handler returns on failure.
type errorResponse struct {
	Detail    string `json:"detail"`
	Retriable bool   `json:"retriable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps err's taxonomy Kind to an HTTP status and a safe,
// generic detail message; the underlying error text never reaches the
// response body, per the propagation policy.
func writeError(w http.ResponseWriter, err error) {
	status := docerrors.HTTPStatus(err)
	resp := errorResponse{
		Detail:    publicMessage(docerrors.KindOf(err)),
		Retriable: docerrors.Retriable(err),
	}
	if docerrors.Retriable(err) {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, resp)
}

func publicMessage(kind docerrors.Kind) string {
	if msg, ok := publicMessages[kind]; ok {
		return msg
	}
	return "internal error"
}

var publicMessages = map[docerrors.Kind]string{
	docerrors.Unauthenticated:   "authentication required",
	docerrors.Forbidden:         "account is not permitted to perform this operation",
	docerrors.QuotaExhausted:    "monthly file quota exhausted",
	docerrors.FileTooLarge:      "file exceeds the plan's size limit",
	docerrors.InvalidInput:      "invalid request",
	docerrors.InvalidPageSpec:   "invalid page specification",
	docerrors.PageOutOfRange:    "page out of range",
	docerrors.InvalidAngle:      "angle must be one of 90, 180, 270",
	docerrors.InvalidPassword:   "password does not meet requirements",
	docerrors.NotEncrypted:      "document is not encrypted",
	docerrors.WrongPassword:     "incorrect password",
	docerrors.PathEscape:        "invalid path",
	docerrors.NotFound:          "not found",
	docerrors.ProcessorError:    "processing failed",
	docerrors.SubprocessFailed:  "processing failed",
	docerrors.SubprocessTimeout: "processing timed out",
	docerrors.Busy:              "server is busy, try again shortly",
	docerrors.Internal:          "internal error",
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
