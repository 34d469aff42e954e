package helpers

import (
	"encoding/json"
	"net/http"

	"github.com/isometry/gh-approval-gate/internal/models"
)

type httpResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// RespondHTTP writes a models.Response to the given http.ResponseWriter as a
// JSON envelope. A zero status code defaults to 200.
func RespondHTTP(response models.Response, err error, rw http.ResponseWriter) {
	hR := httpResponse{
		Message: response.Body,
	}
	if err != nil {
		hR.Error = err.Error()
	}

	respBody, _ := json.Marshal(hR)
	statusCode := response.StatusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	for k, v := range response.Headers {
		rw.Header().Set(k, v)
	}
	rw.WriteHeader(statusCode)
	_, _ = rw.Write(respBody)
}
