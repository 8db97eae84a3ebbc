package apperror

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func doRequest(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	e := echo.New()
	e.HTTPErrorHandler = HTTPErrorHandler(newTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	e.HTTPErrorHandler(err, c)

	var body map[string]any
	if decodeErr := json.Unmarshal(rec.Body.Bytes(), &body); decodeErr != nil {
		t.Fatalf("response is not JSON: %v", decodeErr)
	}
	return rec, body
}

func errorObj(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	obj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("response missing error envelope: %v", body)
	}
	return obj
}

func TestHTTPErrorHandler_AppError(t *testing.T) {
	rec, body := doRequest(t, ErrSubmissionNotFound)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	obj := errorObj(t, body)
	if obj["code"] != "submission_not_found" {
		t.Errorf("code = %v", obj["code"])
	}
	if obj["message"] != "Submission not found" {
		t.Errorf("message = %v", obj["message"])
	}
}

func TestHTTPErrorHandler_AppErrorWithDetails(t *testing.T) {
	rec, body := doRequest(t, ErrValidation.WithDetails(map[string]any{"field": "to"}))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", rec.Code)
	}
	obj := errorObj(t, body)
	details, ok := obj["details"].(map[string]any)
	if !ok || details["field"] != "to" {
		t.Errorf("details = %v", obj["details"])
	}
}

func TestHTTPErrorHandler_EchoHTTPError(t *testing.T) {
	rec, body := doRequest(t, echo.NewHTTPError(http.StatusBadRequest, "bad input"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	obj := errorObj(t, body)
	if obj["code"] != "bad_request" {
		t.Errorf("code = %v", obj["code"])
	}
	if obj["message"] != "bad input" {
		t.Errorf("message = %v", obj["message"])
	}
}

func TestHTTPErrorHandler_UnknownError(t *testing.T) {
	rec, body := doRequest(t, errors.New("something leaked"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	obj := errorObj(t, body)
	if obj["code"] != "internal_error" {
		t.Errorf("code = %v", obj["code"])
	}
	// internal detail must not leak
	if obj["message"] != "An internal error occurred" {
		t.Errorf("message = %v", obj["message"])
	}
}

func TestHTTPErrorHandler_StructuredEchoError(t *testing.T) {
	rec, body := doRequest(t, ErrConflict.ToEchoError())

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	obj := errorObj(t, body)
	if obj["code"] != "conflict" {
		t.Errorf("code = %v", obj["code"])
	}
}
