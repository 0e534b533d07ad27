package middleware

import (
	"io"
	"net/http"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("failed decoding body: %v body=%q", err, string(raw))
	}
	return body
}

func assertErrorEnvelope(t *testing.T, resp *http.Response, status int, kind, message string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("expected status %d, got %d", status, resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["success"] != false {
		t.Fatalf("expected success=false, got %v", body["success"])
	}
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error object, got %v", body["error"])
	}
	if errObj["kind"] != kind {
		t.Fatalf("expected kind %q, got %v", kind, errObj["kind"])
	}
	if message != "" && errObj["message"] != message {
		t.Fatalf("expected message %q, got %v", message, errObj["message"])
	}
}
