package utils

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	t.Run("sets content-type and status", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, map[string]string{"key": "value"})

		if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
			t.Errorf("Content-Type = %q; want application/json; charset=utf-8", got)
		}
		if w.Code != http.StatusOK {
			t.Errorf("Code = %d; want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("encodes body as JSON", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusCreated, map[string]float64{"uptime": 42.5})

		var got map[string]float64
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("body is not valid JSON: %v", err)
		}
		if got["uptime"] != 42.5 {
			t.Errorf("body[uptime] = %v; want 42.5", got["uptime"])
		}
	})

	t.Run("unencodable value becomes 500", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, map[string]float64{"rate": math.NaN()})

		if w.Code != http.StatusInternalServerError {
			t.Errorf("Code = %d; want %d", w.Code, http.StatusInternalServerError)
		}
		var got map[string]any
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("body is not valid JSON: %v", err)
		}
		if got["error"] != http.StatusText(http.StatusInternalServerError) {
			t.Errorf("error = %v; want %q", got["error"], http.StatusText(http.StatusInternalServerError))
		}
	})

	t.Run("empty struct encodes as object", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, struct{}{})
		if got := w.Body.String(); got != "{}\n" {
			t.Errorf("body = %q; want {}", got)
		}
	})
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	status := http.StatusBadGateway
	msg := "frame: record section not a multiple of 13 (length 20)"
	WriteError(w, status, msg)

	if w.Code != status {
		t.Errorf("Code = %d; want %d", w.Code, status)
	}
	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if got["error"] != http.StatusText(status) {
		t.Errorf("error = %q; want %q", got["error"], http.StatusText(status))
	}
	if got["message"] != msg {
		t.Errorf("message = %q; want %q", got["message"], msg)
	}
}

func TestWriteHTML(t *testing.T) {
	w := httptest.NewRecorder()
	WriteHTML(w, http.StatusOK, []byte("<p>ok</p>"))

	if got := w.Header().Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if w.Body.String() != "<p>ok</p>" {
		t.Errorf("body = %q", w.Body.String())
	}
}
