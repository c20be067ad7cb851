package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/szaher/arassist/internal/assist"
	"github.com/szaher/arassist/internal/llm"
	"github.com/szaher/arassist/internal/session"
	"github.com/szaher/arassist/internal/speech"
)

const instructionJSON = `{"image_analysis": "PSU bay visible", "instruction": {"steps": ["Locate the cable", "Insert it"], "target_id": "J1", "haptic_cue": "guide_to_target"}}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeJPEG carries a valid JPEG signature; small enough to skip the
// downscale path.
var fakeJPEG = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{0x01}, 64)...)

func newTestServer(t *testing.T, assistClient, followUpClient llm.Client, opts ...ServerOption) *Server {
	t.Helper()
	store := session.NewFileStore(t.TempDir())
	pipeline := assist.NewPipeline(assistClient, store, assist.WithLogger(testLogger()))
	followUp := assist.NewFollowUp(followUpClient, store, assist.WithLogger(testLogger()))
	opts = append([]ServerOption{WithLogger(testLogger())}, opts...)
	return NewServer(pipeline, followUp, opts...)
}

type multipartField struct {
	name, value string
}

func assistForm(t *testing.T, image []byte, fields ...multipartField) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if image != nil {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="snapshot"; filename="snapshot.jpg"`)
		hdr.Set("Content-Type", "image/jpeg")
		part, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(image); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func defaultAssistFields() []multipartField {
	return []multipartField{
		{"task_step", "install_psu"},
		{"current_task", "PSU installation"},
		{"gaze_vector", `{"x": 0.1, "y": -0.2, "z": 0.9}`},
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestAssistSuccess(t *testing.T) {
	mock := llm.NewMockClient(llm.MockResponse{Text: instructionJSON})
	srv := newTestServer(t, mock, llm.NewMockClient())

	buf, contentType := assistForm(t, fakeJPEG, defaultAssistFields()...)
	req := httptest.NewRequest(http.MethodPost, "/v1/assist", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "success" {
		t.Errorf("status = %v, want success", body["status"])
	}
	sessionID, _ := body["session_id"].(string)
	if !strings.HasPrefix(sessionID, "sess_") {
		t.Errorf("session_id = %q, want sess_ prefix", sessionID)
	}
	if got := body["instruction_id"]; got != sessionID+"-install_psu" {
		t.Errorf("instruction_id = %v", got)
	}
	steps, _ := body["instruction_steps"].([]interface{})
	if len(steps) != 2 || steps[0] != "Locate the cable" {
		t.Errorf("instruction_steps = %v", steps)
	}
	if body["target_id"] != "J1" || body["haptic_cue"] != "guide_to_target" {
		t.Errorf("target_id = %v, haptic_cue = %v", body["target_id"], body["haptic_cue"])
	}
}

func TestAssistMissingSnapshot(t *testing.T) {
	mock := llm.NewMockClient(llm.MockResponse{Text: instructionJSON})
	srv := newTestServer(t, mock, llm.NewMockClient())

	buf, contentType := assistForm(t, nil, defaultAssistFields()...)
	req := httptest.NewRequest(http.MethodPost, "/v1/assist", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(mock.Calls()) != 0 {
		t.Error("inference must not run for invalid requests")
	}
}

func TestAssistBadGazeVector(t *testing.T) {
	cases := []struct {
		name string
		gaze string
	}{
		{"missing", ""},
		{"not json", "ahead"},
		{"string components", `{"x": "a", "y": "b", "z": "c"}`},
		{"missing component", `{"x": 0.1, "y": 0.2}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := llm.NewMockClient(llm.MockResponse{Text: instructionJSON})
			srv := newTestServer(t, mock, llm.NewMockClient())

			fields := []multipartField{
				{"task_step", "install_psu"},
				{"current_task", "PSU installation"},
			}
			if tc.gaze != "" {
				fields = append(fields, multipartField{"gaze_vector", tc.gaze})
			}
			buf, contentType := assistForm(t, fakeJPEG, fields...)
			req := httptest.NewRequest(http.MethodPost, "/v1/assist", buf)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
			}
			body := decodeBody(t, rec)
			if body["error"] != "validation_error" {
				t.Errorf("error = %v", body["error"])
			}
		})
	}
}

func TestAssistRejectsWrongImageType(t *testing.T) {
	srv := newTestServer(t, llm.NewMockClient(), llm.NewMockClient())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="snapshot"; filename="clip.gif"`)
	hdr.Set("Content-Type", "image/gif")
	part, _ := mw.CreatePart(hdr)
	_, _ = part.Write([]byte("GIF89a"))
	for _, f := range defaultAssistFields() {
		_ = mw.WriteField(f.name, f.value)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/assist", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAssistDegraded(t *testing.T) {
	mock := llm.NewMockClient(
		llm.MockResponse{Error: io.ErrUnexpectedEOF},
		llm.MockResponse{Error: io.ErrUnexpectedEOF},
	)
	client := llm.WithRetry(mock, llm.RetryPolicy{MaxAttempts: 2, Delay: 0}, testLogger())
	srv := newTestServer(t, client, llm.NewMockClient())

	buf, contentType := assistForm(t, fakeJPEG, defaultAssistFields()...)
	req := httptest.NewRequest(http.MethodPost, "/v1/assist", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
	if body["haptic_cue"] != "none" {
		t.Errorf("haptic_cue = %v, want none", body["haptic_cue"])
	}
}

func TestAskJSON(t *testing.T) {
	assistMock := llm.NewMockClient(llm.MockResponse{Text: instructionJSON})
	followMock := llm.NewMockClient(llm.MockResponse{Text: "1. Check the latch\n2. Push firmly"})
	srv := newTestServer(t, assistMock, followMock)

	// Seed a session through the assist endpoint.
	buf, contentType := assistForm(t, fakeJPEG, defaultAssistFields()...)
	req := httptest.NewRequest(http.MethodPost, "/v1/assist", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	sessionID := decodeBody(t, rec)["session_id"].(string)

	payload, _ := json.Marshal(map[string]string{
		"session_id": sessionID,
		"question":   "It will not click in",
	})
	req = httptest.NewRequest(http.MethodPost, "/v1/ask", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	steps, _ := body["answer_steps"].([]interface{})
	if len(steps) != 2 || steps[0] != "Check the latch" {
		t.Errorf("answer_steps = %v", steps)
	}
	ctxBlock, _ := body["context"].(map[string]interface{})
	if ctxBlock["task"] != "PSU installation" || ctxBlock["step"] != "install_psu" {
		t.Errorf("context = %v", ctxBlock)
	}
	if _, present := body["transcribed_question"]; present {
		t.Error("transcribed_question must be absent for text questions")
	}
}

func TestAskUnknownSession(t *testing.T) {
	srv := newTestServer(t, llm.NewMockClient(), llm.NewMockClient())

	payload := `{"session_id": "sess_missing", "question": "help"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "session_not_found" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestAskVoice(t *testing.T) {
	assistMock := llm.NewMockClient(llm.MockResponse{Text: instructionJSON})
	followMock := llm.NewMockClient(llm.MockResponse{Text: "1. Reseat the cable"})
	transcriber := &speech.MockTranscriber{Text: "why does it not fit"}
	srv := newTestServer(t, assistMock, followMock, WithTranscriber(transcriber))

	buf, contentType := assistForm(t, fakeJPEG, defaultAssistFields()...)
	req := httptest.NewRequest(http.MethodPost, "/v1/assist", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	sessionID := decodeBody(t, rec)["session_id"].(string)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	_ = mw.WriteField("session_id", sessionID)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="audio"; filename="q.wav"`)
	hdr.Set("Content-Type", "audio/wav")
	part, _ := mw.CreatePart(hdr)
	wav := append([]byte("RIFF\x24\x00\x00\x00WAVE"), bytes.Repeat([]byte{0}, 32)...)
	_, _ = part.Write(wav)
	_ = mw.Close()

	req = httptest.NewRequest(http.MethodPost, "/v1/ask", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["transcribed_question"] != "why does it not fit" {
		t.Errorf("transcribed_question = %v", body["transcribed_question"])
	}
	steps, _ := body["answer_steps"].([]interface{})
	if len(steps) != 1 || steps[0] != "Reseat the cable" {
		t.Errorf("answer_steps = %v", steps)
	}
}

func TestAskVoiceWithoutTranscriber(t *testing.T) {
	srv := newTestServer(t, llm.NewMockClient(), llm.NewMockClient())

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	_ = mw.WriteField("session_id", "sess_x")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, llm.NewMockClient(), llm.NewMockClient(), WithAPIKey("secret"))

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200 without auth", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, llm.NewMockClient(), llm.NewMockClient())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "healthy" {
		t.Errorf("status = %v", body["status"])
	}
	if _, ok := body["uptime"].(string); !ok {
		t.Error("uptime missing")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, llm.NewMockClient(), llm.NewMockClient())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSanitizeString(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"trims whitespace", "  hello  ", "hello"},
		{"strips nul bytes", "he\x00llo", "hello"},
		{"caps length", strings.Repeat("a", 300), strings.Repeat("a", 256)},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeString(tc.in); got != tc.want {
				t.Errorf("sanitizeString(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
