package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/captioner/internal/checkpoint"
	"github.com/samcharles93/captioner/internal/vocab"
)

type testProvider struct {
	ck *checkpoint.Checkpoint
}

func (p testProvider) Get(_ context.Context, name string) (*checkpoint.Checkpoint, error) {
	if name != "" && name != p.ck.Name() {
		return nil, fmt.Errorf("%w: %q", checkpoint.ErrNotFound, name)
	}
	return p.ck, nil
}

func (p testProvider) List() ([]checkpoint.Info, error) {
	return []checkpoint.Info{{Name: p.ck.Name(), Defaults: p.ck.Manifest.Defaults}}, nil
}

func newTestProvider(t *testing.T) testProvider {
	t.Helper()
	v, err := vocab.New([]string{"a", "dog", "cat", "on", "grass"})
	if err != nil {
		t.Fatalf("vocab.New: %v", err)
	}
	ck, err := checkpoint.New("tiny", v, 8, 4, 1)
	if err != nil {
		t.Fatalf("checkpoint.New: %v", err)
	}
	return testProvider{ck: ck}
}

func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()
	service := NewCaptionService(newTestProvider(t))
	server := NewServer(NewCaptionStore(0), service)
	e := echo.New()
	server.Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

type errorEnvelope struct {
	Error ResponseError `json:"error"`
}

const tinyFeatures = `[0.5, -0.25, 1, 0.125]`

func TestCreateGetDeleteCaptionLifecycle(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)
	createRec := doJSON(t, e, http.MethodPost, "/v1/captions",
		`{"image_id":"img-1","features":`+tinyFeatures+`,"beam_size":2,"max_len":4}`)
	if createRec.Code != http.StatusOK {
		t.Fatalf("create status: got %d body=%s", createRec.Code, createRec.Body.String())
	}

	created := decodeBody[CaptionResponse](t, createRec)
	if !strings.HasPrefix(created.ID, "cap_") {
		t.Fatalf("unexpected id %q", created.ID)
	}
	if created.Object != "caption" || created.Model != "tiny" || created.ImageID != "img-1" {
		t.Fatalf("unexpected response header fields: %+v", created)
	}
	if created.Mode != "deterministic" || created.BeamSize != 2 || created.MaxLen != 4 {
		t.Fatalf("unexpected search fields: %+v", created)
	}
	if len(created.Captions) != 2 {
		t.Fatalf("expected 2 captions, got %d", len(created.Captions))
	}
	for i, c := range created.Captions {
		if len(c.Tokens) != 4 {
			t.Fatalf("caption %d: expected 4 tokens, got %v", i, c.Tokens)
		}
		if c.Probability <= 0 || c.Probability > 1 {
			t.Fatalf("caption %d: probability %v out of range", i, c.Probability)
		}
	}
	if created.Captions[0].LogProb < created.Captions[1].LogProb {
		t.Fatalf("captions not ordered best first: %v < %v", created.Captions[0].LogProb, created.Captions[1].LogProb)
	}

	getRec := doJSON(t, e, http.MethodGet, "/v1/captions/"+created.ID, "")
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status: got %d body=%s", getRec.Code, getRec.Body.String())
	}
	got := decodeBody[CaptionResponse](t, getRec)
	if got.ID != created.ID || len(got.Captions) != len(created.Captions) {
		t.Fatalf("stored caption differs: %+v", got)
	}

	delRec := doJSON(t, e, http.MethodDelete, "/v1/captions/"+created.ID, "")
	if delRec.Code != http.StatusOK {
		t.Fatalf("delete status: got %d body=%s", delRec.Code, delRec.Body.String())
	}
	deleted := decodeBody[DeleteCaptionResponse](t, delRec)
	if !deleted.Deleted || deleted.ID != created.ID {
		t.Fatalf("unexpected delete response: %+v", deleted)
	}

	missing := doJSON(t, e, http.MethodGet, "/v1/captions/"+created.ID, "")
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", missing.Code)
	}
}

func TestCreateCaptionUsesCheckpointDefaults(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/captions", `{"features":`+tinyFeatures+`}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[CaptionResponse](t, rec)
	if resp.BeamSize != checkpoint.DefaultSearch.BeamSize || resp.MaxLen != checkpoint.DefaultSearch.MaxLen {
		t.Fatalf("expected checkpoint defaults, got beam=%d len=%d", resp.BeamSize, resp.MaxLen)
	}
}

func TestCreateCaptionSeededSamplingIsReproducible(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)
	body := `{"features":` + tinyFeatures + `,"beam_size":3,"max_len":5,"probabilistic":true,"seed":42,"renormalize":true}`

	first := decodeBody[CaptionResponse](t, doJSON(t, e, http.MethodPost, "/v1/captions", body))
	second := decodeBody[CaptionResponse](t, doJSON(t, e, http.MethodPost, "/v1/captions", body))
	if first.Mode != "probabilistic" {
		t.Fatalf("unexpected mode %q", first.Mode)
	}
	if len(first.Captions) != len(second.Captions) {
		t.Fatalf("caption counts differ: %d vs %d", len(first.Captions), len(second.Captions))
	}
	sum := 0.0
	for i := range first.Captions {
		if first.Captions[i].Text != second.Captions[i].Text {
			t.Fatalf("caption %d differs: %q vs %q", i, first.Captions[i].Text, second.Captions[i].Text)
		}
		sum += first.Captions[i].Probability
	}
	if sum < 0.999999 || sum > 1.000001 {
		t.Fatalf("renormalized probabilities sum to %v", sum)
	}
}

func TestCreateCaptionRejectsBadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "empty body", body: "", want: "empty"},
		{name: "malformed", body: `{"features":`, want: ""},
		{name: "unknown field", body: `{"features":` + tinyFeatures + `,"beams":2}`, want: "beams"},
		{name: "missing features", body: `{"beam_size":2}`, want: "features is required"},
		{name: "zero beam", body: `{"features":` + tinyFeatures + `,"beam_size":0}`, want: "beam_size must be at least 1"},
		{name: "negative length", body: `{"features":` + tinyFeatures + `,"max_len":-1}`, want: "max_len must be at least 0"},
		{name: "negative temperature", body: `{"features":` + tinyFeatures + `,"temperature":-1}`, want: "temperature"},
		{name: "wrong feature size", body: `{"features":[1,2]}`, want: "expected 4 values"},
	}

	e := newTestEcho(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, e, http.MethodPost, "/v1/captions", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
			}
			env := decodeBody[errorEnvelope](t, rec)
			if env.Error.Type != "invalid_request_error" {
				t.Fatalf("unexpected error type %q", env.Error.Type)
			}
			if !strings.Contains(env.Error.Message, tt.want) {
				t.Fatalf("message %q does not mention %q", env.Error.Message, tt.want)
			}
		})
	}
}

func TestCreateCaptionUnknownModel(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/captions", `{"model":"huge","features":`+tinyFeatures+`}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	env := decodeBody[errorEnvelope](t, rec)
	if env.Error.Code != "model_not_found" || env.Error.Param != "model" {
		t.Fatalf("unexpected error: %+v", env.Error)
	}
}

func TestCreateCaptionRejectsModelPaths(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	root := filepath.Join(base, "checkpoints")
	ck := newTestProvider(t).ck
	if err := checkpoint.Save(filepath.Join(root, "tiny"), ck); err != nil {
		t.Fatalf("save tiny: %v", err)
	}
	outside := filepath.Join(base, "elsewhere")
	if err := checkpoint.Save(outside, ck); err != nil {
		t.Fatalf("save elsewhere: %v", err)
	}

	service := NewCaptionService(checkpoint.NewProvider(checkpoint.ProviderConfig{Root: root}))
	e := echo.New()
	NewServer(nil, service).Register(e)

	for _, model := range []string{outside, "../elsewhere", "tiny/../../elsewhere"} {
		body, err := json.Marshal(map[string]any{"model": model, "features": []float32{0.5, -0.25, 1, 0.125}})
		if err != nil {
			t.Fatal(err)
		}
		rec := doJSON(t, e, http.MethodPost, "/v1/captions", string(body))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("model %q: status %d body=%s", model, rec.Code, rec.Body.String())
		}
	}

	rec := doJSON(t, e, http.MethodPost, "/v1/captions", `{"model":"tiny","features":`+tinyFeatures+`}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("model by name: status %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCreateCaptionRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)
	body := `{"features":[` + strings.Repeat("0,", MaxRequestBytes/2) + `0]}`
	rec := doJSON(t, e, http.MethodPost, "/v1/captions", body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status: got %d", rec.Code)
	}
	if env := decodeBody[errorEnvelope](t, rec); env.Error.Code != "request_too_large" {
		t.Fatalf("unexpected error: %+v", env.Error)
	}
}

func TestDeleteUnknownCaption(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodDelete, "/v1/captions/cap_missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestListModels(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodGet, "/v1/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[ModelsResponse](t, rec)
	if resp.Object != "list" || len(resp.Data) != 1 || resp.Data[0].Name != "tiny" {
		t.Fatalf("unexpected models response: %+v", resp)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)
	health := doJSON(t, e, http.MethodGet, "/healthz", "")
	if health.Code != http.StatusOK || !strings.Contains(health.Body.String(), `"status":"ok"`) {
		t.Fatalf("health: got %d body=%s", health.Code, health.Body.String())
	}

	m := doJSON(t, e, http.MethodGet, "/metrics", "")
	if m.Code != http.StatusOK {
		t.Fatalf("metrics status: got %d", m.Code)
	}
	if !strings.Contains(m.Body.String(), "captioner_stored_captions") {
		t.Fatalf("metrics output missing stored captions gauge:\n%s", m.Body.String())
	}
}
