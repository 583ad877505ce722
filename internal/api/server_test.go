package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/vorewrite/internal/history"
	"github.com/valpere/vorewrite/internal/llm"
	"github.com/valpere/vorewrite/internal/refine"
	"github.com/valpere/vorewrite/internal/store"
	"github.com/valpere/vorewrite/internal/task"
)

// mapToVO rewrites every map.get("count") the prompt's input holds.
func mapToVO() llm.Service {
	return llm.Func{ServiceName: "fake", Fn: func(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
		last := messages[len(messages)-1].Content
		i := strings.LastIndex(last, "Input: ```java\n")
		if i < 0 {
			return &llm.Response{Text: "* ✅ looks fine"}, nil
		}
		rest := last[i+len("Input: ```java\n"):]
		code := rest[:strings.Index(rest, "\n```")]
		return &llm.Response{Text: strings.ReplaceAll(code, `map.get("count")`, "vo.getCount()") + "\n```"}, nil
	}}
}

func controllerBuilder(svc llm.Service) Builder {
	return func(cfg refine.Config) (FileConverter, error) {
		c, err := refine.New(svc, task.MapToVO, cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

const source = `class Demo {
    int get(Map<String, Object> map) {
        return (int) map.get("count");
    }
}
`

func TestHealth(t *testing.T) {
	s := NewServer(refine.DefaultConfig(), controllerBuilder(mapToVO()), WithVersion("1.2.3"))
	rec := do(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"1.2.3"}`, rec.Body.String())
}

func TestConvert(t *testing.T) {
	db, err := store.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	defer db.Close()

	s := NewServer(refine.DefaultConfig(), controllerBuilder(mapToVO()),
		WithRecorder(db, history.Meta{Task: "map-to-vo", Service: "fake"}))

	want := strings.ReplaceAll(source, `map.get("count")`, "vo.getCount()")
	rec := do(t, s, http.MethodPost, "/api/v1/convert", ConvertRequest{Source: source, GroundTruth: want, Name: "Demo.java"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ConvertResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, want, resp.Result.Converted)
	assert.True(t, resp.Result.Evaluation.ExactMatch)
	require.NotEmpty(t, resp.RunID)

	run, err := db.GetRun(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, "Demo.java", run.SourceName)
	assert.Equal(t, resp.Result.Summary.Total, run.Total)
}

func TestConvert_Overrides(t *testing.T) {
	s := NewServer(refine.DefaultConfig(), controllerBuilder(mapToVO()))

	rec := do(t, s, http.MethodPost, "/api/v1/convert", ConvertRequest{Source: source, Mode: "file", MaxIterations: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ConvertResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, refine.ModeWholeFile, resp.Result.Mode)
	assert.Len(t, resp.Result.Units, 1)
	assert.Empty(t, resp.RunID)

	rec = do(t, s, http.MethodPost, "/api/v1/convert", ConvertRequest{Source: source, Mode: "paragraph"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/convert", ConvertRequest{Source: source, MaxIterations: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/convert", ConvertRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConvert_Errors(t *testing.T) {
	s := NewServer(refine.DefaultConfig(), controllerBuilder(mapToVO()))
	rec := do(t, s, http.MethodPost, "/api/v1/convert", ConvertRequest{Source: "class A {\n    void f( {\n}\n"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	down := llm.Func{Fn: func(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
		return nil, &llm.UnavailableError{Service: "ollama", Err: errors.New("connection refused")}
	}}
	cfg := refine.DefaultConfig()
	cfg.Mode = refine.ModeWholeFile
	s = NewServer(cfg, controllerBuilder(down))
	rec = do(t, s, http.MethodPost, "/api/v1/convert", ConvertRequest{Source: source})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSegment(t *testing.T) {
	s := NewServer(refine.DefaultConfig(), controllerBuilder(mapToVO()))

	rec := do(t, s, http.MethodPost, "/api/v1/segment", SegmentRequest{Source: source})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SegmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Verified)
	var joined strings.Builder
	for _, u := range resp.Units {
		joined.WriteString(u.Content)
	}
	assert.Equal(t, source, joined.String())

	rec = do(t, s, http.MethodPost, "/api/v1/segment", SegmentRequest{Source: "class {"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPatchDiffAndApply(t *testing.T) {
	s := NewServer(refine.DefaultConfig(), controllerBuilder(mapToVO()))

	original := "a\nb\nc\n"
	candidate := "a\nB\nc\n"
	rec := do(t, s, http.MethodPost, "/api/v1/patch/diff", DiffRequest{Original: original, Candidate: candidate, Whole: true})
	require.Equal(t, http.StatusOK, rec.Code)
	var d DiffResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, 1, d.Hunks)

	rec = do(t, s, http.MethodPost, "/api/v1/patch/apply", ApplyRequest{Original: original, Diff: d.Diff})
	require.Equal(t, http.StatusOK, rec.Code)
	var a ApplyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.True(t, a.Applied)
	assert.Equal(t, candidate, a.Result)

	rec = do(t, s, http.MethodPost, "/api/v1/patch/apply", ApplyRequest{Original: original, Diff: "no hunks here"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.False(t, a.Applied)
	assert.Equal(t, original, a.Result)
}
