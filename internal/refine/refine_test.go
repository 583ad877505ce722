package refine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/vorewrite/internal/evaluator"
	"github.com/valpere/vorewrite/internal/llm"
	"github.com/valpere/vorewrite/internal/segmenter"
	"github.com/valpere/vorewrite/internal/task"
	"github.com/valpere/vorewrite/internal/validator"
)

const inputMarker = "Input: ```java\n"

// scripted answers generation prompts with reply(input) and critique prompts
// with a fixed checklist.
type scripted struct {
	mu      sync.Mutex
	prompts []string
	opts    []llm.Options
	reply   func(input string) (string, error)
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Generate(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	last := messages[len(messages)-1].Content

	s.mu.Lock()
	s.prompts = append(s.prompts, last)
	s.opts = append(s.opts, opts)
	s.mu.Unlock()

	i := strings.LastIndex(last, inputMarker)
	if i < 0 {
		return &llm.Response{Text: "* ❌ map access remains"}, nil
	}
	rest := last[i+len(inputMarker):]
	input := rest[:strings.Index(rest, "\n```")]

	text, err := s.reply(input)
	if err != nil {
		return nil, err
	}
	return &llm.Response{Text: text + "\n```"}, nil
}

func (s *scripted) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func constant(text string) func(string) (string, error) {
	return func(string) (string, error) { return text, nil }
}

func echo(input string) (string, error) { return input, nil }

func toVO(input string) (string, error) {
	return strings.ReplaceAll(input, `map.get("count")`, "vo.getCount()"), nil
}

func newController(t *testing.T, svc llm.Service, cfg Config, opts ...Option) *Controller {
	t.Helper()
	c, err := New(svc, task.MapToVO, cfg, opts...)
	require.NoError(t, err)
	return c
}

func TestConvert_ConvergesOnFirstIteration(t *testing.T) {
	svc := &scripted{reply: constant("vo.getName()")}
	c := newController(t, svc, DefaultConfig())

	r, err := c.Convert(context.Background(), `map.get("NAME")`, "vo.getName()", "")
	require.NoError(t, err)

	assert.True(t, r.IsCorrect)
	assert.Equal(t, 1, r.Iterations)
	assert.Equal(t, "vo.getName()", r.Converted)
	assert.Equal(t, 1, svc.calls())
	assert.True(t, r.Evaluation.ExactMatch)
	assert.Contains(t, r.Patch, "+vo.getName()")
	assert.True(t, strings.HasSuffix(svc.prompts[0], "Output: ```java"))
}

func TestConvert_BoundedIterations(t *testing.T) {
	tests := []struct {
		name        string
		iterations  int
		useFeedback bool
		wantCalls   int
	}{
		{"single shot", 1, true, 1},
		{"reflexion", 3, true, 5},
		{"reflexion without critique", 3, false, 3},
		{"five rounds", 5, true, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &scripted{reply: constant("wrong()")}
			cfg := DefaultConfig()
			cfg.MaxIterations = tt.iterations
			cfg.UseFeedback = tt.useFeedback
			c := newController(t, svc, cfg)

			r, err := c.Convert(context.Background(), `map.get("NAME")`, "vo.getName()", "")
			require.NoError(t, err)
			assert.False(t, r.IsCorrect)
			assert.Equal(t, tt.iterations, r.Iterations)
			assert.Equal(t, tt.wantCalls, svc.calls())
			assert.Equal(t, "wrong()", r.Converted)
		})
	}
}

func TestConvert_CorrectionCarriesFeedbackAndDiff(t *testing.T) {
	svc := &scripted{reply: constant("wrong()")}
	cfg := DefaultConfig()
	cfg.MaxIterations = 2
	cfg.UseDiffContext = true
	c := newController(t, svc, cfg, WithBaseContext("class UserVO {}"))

	_, err := c.Convert(context.Background(), `map.get("NAME")`, "vo.getName()", "")
	require.NoError(t, err)
	require.Len(t, svc.prompts, 3)

	critique := svc.prompts[1]
	assert.Contains(t, critique, "<candidate>\nwrong()\n</candidate>")
	assert.Contains(t, critique, "<diff>")
	assert.NotContains(t, critique, inputMarker)

	correction := svc.prompts[2]
	assert.True(t, strings.HasPrefix(correction, "class UserVO {}"))
	assert.Contains(t, correction, "<feedback>\n* ❌ map access remains\n</feedback>")
	assert.Contains(t, correction, "+wrong()")
}

func TestConvert_BestAttemptWins(t *testing.T) {
	replies := []string{"vo.getNam()", "nothing", "nothing"}
	n := 0
	svc := &scripted{reply: func(string) (string, error) {
		r := replies[n]
		n++
		return r, nil
	}}
	cfg := DefaultConfig()
	cfg.UseFeedback = false
	c := newController(t, svc, cfg)

	r, err := c.Convert(context.Background(), `map.get("NAME")`, "vo.getName()", "")
	require.NoError(t, err)
	assert.Equal(t, 3, r.Iterations)
	assert.Equal(t, "vo.getNam()", r.Converted)
	assert.Equal(t, 1, r.Final.Iteration)
}

func TestConvert_Skip(t *testing.T) {
	svc := &scripted{reply: constant("never")}
	cfg := DefaultConfig()
	cfg.SkipPredicate = SkipUnlessConvertible(task.MapToVO.Rules())
	c := newController(t, svc, cfg)

	for _, code := range []string{"int x = 1;\n", "   \n", ""} {
		r, err := c.Convert(context.Background(), code, "", "")
		require.NoError(t, err)
		assert.True(t, r.Skipped, "%q", code)
		assert.True(t, r.IsCorrect)
		assert.Zero(t, r.Iterations)
		assert.Equal(t, code, r.Converted)
	}
	assert.Zero(t, svc.calls())
}

func TestConvert_LineBudget(t *testing.T) {
	var input, long []string
	for i := 0; i < 10; i++ {
		input = append(input, `x(map.get("K"));`)
	}
	for i := 0; i < 20; i++ {
		long = append(long, "y();")
	}
	svc := &scripted{reply: constant(strings.Join(long, "\n"))}
	cfg := DefaultConfig()
	cfg.MaxIterations = 1
	cfg.LineBudgetOffset = Offset(1)
	c := newController(t, svc, cfg)

	r, err := c.Convert(context.Background(), strings.Join(input, "\n"), "", "")
	require.NoError(t, err)
	assert.LessOrEqual(t, validator.CountLines(r.Converted), 11)
	assert.True(t, r.Final.Truncated)
	assert.Equal(t, 11, svc.opts[0].MaxLines)
}

func TestConvert_NormalizeRestoresFrame(t *testing.T) {
	svc := &scripted{reply: toVO}
	c := newController(t, svc, DefaultConfig())

	code := "\n    // count\n    int n = (int) map.get(\"count\");\n"
	r, err := c.Convert(context.Background(), code, "", "")
	require.NoError(t, err)

	assert.Contains(t, svc.prompts[0], inputMarker+"int n = (int) map.get(\"count\");\n```")
	assert.Equal(t, "\n    // count\n    int n = (int) vo.getCount();\n", r.Converted)
}

func TestConvert_ApplyAsPatch(t *testing.T) {
	svc := &scripted{reply: toVO}
	cfg := DefaultConfig()
	cfg.Normalize = false
	cfg.ApplyAsPatch = true
	c := newController(t, svc, cfg)

	code := "int a = 1;\nint n = (int) map.get(\"count\");\nint b = 2;\n"
	want := "int a = 1;\nint n = (int) vo.getCount();\nint b = 2;\n"
	r, err := c.Convert(context.Background(), code, want, "")
	require.NoError(t, err)

	assert.True(t, r.IsCorrect)
	assert.Equal(t, want, r.Converted)
	assert.Contains(t, r.Final.Diff, "-int n = (int) map.get(\"count\");")
}

func TestConvert_EnhancedPatchRespectsLineBudget(t *testing.T) {
	var enhanced strings.Builder
	enhanced.WriteString("```diff\n--- input\n+++ candidate\n@@ -1,1 +1,6 @@\n-map.get(\"NAME\")\n")
	for i := 0; i < 6; i++ {
		enhanced.WriteString("+extra();\n")
	}
	enhanced.WriteString("```")

	svc := llm.Func{ServiceName: "scripted", Fn: func(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
		last := messages[len(messages)-1].Content
		switch {
		case strings.Contains(last, "Base diff:"):
			return &llm.Response{Text: enhanced.String()}, nil
		case strings.Contains(last, "Describe the intent"):
			return &llm.Response{Text: `{"main_purpose": "use the value object"}`}, nil
		default:
			return &llm.Response{Text: "vo.getName()\n```"}, nil
		}
	}}
	cfg := DefaultConfig()
	cfg.MaxIterations = 1
	cfg.LineBudgetOffset = Offset(1)
	cfg.ApplyAsPatch = true
	cfg.EnhancePatch = true
	c := newController(t, svc, cfg)

	r, err := c.Convert(context.Background(), `map.get("NAME")`, "", "")
	require.NoError(t, err)
	assert.LessOrEqual(t, validator.CountLines(r.Converted), 2)
	assert.Equal(t, "vo.getName()", r.Converted)
}

func TestConvert_ServiceError(t *testing.T) {
	svc := &scripted{reply: func(string) (string, error) {
		return "", &llm.UnavailableError{Service: "scripted", Err: errors.New("refused")}
	}}
	c := newController(t, svc, DefaultConfig())

	_, err := c.Convert(context.Background(), `map.get("NAME")`, "", "")
	require.Error(t, err)
	assert.True(t, llm.IsUnavailable(err))
}

type fakeMemory struct {
	entries    map[string]string
	remembered map[string]string
}

func (m *fakeMemory) Lookup(ctx context.Context, task, source string) (string, bool, error) {
	v, ok := m.entries[strings.TrimSpace(source)]
	return v, ok, nil
}

func (m *fakeMemory) Remember(ctx context.Context, task, source, converted string, score int) error {
	if m.remembered == nil {
		m.remembered = map[string]string{}
	}
	m.remembered[source] = converted
	return nil
}

func TestConvert_Memory(t *testing.T) {
	mem := &fakeMemory{entries: map[string]string{`map.get("NAME")`: "vo.getName()"}}
	svc := &scripted{reply: constant("vo.getAge()")}
	c := newController(t, svc, DefaultConfig(), WithMemory(mem))

	r, err := c.Convert(context.Background(), "  map.get(\"NAME\")\n", "", "")
	require.NoError(t, err)
	assert.True(t, r.FromMemory)
	assert.Equal(t, "  vo.getName()\n", r.Converted)
	assert.Zero(t, svc.calls())

	r, err = c.Convert(context.Background(), `map.get("AGE")`, "vo.getAge()", "")
	require.NoError(t, err)
	assert.True(t, r.IsCorrect)
	assert.Equal(t, "vo.getAge()", mem.remembered[`map.get("AGE")`])
}

func TestConvert_TranscriptKept(t *testing.T) {
	svc := &scripted{reply: constant("vo.getName()")}
	cfg := DefaultConfig()
	cfg.KeepTranscript = true
	c := newController(t, svc, cfg)

	r, err := c.Convert(context.Background(), `map.get("NAME")`, "vo.getName()", "")
	require.NoError(t, err)
	require.Len(t, r.Transcript, 2)
	assert.Equal(t, llm.RoleUser, r.Transcript[0].Role)
	assert.Equal(t, llm.RoleAssistant, r.Transcript[1].Role)
}

const demoSource = `package demo;

import java.util.Map;

public class Demo {
    private int count;

    // builds a demo
    public Demo() {
        count = 0;
    }

    public int get(Map<String, Object> map) {
        return (int) map.get("count");
    }
}
`

func TestConvertFile_PerUnitKeepsOrder(t *testing.T) {
	svc := &scripted{reply: toVO}
	c := newController(t, svc, DefaultConfig())

	want, _ := toVO(demoSource)
	fr, err := c.ConvertFile(context.Background(), demoSource, want)
	require.NoError(t, err)

	assert.Equal(t, want, fr.Converted)
	assert.Equal(t, ModePerUnit, fr.Mode)
	assert.True(t, fr.Evaluation.ExactMatch)
	for i, u := range fr.Units {
		assert.Equal(t, i, u.Index)
		assert.NotEmpty(t, u.Kind)
	}
	assert.Equal(t, segmenter.KindHeader, fr.Units[0].Kind)
	assert.Equal(t, len(fr.Units), fr.Summary.Total)
	assert.Zero(t, fr.Summary.Failed)
}

func TestConvertFile_ParseError(t *testing.T) {
	c := newController(t, &scripted{reply: echo}, DefaultConfig())

	_, err := c.ConvertFile(context.Background(), "class A {\n    void f( {\n}\n", "")
	var perr *segmenter.ParseError
	require.True(t, errors.As(err, &perr))
}

func TestConvertFile_WholeFile(t *testing.T) {
	svc := &scripted{reply: toVO}
	cfg := DefaultConfig()
	cfg.Mode = ModeWholeFile
	c := newController(t, svc, cfg)

	want, _ := toVO(demoSource)
	fr, err := c.ConvertFile(context.Background(), demoSource, want)
	require.NoError(t, err)
	require.Len(t, fr.Units, 1)
	assert.Equal(t, want, fr.Converted)
	assert.Equal(t, 1, svc.calls())
}

func TestConvertFile_PerLineRecordsErrors(t *testing.T) {
	svc := &scripted{reply: func(input string) (string, error) {
		if strings.Contains(input, "boom") {
			return "", errors.New("model crashed")
		}
		return input, nil
	}}
	cfg := DefaultConfig()
	cfg.Mode = ModePerLine
	cfg.MaxIterations = 1
	cfg.CarryContextLines = 1
	c := newController(t, svc, cfg)

	src := "a();\nboom();\n\nc();\n"
	fr, err := c.ConvertFile(context.Background(), src, "")
	require.NoError(t, err)

	assert.Equal(t, src, fr.Converted)
	require.Len(t, fr.Units, 4)
	assert.Contains(t, fr.Units[1].Error, "model crashed")
	assert.True(t, fr.Units[2].Skipped)
	assert.Equal(t, 1, fr.Summary.Errors)
	assert.Equal(t, 1, fr.Summary.Skipped)
	assert.Equal(t, 2, fr.Summary.Succeeded)
	assert.Contains(t, svc.prompts[1], "<previous_unit>\na();\n</previous_unit>")
}

func TestConvertFile_PerUnitUnavailable(t *testing.T) {
	svc := &scripted{reply: func(string) (string, error) {
		return "", &llm.UnavailableError{Service: "scripted", Err: errors.New("connection refused")}
	}}
	c := newController(t, svc, DefaultConfig())

	fr, err := c.ConvertFile(context.Background(), demoSource, "")
	require.Error(t, err)
	assert.Nil(t, fr)
	assert.True(t, llm.IsUnavailable(err))
}

func TestConvertFile_Cancelled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModePerLine
	c := newController(t, &scripted{reply: echo}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ConvertFile(ctx, "a();\nb();\n", "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Validates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 0
	_, err := New(&scripted{}, task.MapToVO, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.EnhancePatch = true
	_, err = New(&scripted{}, task.MapToVO, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(nil, task.MapToVO, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"whole-file": ModeWholeFile,
		"page":       ModeWholeFile,
		"Unit":       ModePerUnit,
		"module":     ModePerUnit,
		"line":       ModePerLine,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("paragraph")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]*Result{
		{IsCorrect: true, Evaluation: evalScore(100)},
		{Evaluation: evalScore(40)},
		{Skipped: true, IsCorrect: true},
		{Error: "boom", Evaluation: evalScore(10)},
	})
	assert.Equal(t, Summary{Total: 4, Succeeded: 1, Failed: 2, Skipped: 1, Errors: 1, AverageScore: 70}, s)
}

func evalScore(n int) evaluator.Result {
	return evaluator.Result{Score: n}
}
