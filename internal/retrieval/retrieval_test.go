package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/vorewrite/internal/store"
)

type fakeSource struct {
	examples []store.Example
	err      error
	calls    int
}

func (f *fakeSource) SimilarExamples(ctx context.Context, task, query string, k int, minScore float64) ([]store.Example, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.examples) > k {
		return f.examples[:k], nil
	}
	return f.examples, nil
}

func TestStatic(t *testing.T) {
	text, ok, err := Static{Tag: "vo_class", Text: "class UserVO {}"}.GetContext(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "<vo_class>\nclass UserVO {}\n</vo_class>", text)

	_, ok, _ = Static{Tag: "vo_class", Text: "  "}.GetContext(context.Background(), "q")
	assert.False(t, ok)
}

func TestExamples_FormatsAndCaches(t *testing.T) {
	src := &fakeSource{examples: []store.Example{
		{Input: `map.get("NAME")`, Output: "vo.getName()"},
		{Input: `map.get("AGE")`, Output: "vo.getAge()"},
	}}
	e, err := NewExamples(src, "map-to-vo", 2, 0, 0)
	require.NoError(t, err)

	text, ok, err := e.GetContext(context.Background(), `map.get("MAIL")`)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "<examples>\nExample 1:\nInput:  map.get(\"NAME\")\nOutput: vo.getName()\n\nExample 2:\nInput:  map.get(\"AGE\")\nOutput: vo.getAge()\n</examples>", text)

	_, _, _ = e.GetContext(context.Background(), `map.get("MAIL")`)
	assert.Equal(t, 1, src.calls)
}

func TestExamples_NoMatches(t *testing.T) {
	e, err := NewExamples(&fakeSource{}, "map-to-vo", 3, 0, 4)
	require.NoError(t, err)
	_, ok, err := e.GetContext(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChain(t *testing.T) {
	failing, err := NewExamples(&fakeSource{err: errors.New("db locked")}, "map-to-vo", 1, 0, 0)
	require.NoError(t, err)

	c := Chain{
		Static{Tag: "vo_class", Text: "class UserVO {}"},
		failing,
		Static{Text: "// note"},
	}
	text, ok, err := c.GetContext(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "<vo_class>\nclass UserVO {}\n</vo_class>\n\n// note", text)

	_, ok, _ = Chain{}.GetContext(context.Background(), "q")
	assert.False(t, ok)
}

func TestExamples_WithStore(t *testing.T) {
	s, err := store.New(t.TempDir() + "/ex.db")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.AddExample(context.Background(), "map-to-vo", `String n = (String) map.get("NAME");`, "String n = vo.getName();", "")
	require.NoError(t, err)

	e, err := NewExamples(s, "map-to-vo", 1, 0.3, 0)
	require.NoError(t, err)
	text, ok, err := e.GetContext(context.Background(), `String m = (String) map.get("MAIL");`)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, text, "vo.getName()")
}
