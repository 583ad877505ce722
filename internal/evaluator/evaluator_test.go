package evaluator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/valpere/vorewrite/internal/task"
)

func failingStructure(string) (string, error) {
	return "", errors.New("unparsable")
}

func TestEvaluate_ExactMatch(t *testing.T) {
	e := New(task.MapToVO.Rules())
	r := e.Evaluate("vo.getName()", " vo.getName()\n")

	assert.True(t, r.ExactMatch)
	assert.True(t, r.CommentIgnoredMatch)
	assert.True(t, r.TargetPatternPresent)
	assert.False(t, r.LegacyPatternRemaining)
	assert.GreaterOrEqual(t, r.Score, 90)
	assert.LessOrEqual(t, r.Score, 100)
}

func TestEvaluate_Identical(t *testing.T) {
	src := "class A {\n  String n() { return vo.getName(); }\n}\n"
	r := New(task.MapToVO.Rules()).Evaluate(src, src)

	assert.True(t, r.StructureMatch)
	assert.Equal(t, 1.0, r.Similarity)
	assert.Equal(t, 100, r.Score)
}

func TestEvaluate_LegacyRemaining(t *testing.T) {
	e := New(task.MapToVO.Rules(), WithStructure(failingStructure))
	r := e.Evaluate(`String n = (String) map.get("NAME");`, `String n = vo.getName();`)

	assert.False(t, r.ExactMatch)
	assert.False(t, r.CommentIgnoredMatch)
	assert.False(t, r.TargetPatternPresent)
	assert.True(t, r.LegacyPatternRemaining)
	assert.False(t, r.StructureMatch)
	assert.Greater(t, r.Similarity, 0.0)
	assert.Less(t, r.Similarity, 1.0)
	assert.LessOrEqual(t, r.Score, 10)
}

func TestEvaluate_CommentIgnored(t *testing.T) {
	e := New(task.MapToVO.Rules(), WithStructure(failingStructure))
	candidate := "// converted\nint a = vo.getAge(); /* typed */"
	truth := "int a = vo.getAge();"

	r := e.Evaluate(candidate, truth)
	assert.False(t, r.ExactMatch)
	assert.True(t, r.CommentIgnoredMatch)
	assert.True(t, r.TargetPatternPresent)
}

func TestEvaluate_StructureIgnoresNames(t *testing.T) {
	e := New(task.MapToVO.Rules())
	r := e.Evaluate(
		"class A { int f() { return x.getA(); } }",
		"class B { int g() { return y.getB(); } }",
	)
	assert.False(t, r.ExactMatch)
	assert.True(t, r.StructureMatch)
}

func TestEvaluate_StructurePanicIsMismatch(t *testing.T) {
	e := New(task.MapToVO.Rules(), WithStructure(func(string) (string, error) {
		panic("parser crashed")
	}))
	assert.NotPanics(t, func() {
		r := e.Evaluate("a", "a")
		assert.False(t, r.StructureMatch)
		assert.True(t, r.ExactMatch)
	})
}

func TestEvaluate_ScoreBounds(t *testing.T) {
	rules := task.MapToVO.Rules()
	inputs := [][2]string{
		{"", ""},
		{"vo.getName()", "vo.getName()"},
		{"map.get(\"A\")", "vo.getA()"},
		{"}}}{{{", "class"},
	}

	heavy := Weights{Exact: 500, CommentIgnored: 500, Target: 500, LegacyAbsent: 500, Structure: 500, Similarity: 500}
	negative := Weights{Exact: -50, CommentIgnored: -50, LegacyAbsent: -50, Similarity: -50}

	for _, w := range []Weights{DefaultWeights, heavy, negative} {
		e := New(rules, WithWeights(w), WithStructure(failingStructure))
		for _, in := range inputs {
			s := e.Evaluate(in[0], in[1]).Score
			assert.GreaterOrEqual(t, s, 0)
			assert.LessOrEqual(t, s, 100)
		}
	}

	assert.Equal(t, 100, New(rules, WithWeights(heavy)).Evaluate("vo.getA()", "vo.getA()").Score)
	assert.Equal(t, 0, New(rules, WithWeights(negative)).Evaluate("vo.getA()", "vo.getA()").Score)
}

func TestEvaluate_LegacyTask(t *testing.T) {
	e := New(task.LegacyAPIModernization.Rules(), WithStructure(failingStructure))
	r := e.Evaluate("StringBuilder sb = new StringBuilder();", "StringBuilder sb = new StringBuilder();")
	assert.True(t, r.TargetPatternPresent)
	assert.False(t, r.LegacyPatternRemaining)

	r = e.Evaluate("Vector<String> v = new Vector<>();", "List<String> v = new ArrayList<>();")
	assert.True(t, r.LegacyPatternRemaining)
}

func TestStripComments(t *testing.T) {
	got := StripComments("a(); // x\n/* block\n comment */b();")
	assert.Equal(t, "a(); \nb();", got)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("abc", "abc"))
	assert.InDelta(t, 0.0, Similarity("abc", "xyz"), 1e-9)

	long := make([]byte, levenshteinLimit+10)
	for i := range long {
		long[i] = 'a'
		if i%50 == 0 {
			long[i] = '\n'
		}
	}
	s := Similarity(string(long), string(long)+"\nextra")
	assert.Greater(t, s, 0.9)
	assert.Less(t, s, 1.0)
}
