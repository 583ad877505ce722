package postprocess

import "testing"

func TestRemoveThinkingBlocks(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "no thinking blocks",
			input:    "vo.getName();",
			expected: "vo.getName();",
		},
		{
			name:     "simple thinking block",
			input:    "int a;<thinking>the map key is NAME</thinking>int b;",
			expected: "int a;int b;",
		},
		{
			name:     "think block",
			input:    "<think>plan</think>\nreturn vo;",
			expected: "return vo;",
		},
		{
			name:     "reasoning block",
			input:    "Start<reasoning>Analyzing the types</reasoning>End",
			expected: "StartEnd",
		},
		{
			name:     "multiple blocks",
			input:    "<thinking>First</thinking>middle<reflection>Second</reflection>",
			expected: "middle",
		},
		{
			name:     "truncated thinking block",
			input:    "<thinking>Conversion in progress",
			expected: "",
		},
		{
			name:     "truncated thinking in middle",
			input:    "Before<thinking>Incomplete",
			expected: "Before",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := removeThinkingBlocks(tt.input); got != tt.expected {
				t.Errorf("removeThinkingBlocks(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"echo preamble", "Here is the converted code:\nvo.getName();", "vo.getName();"},
		{"sure preamble", "Sure! Here is the rewritten method:\nreturn 1;", "return 1;"},
		{"output label", "Output: int x = 1;", "int x = 1;"},
		{"keeps code that mentions here", "String here = \"x\";", "String here = \"x\";"},
		{"thinking then echo", "<think>hm</think>Here's the code:\nfoo();", "foo();"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.input); got != tt.expected {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		primed   bool
		expected string
	}{
		{
			name:     "java fence",
			reply:    "Here is the code:\n```java\nString n = vo.getName();\n```\nDone.",
			expected: "String n = vo.getName();",
		},
		{
			name:     "untagged fence",
			reply:    "```\nvo.setAge(3);\n```",
			expected: "vo.setAge(3);",
		},
		{
			name:     "skips empty fence",
			reply:    "```java\n```\n\n```java\nint a;\n```",
			expected: "int a;",
		},
		{
			name:     "primed reply only closes the fence",
			reply:    "vo.getName()\n```\nThis replaces the map lookup.",
			primed:   true,
			expected: "vo.getName()",
		},
		{
			name:     "primed reply with prose before a full block",
			reply:    "The rewritten line:\n```java\nvo.getName()\n```",
			primed:   true,
			expected: "vo.getName()",
		},
		{
			name:     "unterminated fence from truncation",
			reply:    "```java\nint a = 1;\nint b = 2;",
			expected: "int a = 1;\nint b = 2;",
		},
		{
			name:     "no fence falls back to reply",
			reply:    "  vo.getName()  \n",
			expected: "vo.getName()",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractCode(tt.reply, tt.primed); got != tt.expected {
				t.Errorf("ExtractCode(%q, %v) = %q, want %q", tt.reply, tt.primed, got, tt.expected)
			}
		})
	}
}

func TestExtractDiff(t *testing.T) {
	reply := "Improved patch:\n\n```diff\n--- input\n+++ candidate\n@@ -1 +1 @@\n-a\n+b\n```\n"
	got, ok := ExtractDiff(reply)
	if !ok {
		t.Fatal("expected a diff block")
	}
	want := "--- input\n+++ candidate\n@@ -1 +1 @@\n-a\n+b"
	if got != want {
		t.Errorf("ExtractDiff = %q, want %q", got, want)
	}

	if _, ok := ExtractDiff("```java\nint a;\n```"); ok {
		t.Error("java block must not be taken as a diff")
	}
}

func TestExtractFeedback(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"```\n* ✅ comments kept\n```", "* ✅ comments kept"},
		{"```java\n* ❌ map.get remains\n```", "* ❌ map.get remains"},
		{"* ✅ all good", "* ✅ all good"},
		{"<think>x</think>\n* ❌ renamed parameter", "* ❌ renamed parameter"},
	}

	for _, tt := range tests {
		if got := ExtractFeedback(tt.input); got != tt.expected {
			t.Errorf("ExtractFeedback(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"```json\n{\"a\": 1}\n```", "{\"a\": 1}"},
		{"The intent is {\"a\": {\"b\": 2}} as requested.", "{\"a\": {\"b\": 2}}"},
		{"{\"a\": [1, 2", "{\"a\": [1, 2"},
		{"no json", "no json"},
	}

	for _, tt := range tests {
		if got := ExtractJSON(tt.input); got != tt.expected {
			t.Errorf("ExtractJSON(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
