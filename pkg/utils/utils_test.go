package utils

import "testing"

func TestTokenCounter(t *testing.T) {
	for _, model := range []string{"claude-sonnet-4-5", "gpt-4o-mini", "llama3.1"} {
		tc, err := NewTokenCounter(model)
		if err != nil {
			t.Fatalf("NewTokenCounter(%s) failed: %v", model, err)
		}
		if n := tc.CountTokens("hello world"); n <= 0 || n > 5 {
			t.Errorf("%s: unexpected token count %d", model, n)
		}
		if n := tc.CountTokens(""); n != 0 {
			t.Errorf("%s: expected 0 tokens for empty text, got %d", model, n)
		}
	}
}

func TestNilTokenCounterFallsBack(t *testing.T) {
	var tc *TokenCounter
	if n := tc.CountTokens("12345678"); n != 2 {
		t.Errorf("Expected char estimate of 2, got %d", n)
	}
}

func TestStringArg(t *testing.T) {
	args := map[string]any{"path": "main.go", "blank": "  ", "num": 3.0}

	if v, err := StringArg(args, "path"); err != nil || v != "main.go" {
		t.Errorf("Expected main.go, got %q (%v)", v, err)
	}
	if _, err := StringArg(args, "blank"); err == nil {
		t.Error("Expected error for blank string")
	}
	if _, err := StringArg(args, "num"); err == nil {
		t.Error("Expected type error")
	}
	if _, err := StringArg(args, "missing"); err == nil {
		t.Error("Expected missing error")
	}
}

func TestNumberArg(t *testing.T) {
	args := map[string]any{"f": 2.5, "i": 4, "s": "7"}

	if v, ok := NumberArg(args, "f"); !ok || v != 2.5 {
		t.Errorf("Expected 2.5, got %v", v)
	}
	if v, ok := NumberArg(args, "i"); !ok || v != 4 {
		t.Errorf("Expected 4, got %v", v)
	}
	if _, ok := NumberArg(args, "s"); ok {
		t.Error("Expected string value to be rejected")
	}
}

func TestStringSliceArg(t *testing.T) {
	args := map[string]any{
		"ok":    []any{"a", "b"},
		"typed": []string{"c"},
		"bad":   []any{"a", 1},
		"str":   "nope",
	}

	if v, err := StringSliceArg(args, "ok"); err != nil || len(v) != 2 || v[1] != "b" {
		t.Errorf("Unexpected result %v (%v)", v, err)
	}
	if v, err := StringSliceArg(args, "typed"); err != nil || len(v) != 1 {
		t.Errorf("Unexpected result %v (%v)", v, err)
	}
	if _, err := StringSliceArg(args, "bad"); err == nil {
		t.Error("Expected element type error")
	}
	if _, err := StringSliceArg(args, "str"); err == nil {
		t.Error("Expected list type error")
	}
	if _, err := StringSliceArg(args, "missing"); err == nil {
		t.Error("Expected missing error")
	}
	if got := GetMapFieldOr(args, "missing", "fallback"); got != "fallback" {
		t.Errorf("Expected fallback, got %q", got)
	}
}
