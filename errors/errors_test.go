package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name: "basic",
			err: &Error{
				Phase:  PhaseDecode,
				Kind:   KindSizeMismatch,
				Detail: "section declared 10 bytes, read 8",
			},
			expected: "[decode] size_mismatch: section declared 10 bytes, read 8",
		},
		{
			name: "with path",
			err: &Error{
				Phase:  PhaseValidate,
				Kind:   KindStackMismatch,
				Path:   []string{"func[2]", "block[0]"},
				Detail: "expected 1 value",
			},
			expected: "[validate] stack_mismatch at func[2].block[0]: expected 1 value",
		},
		{
			name: "with offset",
			err: &Error{
				Phase:  PhaseDecode,
				Kind:   KindUnknownOpcode,
				Path:   []string{"code"},
				Offset: 0x2a,
				Detail: "opcode 0xff",
			},
			expected: "[decode] unknown_opcode at code (offset 0x2a): opcode 0xff",
		},
		{
			name: "with cause",
			err: &Error{
				Phase:  PhaseLinking,
				Kind:   KindInstantiation,
				Detail: "start function failed",
				Cause:  fmt.Errorf("boom"),
			},
			expected: "[linking] instantiation: start function failed (caused by: boom)",
		},
		{
			name: "kind only",
			err: &Error{
				Phase: PhaseRuntime,
				Kind:  KindUnreachable,
			},
			expected: "[runtime] unreachable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := Wrap(PhaseLoad, KindInvalidData, cause, "read file")

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestError_Is(t *testing.T) {
	err := Trap(KindDivideByZero, "i32.div_s")

	if !stderrors.Is(err, &Error{Phase: PhaseRuntime, Kind: KindDivideByZero}) {
		t.Error("same phase and kind should match")
	}
	if !stderrors.Is(err, &Error{Phase: PhaseRuntime}) {
		t.Error("empty kind should match any kind of the same phase")
	}
	if stderrors.Is(err, &Error{Phase: PhaseRuntime, Kind: KindIntegerOverflow}) {
		t.Error("different kind should not match")
	}
	if stderrors.Is(err, &Error{Phase: PhaseDecode, Kind: KindDivideByZero}) {
		t.Error("different phase should not match")
	}
}

func TestBuilder(t *testing.T) {
	err := New(PhaseValidate, KindImmutable).
		Path("func[1]").
		Offset(7).
		Value(3).
		Detail("global %d is immutable", 3).
		Build()

	if err.Phase != PhaseValidate || err.Kind != KindImmutable {
		t.Fatalf("unexpected phase/kind: %s/%s", err.Phase, err.Kind)
	}
	if err.Offset != 7 {
		t.Errorf("Offset = %d, want 7", err.Offset)
	}
	if err.Value != 3 {
		t.Errorf("Value = %v, want 3", err.Value)
	}
	if err.Detail != "global 3 is immutable" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if len(err.Path) != 1 || err.Path[0] != "func[1]" {
		t.Errorf("Path = %v", err.Path)
	}
}

func TestBuilder_DetailFormatting(t *testing.T) {
	err := New(PhaseDecode, KindInvalidData).Detail("%d%% broken", 100).Build()
	if err.Detail != "100% broken" {
		t.Errorf("Detail = %q", err.Detail)
	}
	err = New(PhaseDecode, KindInvalidData).Detail("section too short").Build()
	if err.Detail != "section too short" {
		t.Errorf("Detail = %q, want literal string", err.Detail)
	}
}

func TestWithPath(t *testing.T) {
	base := Validation(KindStackMismatch, []string{"block[0]"}, 0, "empty stack")
	got := base.WithPath("func[4]")

	if len(got.Path) != 2 || got.Path[0] != "func[4]" || got.Path[1] != "block[0]" {
		t.Errorf("Path = %v", got.Path)
	}
	if len(base.Path) != 1 {
		t.Error("WithPath must not modify the receiver")
	}
}

func TestPhasePredicates(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		decode   bool
		validate bool
		link     bool
		trap     bool
	}{
		{"decode", Decode(KindSizeMismatch, "type", 12, "short"), true, false, false, false},
		{"validate", Validation(KindStackMismatch, nil, 0, "x"), false, true, false, false},
		{"link", Link(KindMissingModule, "env", "", "not registered"), false, false, true, false},
		{"missing imports", NewMissingImportsError([]string{"env#f"}), false, false, true, false},
		{"trap", Trap(KindUnreachable, ""), false, false, false, true},
		{"wrapped trap", fmt.Errorf("call: %w", Trap(KindMemoryOutOfBounds, "")), false, false, false, true},
		{"plain", fmt.Errorf("plain"), false, false, false, false},
		{"nil", nil, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDecode(tt.err); got != tt.decode {
				t.Errorf("IsDecode = %v", got)
			}
			if got := IsValidation(tt.err); got != tt.validate {
				t.Errorf("IsValidation = %v", got)
			}
			if got := IsLink(tt.err); got != tt.link {
				t.Errorf("IsLink = %v", got)
			}
			if got := IsTrap(tt.err); got != tt.trap {
				t.Errorf("IsTrap = %v", got)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", Trap(KindTableOutOfBounds, "index 9"))
	if got := KindOf(err); got != KindTableOutOfBounds {
		t.Errorf("KindOf = %q", got)
	}
	if got := KindOf(fmt.Errorf("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q", got)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *Error
		phase Phase
		kind  Kind
	}{
		{"InvalidUTF8", InvalidUTF8(PhaseDecode, nil, []byte{0xff}), PhaseDecode, KindInvalidUTF8},
		{"Unsupported", Unsupported(PhaseValidate, "multi-value block type"), PhaseValidate, KindUnsupported},
		{"OutOfBounds", OutOfBounds(PhaseDecode, nil, 10, 5), PhaseDecode, KindOutOfBounds},
		{"NotDeclared", NotDeclared(PhaseDecode, nil, 3, 2), PhaseDecode, KindNotDeclared},
		{"Overflow", Overflow(PhaseDecode, nil, 1<<40, "u32"), PhaseDecode, KindOverflow},
		{"InvalidData", InvalidData(PhaseDecode, nil, "bad"), PhaseDecode, KindInvalidData},
		{"NotFound", NotFound(PhaseLinking, "export", "f"), PhaseLinking, KindNotFound},
		{"InvalidInput", InvalidInput(PhaseRuntime, "bad arg"), PhaseRuntime, KindInvalidInput},
		{"Registration", Registration(PhaseHost, "env", "f", nil), PhaseHost, KindRegistration},
		{"Load", Load("read", nil), PhaseLoad, KindInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Phase != tt.phase {
				t.Errorf("Phase = %s, want %s", tt.err.Phase, tt.phase)
			}
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", tt.err.Kind, tt.kind)
			}
			if tt.err.Error() == "" {
				t.Error("Error() should not be empty")
			}
		})
	}
}

func TestOutOfBoundsValue(t *testing.T) {
	err := OutOfBounds(PhaseDecode, []string{"func"}, 10, 5)
	if err.Value != 10 {
		t.Errorf("Value = %v, want 10", err.Value)
	}
	if !containsSubstring(err.Error(), "index 10 out of bounds (length 5)") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestMissingImportsError(t *testing.T) {
	err := NewMissingImportsError([]string{
		"env#print_i32",
		"env#abort",
		"math#sqrt",
	})

	if len(err.Imports) != 3 {
		t.Fatalf("Imports = %d, want 3", len(err.Imports))
	}
	if err.Imports[0].Module != "env" || err.Imports[0].Name != "print_i32" {
		t.Errorf("first import = %+v", err.Imports[0])
	}

	msg := err.Error()
	for _, want := range []string{"missing 3 import(s)", "env:", "math:", "- abort", "- sqrt"} {
		if !containsSubstring(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}

	if !stderrors.Is(err, &MissingImportsError{}) {
		t.Error("should match MissingImportsError")
	}
	if !stderrors.Is(err, &Error{Phase: PhaseLinking, Kind: KindMissingImport}) {
		t.Error("should match linking missing_import")
	}
	if stderrors.Is(err, &Error{Phase: PhaseRuntime}) {
		t.Error("should not match runtime phase")
	}
}

func TestMissingImportsError_Empty(t *testing.T) {
	err := &MissingImportsError{}
	if err.Error() != "[linking] missing_import: no imports specified" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestMissingImportsError_NoSeparator(t *testing.T) {
	err := NewMissingImportsError([]string{"lonely"})
	if err.Imports[0].Module != "lonely" || err.Imports[0].Name != "" {
		t.Errorf("import = %+v", err.Imports[0])
	}
}

func containsSubstring(s, sub string) bool {
	return len(s) >= len(sub) && findSubstring(s, sub) >= 0
}

func findSubstring(s, sub string) int {
	for i := 0; i <= len(s)-len(sub); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
