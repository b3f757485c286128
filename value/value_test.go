package value

import (
	"strings"
	"testing"
)

func TestToDisplayStringNull(t *testing.T) {
	if got := NewNull().ToDisplayString(); got != "NULL" {
		t.Fatalf("ToDisplayString(null) = %q, want NULL", got)
	}
}

func TestToDisplayStringNeverEmpty(t *testing.T) {
	vals := []Value{
		NewNull(),
		NewInt(0),
		NewFloat(0),
		NewText(""),
		NewBlob(nil),
		NewBool(false),
	}
	for _, v := range vals {
		if s := v.ToDisplayString(); s == "" {
			t.Errorf("ToDisplayString(%v) returned empty string", v.Kind)
		}
	}
}

func TestNewTextOversize(t *testing.T) {
	v := NewTextLen("short", MaxFieldSize+1)
	if !v.Oversize {
		t.Fatal("expected oversize placeholder")
	}
	if !strings.Contains(v.Text, "DATA") {
		t.Fatalf("placeholder text = %q", v.Text)
	}
}

func TestBlobDisplayEmpty(t *testing.T) {
	if got := NewBlob([]byte{}).ToDisplayString(); got != "x''" {
		t.Fatalf("empty blob display = %q, want x''", got)
	}
}

func TestBlobDisplayHexTruncation(t *testing.T) {
	b := make([]byte, 40)
	for i := range b {
		b[i] = 0xff
	}
	got := NewBlob(b).ToDisplayString()
	if !strings.HasPrefix(got, "x'") || !strings.HasSuffix(got, "…") {
		t.Fatalf("display = %q, want hex literal truncated with ellipsis", got)
	}
	// x' + 32*2 hex chars + ' + ellipsis
	if len(got) != 2+64+1+len("…") {
		t.Fatalf("display length = %d, got %q", len(got), got)
	}
}

func TestBlobDisplayPrintableRoundtrips(t *testing.T) {
	got := NewBlob([]byte("hello world")).ToDisplayString()
	if got != "hello world" {
		t.Fatalf("display = %q, want raw text", got)
	}
}

func TestCopyIndependence(t *testing.T) {
	orig := NewText("mutate me")
	cp := orig.Copy()
	cp.Text = "mutated"
	if orig.Text == "mutated" {
		t.Fatal("Copy() aliased the original's text")
	}

	ob := NewBlob([]byte{1, 2, 3})
	cb := ob.Copy()
	cb.Blob[0] = 99
	if ob.Blob[0] == 99 {
		t.Fatal("Copy() aliased the original's blob backing array")
	}
}

func TestToIntTotal(t *testing.T) {
	cases := []struct {
		v    Value
		want int64
	}{
		{NewNull(), 0},
		{NewText("not a number"), 0},
		{NewText("42"), 42},
		{NewBool(true), 1},
		{NewFloat(3.9), 3},
	}
	for _, c := range cases {
		if got := c.v.ToInt(); got != c.want {
			t.Errorf("ToInt(%v) = %d, want %d", c.v, got, c.want)
		}
	}
}

func TestToBoolTotal(t *testing.T) {
	if NewNull().ToBool() {
		t.Fatal("null should be falsy")
	}
	if !NewText("true").ToBool() {
		t.Fatal("'true' text should be truthy")
	}
	if NewText("false").ToBool() {
		t.Fatal("'false' text should be falsy")
	}
}
