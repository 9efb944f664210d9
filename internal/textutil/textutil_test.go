package textutil

import "testing"

func TestCleanMarkup(t *testing.T) {
	got := CleanMarkup("<b>AI</b> beats &quot;experts&quot;")
	want := `AI beats "experts"`
	if got != want {
		t.Errorf("CleanMarkup = %q, want %q", got, want)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	got := CollapseWhitespace("  AI \t beats\n experts ")
	if got != "AIbeatsexperts" {
		t.Errorf("CollapseWhitespace = %q", got)
	}
}

func TestParseDateToTS(t *testing.T) {
	// RFC 1123Z, the API's native format.
	ts := ParseDateToTS("Mon, 02 Jan 2006 15:04:05 +0900")
	if ts == 0 {
		t.Error("expected non-zero timestamp for RFC 1123Z date")
	}

	// ISO fallback.
	if ParseDateToTS("2026-01-02T09:00:00") == 0 {
		t.Error("expected non-zero timestamp for ISO date")
	}
	if ParseDateToTS("2026-01-02") == 0 {
		t.Error("expected non-zero timestamp for bare date")
	}

	// Garbage and empty map to zero.
	if ParseDateToTS("not a date") != 0 {
		t.Error("expected zero timestamp for garbage")
	}
	if ParseDateToTS("") != 0 {
		t.Error("expected zero timestamp for empty string")
	}

	// Later dates sort after earlier ones.
	a := ParseDateToTS("2026-01-02T09:00:00")
	b := ParseDateToTS("2026-01-03T09:00:00")
	if b <= a {
		t.Errorf("expected %v > %v", b, a)
	}
}
