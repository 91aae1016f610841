package db

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestParseUUID(t *testing.T) {
	t.Parallel()

	parsed, err := ParseUUID("1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	if err != nil {
		t.Fatalf("ParseUUID: %v", err)
	}
	if !parsed.Valid {
		t.Fatal("parsed uuid not valid")
	}
	if got := parsed.String(); got != "1b4e28ba-2fa1-11d2-883f-0016d3cca427" {
		t.Fatalf("round trip = %q", got)
	}

	if _, err := ParseUUID("not-a-uuid"); err == nil {
		t.Fatal("expected error for malformed uuid")
	}
	if _, err := ParseUUID(""); err == nil {
		t.Fatal("expected error for empty uuid")
	}
}

func TestTextHelpers(t *testing.T) {
	t.Parallel()

	if got := ToPgText("  hola  "); !got.Valid || got.String != "hola" {
		t.Fatalf("ToPgText = %+v", got)
	}
	if got := ToPgText("   "); got.Valid {
		t.Fatalf("blank ToPgText = %+v", got)
	}
	if got := TextToString(pgtype.Text{String: "x", Valid: true}); got != "x" {
		t.Fatalf("TextToString = %q", got)
	}
	if got := TextToString(pgtype.Text{}); got != "" {
		t.Fatalf("NULL TextToString = %q", got)
	}
}

func TestTimeHelpers(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	wrapped := ToPgTimestamptz(at)
	if !wrapped.Valid || !wrapped.Time.Equal(at) {
		t.Fatalf("ToPgTimestamptz = %+v", wrapped)
	}
	if ToPgTimestamptz(time.Time{}).Valid {
		t.Fatal("zero time should map to NULL")
	}

	if ptr := TimePtr(wrapped); ptr == nil || !ptr.Equal(at) {
		t.Fatalf("TimePtr = %v", ptr)
	}
	if TimePtr(pgtype.Timestamptz{}) != nil {
		t.Fatal("NULL timestamp should map to nil")
	}
}
