package metadata

import (
	"strings"
	"testing"
)

func TestEncode_BothEmpty(t *testing.T) {
	if got := Encode("", ""); got != "" {
		t.Errorf("Encode(\"\", \"\") = %q, want empty string", got)
	}
}

func TestEncode_OmitsEmptyKeys(t *testing.T) {
	got := Encode("high", "")
	if !strings.HasPrefix(got, Marker+": ") {
		t.Fatalf("Encode() = %q, want %s prefix", got, Marker)
	}
	if strings.Contains(got, "category") {
		t.Errorf("Encode() = %q, should omit empty category", got)
	}
	if !strings.Contains(got, `"priority":"high"`) {
		t.Errorf("Encode() = %q, missing priority", got)
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		priority string
		category string
	}{
		{"both set", "high", "TRABAJO"},
		{"priority only", "critical", ""},
		{"category only", "", "SALUD"},
		{"both absent", "", ""},
		{"low rutina", "low", "RUTINA"},
		{"medium social", "medium", "SOCIAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			description := Append("Reunión con el equipo\n\nNotas de la agenda.", Encode(tt.priority, tt.category))
			priority, category := Fields(Decode(description))
			if priority != tt.priority {
				t.Errorf("priority = %q, want %q", priority, tt.priority)
			}
			if category != tt.category {
				t.Errorf("category = %q, want %q", category, tt.category)
			}
		})
	}
}

func TestAppend_PreservesUserText(t *testing.T) {
	got := Append("user text", Encode("low", "OCIO"))
	if !strings.HasPrefix(got, "user text\n\n") {
		t.Errorf("Append() = %q, user text must stay first", got)
	}
}

func TestAppend_EmptyFragment(t *testing.T) {
	if got := Append("user text", ""); got != "user text" {
		t.Errorf("Append() = %q, want unchanged description", got)
	}
}

func TestDecode_NoMarker(t *testing.T) {
	meta := Decode("a plain description with no embedded block")
	if len(meta) != 0 {
		t.Errorf("Decode() = %v, want empty map", meta)
	}
}

func TestDecode_EmptyDescription(t *testing.T) {
	if meta := Decode(""); len(meta) != 0 {
		t.Errorf("Decode(\"\") = %v, want empty map", meta)
	}
}

func TestDecode_MalformedBody(t *testing.T) {
	meta := Decode("notes\n\n" + Marker + `: {"priority": broken}`)
	if len(meta) != 0 {
		t.Errorf("Decode() = %v, want empty map on malformed body", meta)
	}
}

func TestDecode_ExtraKeysPreserved(t *testing.T) {
	meta := Decode(Marker + `: {"priority":"high","category":"ESTUDIO","origin":"import"}`)
	if meta["origin"] != "import" {
		t.Errorf("Decode() dropped extra key: %v", meta)
	}
	priority, category := Fields(meta)
	if priority != "high" || category != "ESTUDIO" {
		t.Errorf("Fields() = (%q, %q), want (high, ESTUDIO)", priority, category)
	}
}
