package correlation

import "testing"

func strp(s string) *string { return &s }

func TestBuildToken(t *testing.T) {
	tests := []struct {
		original, external, want string
	}{
		{"abc", "", "ref:abc"},
		{"abc", "x9", "ref:abc|ext:x9"},
		{"0f8fad5b-d9cb-469f-a165-70867728950e", "clx1", "ref:0f8fad5b-d9cb-469f-a165-70867728950e|ext:clx1"},
	}
	for _, tt := range tests {
		if got := BuildToken(tt.original, tt.external); got != tt.want {
			t.Errorf("BuildToken(%q, %q) = %q, want %q", tt.original, tt.external, got, tt.want)
		}
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	pairs := [][2]string{
		{"a", ""},
		{"a", "b"},
		{"txn-123", "exp_456"},
		{"with space", "ümlaut"},
		{"ref", "ext"},
	}
	for _, p := range pairs {
		token := BuildToken(p[0], p[1])
		o, e := ParseToken(&token)
		if o == nil || *o != p[0] {
			t.Fatalf("original from %q = %v, want %q", token, o, p[0])
		}
		if p[1] == "" {
			if e != nil {
				t.Fatalf("external from %q = %q, want nil", token, *e)
			}
			continue
		}
		if e == nil || *e != p[1] {
			t.Fatalf("external from %q = %v, want %q", token, e, p[1])
		}
	}
}

func TestParseTokenTolerance(t *testing.T) {
	tests := []struct {
		name     string
		in       *string
		original string
		external string
	}{
		{"nil", nil, "", ""},
		{"empty", strp(""), "", ""},
		{"free text", strp("Imported from bank"), "", ""},
		{"bare prefix", strp("ref:"), "", ""},
		{"unknown segment", strp("ref:a|foo:bar|ext:b"), "a", "b"},
		{"empty external", strp("ref:a|ext:"), "a", ""},
		{"ext first", strp("ext:b|ref:a"), "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, e := ParseToken(tt.in)
			gotO, gotE := "", ""
			if o != nil {
				gotO = *o
			}
			if e != nil {
				gotE = *e
			}
			if gotO != tt.original || gotE != tt.external {
				t.Fatalf("ParseToken = (%q, %q), want (%q, %q)", gotO, gotE, tt.original, tt.external)
			}
			if tt.original == "" && (o != nil || e != nil) {
				t.Fatal("malformed token must yield (nil, nil)")
			}
		})
	}
}

func TestIsToken(t *testing.T) {
	if !IsToken("ref:1") || IsToken("Imported") || IsToken("") {
		t.Fatal("IsToken misclassified input")
	}
}
