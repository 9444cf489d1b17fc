package jsonpath

import (
	"strings"
	"testing"
)

const page = `{
	"content": [
		{"id": 7, "status": "WAITING", "client": {"name": "Ana"}},
		{"id": 9, "status": "DONE", "client": {"name": "Rui"}, "notes": null}
	],
	"totalElements": 2,
	"accessToken": "eyJ.a.b"
}`

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"top level", "$.accessToken", "eyJ.a.b", false},
		{"gjson syntax", "accessToken", "eyJ.a.b", false},
		{"index", "$.content[0].id", "7", false},
		{"nested", "$.content[1].client.name", "Rui", false},
		{"bracket key", "$['totalElements']", "2", false},
		{"double quoted key", `$.content[0]["status"]`, "WAITING", false},
		{"wildcard count", "content.#", "2", false},
		{"null value", "$.content[1].notes", "null", false},
		{"missing", "$.content[5].id", "", true},
		{"empty path", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract([]byte(page), tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Extract(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Extract(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestExtract_EmptyBody(t *testing.T) {
	if _, err := Extract(nil, "$.id"); err == nil {
		t.Error("Extract(nil) should fail")
	}
}

func TestExists(t *testing.T) {
	if !Exists([]byte(page), "$.accessToken") {
		t.Error("Exists($.accessToken) = false")
	}
	if Exists([]byte(page), "$.refreshToken") {
		t.Error("Exists($.refreshToken) = true")
	}
}

func TestExtractMultiple(t *testing.T) {
	got, err := ExtractMultiple([]byte(page), map[string]string{
		"first":  "$.content[0].id",
		"total":  "$.totalElements",
		"absent": "$.nope",
	})
	if err == nil || !strings.Contains(err.Error(), "absent") {
		t.Errorf("ExtractMultiple() error = %v, want mention of absent", err)
	}
	if got["first"] != "7" || got["total"] != "2" {
		t.Errorf("ExtractMultiple() = %v", got)
	}

	if _, err := ExtractMultiple([]byte(page), nil); err == nil {
		t.Error("ExtractMultiple() with no paths should fail")
	}
}

func TestToGjsonPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"$", "@this"},
		{"$.a.b", "a.b"},
		{"$[0]", "0"},
		{"$.content[0].id", "content.0.id"},
		{"$.content[*].id", "content.#.id"},
		{"$['a']['b']", "a.b"},
		{"already.gjson", "already.gjson"},
	}

	for _, tt := range tests {
		if got := ToGjsonPath(tt.in); got != tt.want {
			t.Errorf("ToGjsonPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
