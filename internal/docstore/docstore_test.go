package docstore

import (
	"encoding/json"
	"testing"
)

func TestMergePatch(t *testing.T) {
	tests := []struct {
		name   string
		target string
		patch  string
		want   string
	}{
		{"add field", `{"a":1}`, `{"b":2}`, `{"a":1,"b":2}`},
		{"replace field", `{"a":1}`, `{"a":"x"}`, `{"a":"x"}`},
		{"null removes", `{"a":1,"b":2}`, `{"b":null}`, `{"a":1}`},
		{"nested merge", `{"n":{"x":1}}`, `{"n":{"y":2}}`, `{"n":{"x":1,"y":2}}`},
		{"array replaces", `{"l":[1,2,3]}`, `{"l":[4]}`, `{"l":[4]}`},
		{"empty target", ``, `{"a":1,"b":null}`, `{"a":1}`},
		{"large numbers keep precision", `{}`, `{"n":12345678901234567890}`, `{"n":12345678901234567890}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MergePatch(json.RawMessage(tt.target), json.RawMessage(tt.patch))
			if err != nil {
				t.Fatalf("MergePatch() error: %v", err)
			}
			if !jsonEqual(t, got, []byte(tt.want)) {
				t.Errorf("MergePatch() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEncode_RejectsNonObjects(t *testing.T) {
	if _, err := Encode([]int{1, 2}); err == nil {
		t.Error("Encode(array) should fail")
	}
	if _, err := Encode(struct {
		A int `json:"a"`
	}{A: 1}); err != nil {
		t.Errorf("Encode(struct) error: %v", err)
	}
}

func TestUserCollection(t *testing.T) {
	if got := UserCollection("u1", "accounts"); got != "users/u1/accounts" {
		t.Errorf("UserCollection() = %q", got)
	}
}

func jsonEqual(t *testing.T, a, b []byte) bool {
	t.Helper()
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		t.Fatalf("unmarshal %s: %v", a, err)
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	ja, _ := json.Marshal(va)
	jb, _ := json.Marshal(vb)
	return string(ja) == string(jb)
}
