package jsonutil

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestFlexibleStringValue(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string", `"Qelath"`, "Qelath"},
		{"integer", `42`, "42"},
		{"float", `3.5`, "3.5"},
		{"bool", `true`, "true"},
		{"null", `null`, ""},
		{"empty", ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FlexibleStringValue(json.RawMessage(tt.raw)); got != tt.want {
				t.Errorf("FlexibleStringValue(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestFlexibleStringSlice(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"array of strings", `["betrayal", "legacy"]`, []string{"betrayal", "legacy"}},
		{"mixed array", `["betrayal", 3, true]`, []string{"betrayal", "3", "true"}},
		{"single string", `"betrayal"`, []string{"betrayal"}},
		{"null", `null`, nil},
		{"empty array", `[]`, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlexibleStringSlice(json.RawMessage(tt.raw))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FlexibleStringSlice(%q) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}
