package schema

import (
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		errMsg  string
	}{
		{"valid simple", "users", false, ""},
		{"valid underscore prefix", "_id", false, ""},
		{"valid mixed", "user_id_2", false, ""},
		{"empty", "", true, "cannot be empty"},
		{"starts with number", "1col", true, "must match"},
		{"contains dash", "col-name", true, "must match"},
		{"SQL injection attempt", "x; DROP TABLE y--", true, "must match"},
		{"reserved word", "Select", true, "reserved word"},
		{"too long", strings.Repeat("a", 64), true, "too long"},
		{"max length ok", strings.Repeat("a", 63), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q, got nil", tt.input)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error for %q: %v", tt.input, err)
			}
		})
	}
}
