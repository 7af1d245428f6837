package transform

import "testing"

func TestNormalize_Operations(t *testing.T) {
	h := &normalizeHandler{}

	tests := []struct {
		name    string
		logic   map[string]any
		want    any
		wantErr bool
	}{
		{
			name:  "text collapses whitespace",
			logic: map[string]any{"normalize_value": "  hello \t\n  world "},
			want:  "hello world",
		},
		{
			name:  "text formats non-strings",
			logic: map[string]any{"normalize_value": 42},
			want:  "42",
		},
		{
			name:  "number from string",
			logic: map[string]any{"normalize_operation": "number", "normalize_value": " 19.5 "},
			want:  19.5,
		},
		{
			name:    "number rejects text",
			logic:   map[string]any{"normalize_operation": "number", "normalize_value": "many"},
			wantErr: true,
		},
		{
			name:  "boolean yes",
			logic: map[string]any{"normalize_operation": "boolean", "normalize_value": "Yes"},
			want:  true,
		},
		{
			name:  "boolean off",
			logic: map[string]any{"normalize_operation": "boolean", "normalize_value": "off"},
			want:  false,
		},
		{
			name:  "boolean numeric",
			logic: map[string]any{"normalize_operation": "boolean", "normalize_value": 1},
			want:  true,
		},
		{
			name:    "boolean rejects text",
			logic:   map[string]any{"normalize_operation": "boolean", "normalize_value": "perhaps"},
			wantErr: true,
		},
		{
			name:  "json decodes",
			logic: map[string]any{"normalize_operation": "json", "normalize_value": `{"a": 1}`},
			want:  map[string]any{"a": 1.0},
		},
		{
			name:    "unknown operation",
			logic:   map[string]any{"normalize_operation": "tidy", "normalize_value": "x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := execute(t, h, tt.logic, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if !looselyEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}
