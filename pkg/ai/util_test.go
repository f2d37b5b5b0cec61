package ai

import "testing"

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestUnmarshalFlexible(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  sample
	}{
		{
			name:  "standard json",
			input: `{"name": "test", "count": 2}`,
			want:  sample{Name: "test", Count: 2},
		},
		{
			name:  "double encoded",
			input: `"{\"name\": \"test\", \"count\": 2}"`,
			want:  sample{Name: "test", Count: 2},
		},
		{
			name:  "malformed but repairable",
			input: `{name: "test", count: 2}`,
			want:  sample{Name: "test", Count: 2},
		},
		{
			name:  "surrounding whitespace",
			input: "  {\"name\": \"test\", \"count\": 2}\n",
			want:  sample{Name: "test", Count: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got sample
			if err := UnmarshalFlexible(tt.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("UnmarshalFlexible() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGenerateSchemaProducesObjectSchema(t *testing.T) {
	schema := GenerateSchema(&sample{})
	if schema == nil {
		t.Fatal("GenerateSchema() returned nil")
	}
}
