package main

import (
	"reflect"
	"testing"

	"csb/internal/config"
)

func TestComputeDiff(t *testing.T) {
	tests := []struct {
		name     string
		current  map[string]interface{}
		defaults map[string]interface{}
		want     map[string]interface{}
	}{
		{
			name:     "identical maps",
			current:  map[string]interface{}{"key": "value"},
			defaults: map[string]interface{}{"key": "value"},
			want:     map[string]interface{}{},
		},
		{
			name:     "different value",
			current:  map[string]interface{}{"key": "modified"},
			defaults: map[string]interface{}{"key": "default"},
			want:     map[string]interface{}{"key": "modified"},
		},
		{
			name:     "new key",
			current:  map[string]interface{}{"extra": 1.0},
			defaults: map[string]interface{}{},
			want:     map[string]interface{}{"extra": 1.0},
		},
		{
			name: "nested change",
			current: map[string]interface{}{
				"scheduler": map[string]interface{}{"strategy": "conservative", "strict": true},
			},
			defaults: map[string]interface{}{
				"scheduler": map[string]interface{}{"strategy": "greedy", "strict": true},
			},
			want: map[string]interface{}{
				"scheduler": map[string]interface{}{"strategy": "conservative"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeDiff(tt.current, tt.defaults)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFlatten(t *testing.T) {
	m := map[string]interface{}{
		"version": 1.0,
		"cache":   map[string]interface{}{"path": "x.db", "enabled": true},
	}
	want := []string{"cache.enabled: true", "cache.path: x.db", "version: 1"}
	if got := flatten(m, ""); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestDefaultConfigHasNoDiff(t *testing.T) {
	a, err := toMap(config.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	b, err := toMap(config.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if diff := computeDiff(a, b); len(diff) != 0 {
		t.Errorf("Expected no diff between defaults, got %v", diff)
	}
}
