package cmd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/assessrec/assessrec/internal/catalog"
)

func TestBootstrapIsFatal(t *testing.T) {
	t.Parallel()

	malformed := &catalog.MalformedCatalogError{Row: 2, Field: "duration", Reason: "not a number"}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"malformed catalog", malformed, true},
		{"wrapped malformed catalog", fmt.Errorf("bootstrap: %w", malformed), true},
		{"transient failure", errors.New("connection refused"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := bootstrapIsFatal(tt.err); got != tt.want {
				t.Fatalf("bootstrapIsFatal(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
