// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

package slug_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskora/taskora/pkg/slug"
)

/*
TestFrom verifies the transformation pipeline across accents, punctuation,
and degenerate input.
*/
func TestFrom(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Acme Consulting", "acme-consulting"},
		{"accents", "Café Müller", "cafe-muller"},
		{"punctuation", "Acme, Inc. (EU)", "acme-inc-eu"},
		{"multiple_spaces", "Acme    Consulting", "acme-consulting"},
		{"leading_trailing", "  --Acme--  ", "acme"},
		{"digits", "Studio 54", "studio-54"},
		{"only_symbols", "!!!", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, slug.From(tt.input))
		})
	}
}
