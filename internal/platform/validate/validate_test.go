// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskora/taskora/internal/platform/apperr"
	"github.com/taskora/taskora/internal/platform/validate"
)

/*
TestValidator_Required verifies empty and whitespace-only values fail while
real values pass.
*/
func TestValidator_Required(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"empty", "", true},
		{"whitespace_only", "   \t ", true},
		{"valid", "hello", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.New().Required("name", tt.value).Err()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

/*
TestValidator_Email verifies RFC 5322 address parsing.
*/
func TestValidator_Email(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid", "jane@example.com", false},
		{"valid_with_plus", "jane+tag@example.com", false},
		{"missing_at", "jane.example.com", true},
		{"missing_domain", "jane@", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.New().Email("email", tt.value).Err()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

/*
TestValidator_PermissionKey verifies the capability key format check used
when creating and updating roles.
*/
func TestValidator_PermissionKey(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"simple", "tasks.edit", false},
		{"underscored_action", "time.view_all", false},
		{"nested", "reports.export.csv", false},
		{"no_dot", "tasksedit", true},
		{"uppercase", "Tasks.Edit", true},
		{"trailing_dot", "tasks.", true},
		{"leading_dot", ".edit", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.New().PermissionKey("permissions", tt.value).Err()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

/*
TestValidator_MinMaxLen verifies length rules count runes, not bytes.
*/
func TestValidator_MinMaxLen(t *testing.T) {
	v := validate.New().MinLen("password", "short", 8)
	assert.Error(t, v.Err())

	v = validate.New().MaxLen("name", "héllo", 5)
	assert.NoError(t, v.Err())

	v = validate.New().MaxLen("name", "toolongvalue", 5)
	assert.Error(t, v.Err())
}

/*
TestValidator_OneOf verifies set membership checks.
*/
func TestValidator_OneOf(t *testing.T) {
	assert.NoError(t, validate.New().OneOf("status", "active", "active", "inactive").Err())
	assert.Error(t, validate.New().OneOf("status", "banned", "active", "inactive").Err())
}

/*
TestValidator_Chain verifies multiple failing rules accumulate into one
VALIDATION_ERROR with per-field details.
*/
func TestValidator_Chain(t *testing.T) {
	err := validate.New().
		Required("email", "").
		MinLen("password", "123", 8).
		Custom("estimate_hours", true, "Must not be negative").
		Err()
	require.Error(t, err)

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	require.Len(t, appErr.Details, 3)
	assert.Equal(t, "email", appErr.Details[0].Field)
	assert.Equal(t, "password", appErr.Details[1].Field)
	assert.Equal(t, "estimate_hours", appErr.Details[2].Field)
}

/*
TestValidator_HasErrors verifies the intermediate state check used to
short-circuit expensive rules.
*/
func TestValidator_HasErrors(t *testing.T) {
	v := validate.New()
	assert.False(t, v.HasErrors())

	v.Required("name", "")
	assert.True(t, v.HasErrors())
}

/*
TestRequiredError verifies the single-field shortcut produces a full
validation error.
*/
func TestRequiredError(t *testing.T) {
	err := validate.RequiredError("refresh_token", "Refresh token is required")

	assert.Equal(t, "VALIDATION_ERROR", err.Code)
	require.Len(t, err.Details, 1)
	assert.Equal(t, "refresh_token", err.Details[0].Field)
	assert.Equal(t, "Refresh token is required", err.Details[0].Message)
}
