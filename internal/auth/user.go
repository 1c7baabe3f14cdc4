// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

/*
Package auth implements the credential and session side of authentication:
tenant registration, login, refresh token rotation, and password lifecycle.

# Architecture

The package follows the store/service/http split. The service owns the
business rules (throttling, rotation, revocation); the postgres store owns
sessions and credentials; the redis store owns short-lived reset tokens and
the login failure counters.

Authorization lives elsewhere: once a request carries a verified access
token, the rbac package decides what the user may do.
*/
package auth

import "time"

// User is the credential entity. One user belongs to exactly one tenant.
//
// # Security
//
// PasswordHash is a bcrypt hash and must never be serialized; the json tag
// is "-" on purpose.
type User struct {
	ID           int64      `json:"id"`
	TenantID     int64      `json:"tenant_id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	PasswordHash string     `json:"-"`
	Status       string     `json:"status"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Tenant is the organization that owns users, roles, and sessions.
type Tenant struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Status    string    `json:"status"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Plans a tenant can be on. Billing enforcement is out of scope here; the
// plan is carried so clients can render it.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// Session is one device's refresh grant.
//
// # Lifecycle
//
// Created at login, rotated at every refresh, revoked at logout or by an
// administrator. The raw refresh token is never stored; only its SHA-256
// hash is.
type Session struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"-"`
	TokenHash  string     `json:"-"`
	DeviceName string     `json:"device_name,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
	IPAddress  string     `json:"ip_address,omitempty"`
	IsRevoked  bool       `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
