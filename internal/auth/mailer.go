// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

package auth

import (
	"context"
	"log/slog"
)

// LogMailer is a Mailer for development and test environments: instead of
// sending anything it writes the reset link material to the log. Never wire
// this in production.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a Mailer that only logs.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendPasswordReset logs the reset token instead of emailing it.
func (mailer *LogMailer) SendPasswordReset(_ context.Context, email, token string) error {
	mailer.logger.Info("password reset requested",
		slog.String("email", email),
		slog.String("token", token),
	)
	return nil
}
