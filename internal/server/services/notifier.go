package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authgate/internal/logging"
)

// Kinds of out-of-band messages.
const (
	NoticeMFACode           = "mfa_code"
	NoticeResetCode         = "reset_code"
	NoticeBootstrapPassword = "bootstrap_password"
)

// Notice is a secret delivered to a user outside the API response.
type Notice struct {
	To      string
	Kind    string
	Secret  string
	Expires time.Time
}

// Notifier delivers one-time codes (email, SMS, ...).
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// LogNotifier writes notices to the log. It is meant for development
// setups without a mail relay.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notifier")}
}

func (n *LogNotifier) Notify(ctx context.Context, notice Notice) error {
	args := []any{"to", notice.To, "kind", notice.Kind, "secret", notice.Secret}
	if !notice.Expires.IsZero() {
		args = append(args, "expires", notice.Expires)
	}
	n.logger.Warn(ctx, "out-of-band notice", args...)
	return nil
}
