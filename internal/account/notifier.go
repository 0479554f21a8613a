package account

import (
	"time"

	"go.uber.org/zap"
)

type EmailKind string

const (
	EmailVerify             EmailKind = "VERIFY"
	EmailReset              EmailKind = "RESET"
	EmailRestoreRequest     EmailKind = "RESTORE"
	EmailAccountDeactivated EmailKind = "ACCOUNT_DEACTIVATED"
	EmailAccountRestored    EmailKind = "ACCOUNT_RESTORED"
)

// EmailPayload carries whatever the template for a given kind needs.
type EmailPayload struct {
	Token    string
	Deadline *time.Time
}

// Notifier delivers lifecycle emails. State transitions never block on
// delivery, with one exception: token issuance is rolled back when delivery
// fails outright, so the caller can retry and get a fresh token.
type Notifier interface {
	Send(email string, kind EmailKind, payload EmailPayload) error
}

// LogNotifier writes notifications to the log instead of sending mail. Used
// in development and tests.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(email string, kind EmailKind, payload EmailPayload) error {
	fields := []zap.Field{
		zap.String("email", email),
		zap.String("kind", string(kind)),
	}
	if payload.Token != "" {
		fields = append(fields, zap.String("token", payload.Token))
	}
	if payload.Deadline != nil {
		fields = append(fields, zap.Time("deadline", *payload.Deadline))
	}
	n.log.Info("notification sent", fields...)
	return nil
}
