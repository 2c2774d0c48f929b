package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"strata/internal/logs"
)

// LogSink пишет события в журнал. Полезен сам по себе и как дефолт,
// когда внешний sink не настроен.
type LogSink struct{}

func (LogSink) Publish(_ context.Context, ev Event) error {
	fields := logrus.Fields{
		"kind":      ev.Kind,
		"config_id": ev.ConfigID,
	}
	if ev.TemplateID != nil {
		fields["template_id"] = *ev.TemplateID
	}
	if ev.Status != "" {
		fields["status"] = ev.Status
	}
	logs.Logger.WithFields(fields).Info("config event")
	return nil
}
