package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"strata/internal/logs"
)

// NATSSink публикует события во внешний NATS (core, без JetStream:
// подтверждение доставки здесь не нужно, подписчики — сторонние системы).
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

// ConnectNATS подключается к серверу и возвращает sink с префиксом темы,
// итоговая тема — "<prefix>.<kind>".
func ConnectNATS(url, subjectPrefix string) (*NATSSink, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	logs.Logger.WithField("url", url).Info("nats connected")
	return &NATSSink{nc: nc, subject: subjectPrefix}, nil
}

func (s *NATSSink) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	subj := s.subject + "." + string(ev.Kind)
	if err := s.nc.Publish(subj, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subj, err)
	}
	return nil
}

func (s *NATSSink) Close() error {
	s.nc.Close()
	return nil
}
