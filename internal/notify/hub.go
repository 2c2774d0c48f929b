package notify

import (
	"context"

	"github.com/gookit/event"
)

// Hub — внутрипроцессная шина поверх gookit/event. Доставка синхронная,
// подписчики дешёвые (инвалидация кэша и т.п.); ошибку подписчика отдаём
// публикующему, чтобы она откатила транзакцию вместе с изменениями.
type Hub struct {
	bus *event.Manager
}

func NewHub() *Hub {
	return &Hub{bus: event.NewManager("strata")}
}

func (h *Hub) Publish(_ context.Context, ev Event) error {
	err, _ := h.bus.Fire(string(ev.Kind), event.M{"payload": ev})
	return err
}

// Subscribe вешает обработчик на один вид событий.
func (h *Hub) Subscribe(kind Kind, fn func(Event) error) {
	h.bus.On(string(kind), event.ListenerFunc(func(e event.Event) error {
		ev, ok := e.Get("payload").(Event)
		if !ok {
			return nil
		}
		return fn(ev)
	}), event.Normal)
}

func (h *Hub) Close() error {
	h.bus.Clear()
	return nil
}
