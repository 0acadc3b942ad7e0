package broadcast

import (
	"context"
	"encoding/json"
)

// Publisher is the subset of an MQTT client the mirror needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Mirror republishes hub events to an external bus under
// <prefix>/<kind>, so consumers outside this process can observe them.
// It is an ordinary subscriber and follows the hub's overflow policy.
type Mirror struct {
	hub       *Hub
	publisher Publisher
	prefix    string
	qos       byte
	logger    Logger
}

// NewMirror creates a mirror for all event kinds.
func NewMirror(hub *Hub, publisher Publisher, prefix string, qos byte) *Mirror {
	return &Mirror{
		hub:       hub,
		publisher: publisher,
		prefix:    prefix,
		qos:       qos,
		logger:    hub.logger,
	}
}

// Run forwards events until ctx is cancelled or the hub closes.
func (m *Mirror) Run(ctx context.Context) {
	sub := m.hub.Subscribe(Filter{})
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			m.forward(e)
		}
	}
}

func (m *Mirror) forward(e Event) {
	if e.Topic != "" {
		// Targeted events stay inside the process.
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		m.logger.Error("failed to marshal mirrored event", "kind", e.Kind, "error", err)
		return
	}
	if err := m.publisher.Publish(m.prefix+"/"+string(e.Kind), data, m.qos, false); err != nil {
		m.logger.Warn("mirroring event failed", "kind", e.Kind, "error", err)
	}
}
