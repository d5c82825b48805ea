package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/gramnet/pulse/pkg/logging"
)

// HandlerFunc processes one inbound event from a connection. The raw
// payload is decoded by the handler into its kind-specific type.
type HandlerFunc func(ctx context.Context, conn Conn, payload json.RawMessage) error

// Dispatcher maps inbound event kinds to handlers. The table is built
// once at setup, which makes the full set of supported events
// statically enumerable.
type Dispatcher struct {
	handlers map[Kind]HandlerFunc
	logger   *zap.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Kind]HandlerFunc),
		logger:   logging.WithComponent("dispatch"),
	}
}

// Register binds a handler to an inbound kind. Later registrations
// for the same kind replace earlier ones.
func (d *Dispatcher) Register(kind Kind, fn HandlerFunc) {
	d.handlers[kind] = fn
}

// Kinds lists every registered inbound kind, sorted.
func (d *Dispatcher) Kinds() []Kind {
	kinds := make([]Kind, 0, len(d.handlers))
	for k := range d.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Dispatch decodes one raw inbound frame and routes it. A handler
// error is reported back to the sender only; it never propagates.
func (d *Dispatcher) Dispatch(ctx context.Context, conn Conn, raw []byte) {
	var ev InboundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		d.logger.Debug("malformed inbound frame",
			zap.String("conn_id", conn.ID()),
			zap.Error(err))
		conn.Send(Event{Kind: KindError, Payload: ErrorPayload{Message: "malformed event"}})
		return
	}

	fn, ok := d.handlers[ev.Kind]
	if !ok {
		d.logger.Debug("unsupported inbound event",
			zap.String("conn_id", conn.ID()),
			zap.String("event", string(ev.Kind)))
		conn.Send(Event{Kind: KindError, Payload: ErrorPayload{
			Message: fmt.Sprintf("unsupported event: %s", ev.Kind),
		}})
		return
	}

	if err := fn(ctx, conn, ev.Payload); err != nil {
		d.logger.Warn("inbound event handler failed",
			zap.String("conn_id", conn.ID()),
			zap.String("user_id", conn.UserID()),
			zap.String("event", string(ev.Kind)),
			zap.Error(err))
		conn.Send(Event{Kind: KindError, Payload: ErrorPayload{
			Message: fmt.Sprintf("failed to process %s", ev.Kind),
		}})
	}
}
