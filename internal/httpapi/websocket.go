package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/filippods/irrigazione5/internal/events"
)

// statusStreamBuffer bounds each websocket client's pending-event queue; a
// slow client drops its oldest unread event rather than stalling the event
// bus's dispatch goroutines.
const statusStreamBuffer = 16

// pushedEventTypes is every event type the live status view cares about.
var pushedEventTypes = []events.Type{
	events.ZoneStarted, events.ZoneStopped,
	events.ProgramStarted, events.ProgramStepAdvanced,
	events.ProgramCompleted, events.ProgramCancelled,
	events.ConnectivityUp, events.ConnectivityDown,
	events.SchedulerTickSkipped,
}

// handleWebsocketStatus upgrades the connection and streams every pushed
// event type until the client disconnects.
func (h *Handler) handleWebsocketStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	queue := make(chan *events.Event, statusStreamBuffer)

	var subs []events.Subscription
	for _, t := range pushedEventTypes {
		subs = append(subs, h.events.Subscribe(t, func(e *events.Event) {
			enqueueEvent(queue, e)
		}))
	}
	defer func() {
		for _, s := range subs {
			h.events.Unsubscribe(s)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client disconnected")
			return
		case e := <-queue:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, e)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("websocket write failed, closing")
				return
			}
		}
	}
}

// enqueueEvent drops the oldest queued event to make room for e when the
// client isn't draining the queue fast enough.
func enqueueEvent(queue chan *events.Event, e *events.Event) {
	select {
	case queue <- e:
	default:
		select {
		case <-queue:
		default:
		}
		select {
		case queue <- e:
		default:
		}
	}
}
