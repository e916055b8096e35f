package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/hashicorp-forge/rdocs/internal/server"
	"github.com/hashicorp-forge/rdocs/pkg/notifications"
)

const (
	livePingInterval = 20 * time.Second
	liveWriteTimeout = 10 * time.Second
)

// LiveHandler upgrades the request to a websocket and forwards every update
// published for the document until the client goes away. Each message is the
// published payload unchanged.
func LiveHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseDocumentID(r, false)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if srv.Subscriber == nil {
			respondError(w, http.StatusServiceUnavailable, "Live updates not available")
			return
		}

		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns:  originPatterns(srv),
			CompressionMode: websocket.CompressionDisabled,
		})
		if err != nil {
			srv.Logger.Warn("error accepting websocket", "doc_id", id, "error", err)
			return
		}
		defer ws.CloseNow()

		// Clients never send data; CloseRead handles control frames and
		// cancels ctx once the peer closes.
		ctx := ws.CloseRead(r.Context())

		go func() {
			t := time.NewTicker(livePingInterval)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					_ = ws.Ping(ctx)
				case <-ctx.Done():
					return
				}
			}
		}()

		srv.Logger.Debug("live subscriber connected", "doc_id", id)

		err = srv.Subscriber.Listen(ctx, id, func(u notifications.Update) error {
			wctx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
			defer cancel()
			return ws.Write(wctx, websocket.MessageText, []byte(u.Payload))
		})
		switch {
		case err == nil:
			ws.Close(websocket.StatusNormalClosure, "bye")
		case errors.Is(err, notifications.ErrSubscriptionClosed):
			ws.Close(websocket.StatusGoingAway, "subscription closed")
		case ctx.Err() != nil:
			// Peer went away while a write was in flight.
		default:
			srv.Logger.Error("error streaming updates", "doc_id", id, "error", err)
			ws.Close(websocket.StatusInternalError, "subscription failed")
		}

		srv.Logger.Debug("live subscriber disconnected", "doc_id", id)
	})
}

func originPatterns(srv server.Server) []string {
	if srv.Config != nil && srv.Config.Server != nil && len(srv.Config.Server.CORSOrigins) > 0 {
		return srv.Config.Server.CORSOrigins
	}
	return []string{"*"}
}
