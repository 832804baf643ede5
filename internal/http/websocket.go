package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"charity/internal/core"
	applog "charity/internal/log"
	"charity/internal/services"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsPongWait   = wsPingPeriod + 10*time.Second
)

// streamFeed opens a feed, upgrades the connection and writes every value
// as a JSON text message. The feed is cancelled when the peer goes away.
// Opening errors are reported as ordinary HTTP errors before the upgrade.
func streamFeed[T any](s *Server, w http.ResponseWriter, r *http.Request, open func(ctx context.Context) (*services.Feed[T], error)) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	feed, err := open(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer feed.Cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	logger := applog.FromContext(ctx)
	logger.DebugContext(ctx, "Websocket feed opened", applog.FieldPath, r.URL.Path)

	// The read loop only exists to notice close frames and dead peers.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case v, ok := <-feed.C:
			if !ok {
				code, text := websocket.CloseNormalClosure, "feed ended"
				if err := feed.Err(); err != nil {
					logger.WarnContext(ctx, "Websocket feed failed", applog.FieldError, err)
					code, text = websocket.CloseInternalServerErr, "feed failed"
				}
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(v); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) wsCampaigns(w http.ResponseWriter, r *http.Request) {
	category := categoryParam(r)
	streamFeed(s, w, r, func(ctx context.Context) (*services.Feed[[]campaignView], error) {
		feed, err := s.deps.Catalog.ListCampaigns(ctx, category)
		if err != nil {
			return nil, err
		}
		return services.MapFeed(ctx, feed, newCampaignViews), nil
	})
}

func (s *Server) wsCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	streamFeed(s, w, r, func(ctx context.Context) (*services.Feed[*campaignView], error) {
		feed, err := s.deps.Catalog.CampaignDetails(ctx, id)
		if err != nil {
			return nil, err
		}
		return services.MapFeed(ctx, feed, newCampaignDetailView), nil
	})
}

func (s *Server) wsMyDonations(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	streamFeed(s, w, r, func(ctx context.Context) (*services.Feed[[]core.Donation], error) {
		return s.deps.Catalog.UserDonations(ctx, userID)
	})
}

func (s *Server) wsMySummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	streamFeed(s, w, r, func(ctx context.Context) (*services.Feed[summaryResponse], error) {
		feed, err := s.deps.Summary.WatchSummary(ctx, userID)
		if err != nil {
			return nil, err
		}
		return services.MapFeed(ctx, feed, newSummaryResponse), nil
	})
}
