package handler

import (
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
)

// WebsocketHandler relays the PMS notifications socket. The load balancer
// terminates the client connection, dials PMS and copies frames both ways
// until either side closes.
func (s *Service) WebsocketHandler(w http.ResponseWriter, r *http.Request) {
	target := url.URL{
		Scheme:   "ws",
		Host:     s.plexURL.Host,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}
	if s.plexURL.Scheme == "https" {
		target.Scheme = "wss"
	}

	upstream, resp, err := websocket.DefaultDialer.Dial(target.String(), nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", target.String()).Msg("websocket dial failed")
		status := http.StatusBadGateway
		if resp != nil {
			status = resp.StatusCode
		}
		http.Error(w, "websocket unavailable", status)
		return
	}
	defer func() {
		_ = upstream.Close()
	}()

	client, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer func() {
		_ = client.Close()
	}()

	errc := make(chan error, 2)
	go relayFrames(client, upstream, errc)
	go relayFrames(upstream, client, errc)
	<-errc
}

func relayFrames(dst, src *websocket.Conn, errc chan<- error) {
	for {
		messageType, payload, err := src.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		if err = dst.WriteMessage(messageType, payload); err != nil {
			errc <- err
			return
		}
	}
}
