// internal/handlers/api_server.go
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/auctionarena/internal/broadcast"
	"github.com/jason-s-yu/auctionarena/internal/lobby"
	"github.com/jason-s-yu/auctionarena/internal/metrics"
	"github.com/jason-s-yu/auctionarena/internal/middleware"
)

// DefaultSubscriberBuffer is the per-websocket event buffer.
const DefaultSubscriberBuffer = 64

// Server holds what the HTTP and websocket handlers share.
type Server struct {
	Coordinator *lobby.Coordinator
	Hub         *broadcast.Hub
	Metrics     *metrics.Collector
	Logger      *logrus.Logger

	// AllowedOrigins is used for CORS and websocket origin checks in
	// production. Outside production any origin is accepted.
	AllowedOrigins   []string
	Production       bool
	SubscriberBuffer int
}

func (s *Server) originPatterns() []string {
	if s.Production && len(s.AllowedOrigins) > 0 {
		return s.AllowedOrigins
	}
	return []string{"https://*", "http://*"}
}

// NewRouter builds the chi router with every route of the service.
func (s *Server) NewRouter() http.Handler {
	if s.SubscriberBuffer <= 0 {
		s.SubscriberBuffer = DefaultSubscriberBuffer
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.LogMiddleware(s.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.originPatterns(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())

	r.Route("/lobby", func(r chi.Router) {
		r.With(chimw.Timeout(10*time.Second)).Post("/", s.CreateLobbyHandler)
		r.Post("/join", s.JoinLobbyHandler)

		r.Route("/{lobbyId}", func(r chi.Router) {
			r.Post("/watch", s.WatchLobbyHandler)
			r.Get("/ws", s.LobbyWSHandler)

			r.Group(func(r chi.Router) {
				r.Use(s.requireSeat)
				r.Get("/players", s.ListPlayersHandler)
				r.Get("/players/{playerId}/bids", s.BidHistoryHandler)
				r.Get("/teams/{teamId}/dashboard", s.TeamDashboardHandler)
				r.Get("/auction/state", s.AuctionStateHandler)
				r.Post("/auction/bid", s.commandHandler(CommandBid))

				r.Group(func(r chi.Router) {
					r.Use(requireHost)
					r.Get("/dashboard", s.HostDashboardHandler)
					r.Post("/players", s.AddPlayerHandler)
					r.Post("/players/import", s.ImportPlayersHandler)
					r.Post("/archive", s.ArchiveLobbyHandler)
					r.Post("/auction/start", s.commandHandler(CommandStart))
					r.Post("/auction/confirm", s.commandHandler(CommandConfirm))
					r.Post("/auction/skip", s.commandHandler(CommandSkip))
					r.Post("/auction/pause", s.commandHandler(CommandPause))
					r.Post("/auction/points", s.commandHandler(CommandPoints))
				})
			})
		})
	})
	return r
}
