package handlers

import (
	"context"
	"net/http"

	"github.com/jason-s-yu/auctionarena/internal/auth"
)

type seatKey struct{}

func withSeat(ctx context.Context, c *auth.SeatClaims) context.Context {
	return context.WithValue(ctx, seatKey{}, c)
}

// seatFrom returns the claims stored by requireSeat.
func seatFrom(ctx context.Context) *auth.SeatClaims {
	c, _ := ctx.Value(seatKey{}).(*auth.SeatClaims)
	return c
}

// authenticate parses the request's seat token and checks it belongs to the
// lobby in the URL.
func (s *Server) authenticate(r *http.Request) (*auth.SeatClaims, error) {
	tok := seatToken(r)
	if tok == "" {
		return nil, errUnauthorized
	}
	claims, err := s.Coordinator.Signer().ParseSeatToken(tok)
	if err != nil {
		return nil, errUnauthorized
	}
	if claims.LobbyID != lobbyParam(r) {
		return nil, errForbidden
	}
	return claims, nil
}

func (s *Server) requireSeat(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.authenticate(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withSeat(r.Context(), claims)))
	})
}

func requireHost(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c := seatFrom(r.Context()); c == nil || !c.IsHost() {
			status, body, _ := classify(errForbidden)
			writeJSON(w, status, map[string]ErrorBody{"error": body})
			return
		}
		next.ServeHTTP(w, r)
	})
}
