package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jason-s-yu/auctionarena/internal/auction"
	"github.com/jason-s-yu/auctionarena/internal/lobby"
)

const seatCookie = "seat_token"

var (
	errUnauthorized = errors.New("missing or invalid seat token")
	errForbidden    = errors.New("seat does not allow this action")
	errBadRequest   = errors.New("bad request")
)

// extractCookieToken extracts a named cookie value from "Cookie" header, or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// seatToken looks for the token in the Authorization header, then the
// seat_token cookie, then the token query parameter (browsers cannot set
// headers on a websocket upgrade).
func seatToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if tok := extractCookieToken(r.Header.Get("Cookie"), seatCookie); tok != "" {
		return tok
	}
	return r.URL.Query().Get("token")
}

func lobbyParam(r *http.Request) string {
	return strings.ToUpper(chi.URLParam(r, "lobbyId"))
}

func int64Param(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, badRequest("invalid %s", name)
	}
	return v, nil
}

type requestError struct {
	err error
	msg string
}

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &requestError{err: errBadRequest, msg: fmt.Sprintf(format, args...)}
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("bad request payload: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// classify maps an error to its HTTP status and body. ok is false for
// unexpected failures, which callers log.
func classify(err error) (status int, body ErrorBody, ok bool) {
	var ae *auction.Error
	switch {
	case errors.As(err, &ae):
		body = ErrorBody{Kind: string(ae.Kind), Reason: string(ae.Reason), Message: ae.Error()}
		switch ae.Kind {
		case auction.KindNotFound:
			return http.StatusNotFound, body, true
		case auction.KindInvalidTransition:
			return http.StatusConflict, body, true
		default:
			return http.StatusUnprocessableEntity, body, true
		}
	case errors.Is(err, errBadRequest), errors.Is(err, lobby.ErrInvalidRequest):
		return http.StatusBadRequest, ErrorBody{Kind: "bad_request", Message: err.Error()}, true
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, ErrorBody{Kind: "unauthorized", Message: err.Error()}, true
	case errors.Is(err, errForbidden), errors.Is(err, lobby.ErrWrongPassword):
		return http.StatusForbidden, ErrorBody{Kind: "forbidden", Message: err.Error()}, true
	case errors.Is(err, lobby.ErrNotRegistered):
		return http.StatusNotFound, ErrorBody{Kind: "not_found", Reason: "not_registered", Message: err.Error()}, true
	}
	return http.StatusInternalServerError, ErrorBody{Kind: "internal", Message: "internal server error"}, false
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body, ok := classify(err)
	if !ok {
		s.Logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeJSON(w, status, map[string]ErrorBody{"error": body})
}
