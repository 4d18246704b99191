package auction

import "fmt"

// Kind classifies why a command was refused.
type Kind string

const (
	// KindNotFound: a lobby, team or player reference does not exist.
	KindNotFound Kind = "not_found"
	// KindInvalidTransition: the command does not fit the current auction phase.
	KindInvalidTransition Kind = "invalid_transition"
	// KindConstraintViolation: the command breaks a budget, bid or roster rule.
	KindConstraintViolation Kind = "constraint_violation"
)

// Reason is the machine-readable cause a client can branch on.
type Reason string

const (
	ReasonLobbyNotFound      Reason = "lobby_not_found"
	ReasonTeamNotFound       Reason = "team_not_found"
	ReasonPlayerNotFound     Reason = "player_not_found"
	ReasonLobbyClosed        Reason = "lobby_closed"
	ReasonAuctionInProgress  Reason = "auction_in_progress"
	ReasonPlayerSold         Reason = "player_sold"
	ReasonPlayerNotCurrent   Reason = "player_not_current"
	ReasonNoBid              Reason = "no_bid"
	ReasonEngineRetired      Reason = "engine_retired"
	ReasonPaused             Reason = "paused"
	ReasonInvalidAmount      Reason = "invalid_amount"
	ReasonInsufficientPoints Reason = "insufficient_points"
	ReasonBidTooLow          Reason = "bid_too_low"
	ReasonRosterFull         Reason = "roster_full"
)

// Error is a rejected command. No state changed when one is returned.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Kind alone when target carries no Reason, otherwise on both.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Reason == "" {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

// Sentinels for errors.Is.
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition}
	ErrConstraintViolation = &Error{Kind: KindConstraintViolation}

	ErrLobbyNotFound      = &Error{Kind: KindNotFound, Reason: ReasonLobbyNotFound}
	ErrTeamNotFound       = &Error{Kind: KindNotFound, Reason: ReasonTeamNotFound}
	ErrPlayerNotFound     = &Error{Kind: KindNotFound, Reason: ReasonPlayerNotFound}
	ErrLobbyClosed        = &Error{Kind: KindInvalidTransition, Reason: ReasonLobbyClosed}
	ErrAuctionInProgress  = &Error{Kind: KindInvalidTransition, Reason: ReasonAuctionInProgress}
	ErrPlayerSold         = &Error{Kind: KindInvalidTransition, Reason: ReasonPlayerSold}
	ErrPlayerNotCurrent   = &Error{Kind: KindInvalidTransition, Reason: ReasonPlayerNotCurrent}
	ErrNoBid              = &Error{Kind: KindInvalidTransition, Reason: ReasonNoBid}
	ErrEngineRetired      = &Error{Kind: KindInvalidTransition, Reason: ReasonEngineRetired}
	ErrPaused             = &Error{Kind: KindConstraintViolation, Reason: ReasonPaused}
	ErrInvalidAmount      = &Error{Kind: KindConstraintViolation, Reason: ReasonInvalidAmount}
	ErrInsufficientPoints = &Error{Kind: KindConstraintViolation, Reason: ReasonInsufficientPoints}
	ErrBidTooLow          = &Error{Kind: KindConstraintViolation, Reason: ReasonBidTooLow}
	ErrRosterFull         = &Error{Kind: KindConstraintViolation, Reason: ReasonRosterFull}
)

// reject builds a refusal from a sentinel with a caller-facing message.
func reject(sentinel *Error, format string, args ...any) *Error {
	return &Error{
		Kind:    sentinel.Kind,
		Reason:  sentinel.Reason,
		Message: fmt.Sprintf(format, args...),
	}
}
