package main

import (
	"errors"
	"net/http"
)

// Not-found errors
var (
	ErrGameNotFound   = errors.New("game not found")
	ErrPlayerNotFound = errors.New("you are not in this game")
	ErrTargetNotFound = errors.New("target not found")
	ErrRoomNotFound   = errors.New("no open game with that room code")
)

var ErrNoSession = errors.New("no session, create one first")

// Precondition errors: the mutation is rejected and nothing is written.
var (
	ErrGameNotActive      = errors.New("game is not active")
	ErrGameNotInLobby     = errors.New("game has already started")
	ErrGameNotEnded       = errors.New("game is not finished yet")
	ErrGameFull           = errors.New("game is full")
	ErrPlayerCount        = errors.New("between 5 and 12 players are needed to start")
	ErrNotHost            = errors.New("only the host can do that")
	ErrWrongPhase         = errors.New("that action is not allowed in this phase")
	ErrWrongRole          = errors.New("your role cannot do that")
	ErrActorDead          = errors.New("dead players cannot act")
	ErrActorAlive         = errors.New("only available once you have been eliminated")
	ErrTargetDead         = errors.New("target is already dead")
	ErrFriendlyFire       = errors.New("wolves cannot target their own pack")
	ErrRepeatProtection   = errors.New("cannot protect the same player two nights in a row")
	ErrNoBullets          = errors.New("no bullets left")
	ErrAlreadyShot        = errors.New("you have already fired this turn")
	ErrSelfTarget         = errors.New("you cannot target yourself")
	ErrSameTargets        = errors.New("choose two different players")
	ErrBiteUsed           = errors.New("your bite has already been used")
	ErrKillConvertClash   = errors.New("you already chose to bite tonight")
	ErrRevengeTaken       = errors.New("you have already taken your revenge shot")
	ErrUnsupportedAction  = errors.New("unsupported action type")
	ErrMuted              = errors.New("you have been silenced until nightfall")
	ErrChannelForbidden   = errors.New("you cannot write to that channel now")
	ErrEmptyMessage       = errors.New("message must be between 1 and 500 characters")
	ErrInvalidName        = errors.New("name is required")
	ErrRoomCodesExhausted = errors.New("could not allocate a free room code")
	ErrBadRequest         = errors.New("malformed request")
)

// Configuration errors: these mean the role tables are wrong, not that the user did something wrong.
var (
	ErrUnsupportedPlayerCount = errors.New("no role distribution for this player count")
	ErrRoleCountMismatch      = errors.New("role count does not match player count")
)

func isConfigError(err error) bool {
	return errors.Is(err, ErrUnsupportedPlayerCount) || errors.Is(err, ErrRoleCountMismatch)
}

// statusForError maps engine errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrGameNotFound), errors.Is(err, ErrPlayerNotFound),
		errors.Is(err, ErrTargetNotFound), errors.Is(err, ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrUnsupportedAction), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotHost):
		return http.StatusForbidden
	case isConfigError(err):
		return http.StatusInternalServerError
	case isRejection(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

var rejections = []error{
	ErrGameNotActive, ErrGameNotInLobby, ErrGameNotEnded, ErrGameFull, ErrPlayerCount, ErrWrongPhase,
	ErrWrongRole, ErrActorDead, ErrActorAlive, ErrTargetDead, ErrFriendlyFire,
	ErrRepeatProtection, ErrNoBullets, ErrAlreadyShot, ErrSelfTarget, ErrSameTargets,
	ErrBiteUsed, ErrKillConvertClash, ErrRevengeTaken, ErrMuted, ErrChannelForbidden,
}

// isRejection reports whether err is a user-facing precondition violation.
func isRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
