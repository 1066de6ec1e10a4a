package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 1 << 16

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logError("writeJSON", err)
	}
}

// writeError reports err with the status its class maps to. Unexpected
// errors have already been logged by the mutation and are not echoed back.
func writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "something went wrong"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return ErrBadRequest
}

func newRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Handle("/metrics", metricsHandler)
	r.Get("/ws", handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Compress(5, "application/json"))
		r.Use(middleware.NoCache)

		r.Post("/session", handleCreateSession)
		r.Post("/logout", handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Post("/games", handleCreateGame)
			r.Post("/games/join", handleJoinGame)

			r.Route("/games/{gameID}", func(r chi.Router) {
				r.Get("/", handleGetGame)
				r.Post("/leave", handleLeave)
				r.Post("/ready", handleReady)
				r.Post("/start", handleStart)
				r.Post("/reset", handleReset)
				r.Post("/actions", handleAction)
				r.Post("/shoot", handleShoot)
				r.Post("/investigate", handleInvestigate)
				r.Post("/convert", handleConvert)
				r.Post("/chat", handleChat)
				r.Get("/actions", handleListActions)
				r.Get("/seer", handleSeerResult)
				r.Get("/detective", handleDetectiveResult)
				r.Get("/voters", handleVoters)
				r.Get("/shots", handleShots)
			})
		})
	})
	return requestLogging(r)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := db.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleCreateGame(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	created, err := createGame(s.UserID, s.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func handleJoinGame(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RoomCode string `json:"roomCode"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	s := sessionFrom(r.Context())
	joined, err := joinGame(body.RoomCode, s.UserID, s.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joined)
}

func handleGetGame(w http.ResponseWriter, r *http.Request) {
	view, err := buildGameView(db, chi.URLParam(r, "gameID"), sessionFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// lobbyHandler adapts a lobby operation taking (gameID, userID) to a handler.
func lobbyHandler(op func(gameID, userID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := op(chi.URLParam(r, "gameID"), sessionFrom(r.Context()).UserID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

var (
	handleLeave = lobbyHandler(leaveGame)
	handleStart = lobbyHandler(startGame)
	handleReset = lobbyHandler(resetGame)
)

func handleReady(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Ready bool `json:"ready"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := setReady(chi.URLParam(r, "gameID"), sessionFrom(r.Context()).UserID, body.Ready); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type actionBody struct {
	Type      ActionType `json:"type"`
	TargetID  string     `json:"targetId"`
	TargetID1 string     `json:"targetId1"`
	TargetID2 string     `json:"targetId2"`
}

// actionHandler submits the body as the caller. A fixed type overrides the
// body's type for the dedicated endpoints.
func actionHandler(fixed ActionType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body actionBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, err)
			return
		}
		if fixed != "" {
			body.Type = fixed
		}
		target := body.TargetID
		if target == "" {
			target = body.TargetID1
		}
		res, err := actAs(chi.URLParam(r, "gameID"), sessionFrom(r.Context()).UserID, body.Type, target, body.TargetID2)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

var (
	handleAction      = actionHandler("")
	handleShoot       = actionHandler(ActionShoot)
	handleInvestigate = actionHandler(ActionInvestigate)
	handleConvert     = actionHandler(ActionConvert)
)

func handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string  `json:"content"`
		Channel Channel `json:"channel"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	msg, err := sendChat(chi.URLParam(r, "gameID"), sessionFrom(r.Context()).UserID, body.Content, body.Channel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// seatOf loads the game and the caller's seat in it.
func seatOf(r *http.Request) (Game, Player, error) {
	gameID := chi.URLParam(r, "gameID")
	game, err := getGame(db, gameID)
	if err != nil {
		return Game{}, Player{}, err
	}
	player, err := getPlayerByUser(db, gameID, sessionFrom(r.Context()).UserID)
	return game, player, err
}

// handleListActions lists a turn's ledger. While the game runs a player
// sees only their own entries.
func handleListActions(w http.ResponseWriter, r *http.Request) {
	game, player, err := seatOf(r)
	if err != nil {
		writeError(w, err)
		return
	}
	turn := game.TurnNumber
	if v := r.URL.Query().Get("turn"); v != "" {
		if turn, err = strconv.Atoi(v); err != nil {
			writeError(w, ErrBadRequest)
			return
		}
	}
	actions, err := getActionsForTurn(db, game.ID, turn)
	if err != nil {
		logError("handleListActions", err)
		writeError(w, err)
		return
	}
	out := []Action{}
	for _, a := range actions {
		if game.Status == StatusEnded || a.ActorID == player.ID {
			out = append(out, a)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func handleSeerResult(w http.ResponseWriter, r *http.Request) {
	game, player, err := seatOf(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := getSeerResult(db, game.ID, player.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func handleDetectiveResult(w http.ResponseWriter, r *http.Request) {
	game, player, err := seatOf(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := getDetectiveResult(db, game.ID, player.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func handleVoters(w http.ResponseWriter, r *http.Request) {
	voters, err := getVotersThisTurn(db, chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, voters)
}

func handleShots(w http.ResponseWriter, r *http.Request) {
	game, player, err := seatOf(r)
	if err != nil {
		writeError(w, err)
		return
	}
	n, err := getShootCount(db, game.ID, player.ID, game.TurnNumber)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"shots": n, "turn": game.TurnNumber})
}
