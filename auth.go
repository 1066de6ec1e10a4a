package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const sessionCookieName = "werewolf_session"

// Session is a guest identity: an opaque token bound to a user id and display name.
type Session struct {
	Token  string `db:"token" json:"-"`
	UserID string `db:"user_id" json:"userId"`
	Name   string `db:"name" json:"name"`
}

type sessionKey struct{}

func createSession(q sqlx.Execer, name string) (Session, error) {
	name, err := cleanName(name)
	if err != nil {
		return Session{}, err
	}
	s := Session{Token: uuid.NewString(), UserID: newID(), Name: name}
	if _, err := q.Exec(`INSERT INTO session (token, user_id, name) VALUES (?, ?, ?)`,
		s.Token, s.UserID, s.Name); err != nil {
		return Session{}, err
	}
	return s, nil
}

func getSession(q sqlx.Queryer, token string) (Session, error) {
	var s Session
	err := sqlx.Get(q, &s, `SELECT token, user_id, name FROM session WHERE token = ?`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNoSession
	}
	return s, err
}

func sessionFromRequest(r *http.Request) (Session, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return Session{}, ErrNoSession
	}
	return getSession(db, cookie.Value)
}

func setSessionCookie(w http.ResponseWriter, s Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    s.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// requireSession rejects requests without a valid guest session and puts
// the session in the request context.
func requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := sessionFromRequest(r)
		if err != nil {
			if !errors.Is(err, ErrNoSession) {
				logError("requireSession", err)
			}
			DebugLog("requireSession", "Rejected %s %s: no session", r.Method, r.URL.Path)
			writeError(w, ErrNoSession)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, s)))
	})
}

func sessionFrom(ctx context.Context) Session {
	s, _ := ctx.Value(sessionKey{}).(Session)
	return s
}

func handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	s, err := createSession(db, body.Name)
	if err != nil {
		if !errors.Is(err, ErrInvalidName) {
			logError("handleCreateSession", err)
		}
		writeError(w, err)
		return
	}
	log.Printf("New guest session: name='%s', user=%s", s.Name, s.UserID)
	setSessionCookie(w, s)
	writeJSON(w, http.StatusCreated, s)
}

func handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if _, err := db.Exec(`DELETE FROM session WHERE token = ?`, cookie.Value); err != nil {
			logError("handleLogout", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}
