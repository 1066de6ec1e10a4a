package main

import (
	"encoding/json"
	"log"
	"net/http"
)

// Toast is a notification pushed to a single client.
type Toast struct {
	Type    string `json:"type"`
	Level   string `json:"level"` // "error", "warning", "success", "info"
	Message string `json:"message"`
}

func renderToast(level, message string) []byte {
	b, err := json.Marshal(Toast{Type: "toast", Level: level, Message: message})
	if err != nil {
		log.Printf("Failed to render toast: %v", err)
		return nil
	}
	return b
}

// sendErrorToast tells one client why their request was refused. Unexpected
// failures are reported generically; the detail stays in the server log.
func sendErrorToast(client *Client, err error) {
	message := err.Error()
	if statusForError(err) == http.StatusInternalServerError {
		message = "Something went wrong"
	}
	if b := renderToast("error", message); b != nil {
		client.send(b)
	}
}
