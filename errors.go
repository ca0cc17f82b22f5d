/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Seednode/pokerbox/poker"
)

// setupLogging lowers the global level once --verbose is known.
func setupLogging(cfg *Config) {
	if cfg.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Info().Msgf(format, args...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body{height:100%;width:100%;margin:0;font-family:sans-serif;}main{padding:2rem;}code{font-size:1.5rem;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", html.EscapeString(title)))
	htmlBody.WriteString(fmt.Sprintf("<body><main>%s</main></body></html>", body))

	return htmlBody.String()
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// errorStatus maps domain errors onto HTTP statuses. Anything unknown is a
// server fault.
func errorStatus(err error) (int, ErrorResponse) {
	var verr *poker.ValidationError

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrorResponse{Error: "validation", Message: verr.Message}
	case errors.Is(err, poker.ErrInvalidVote):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_vote", Message: err.Error()}
	case errors.Is(err, poker.ErrNotHost):
		return http.StatusForbidden, ErrorResponse{Error: "not_host", Message: err.Error()}
	case errors.Is(err, poker.ErrNoSession), errors.Is(err, poker.ErrUnknownUser):
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()}
	case errors.Is(err, poker.ErrInvalidState):
		return http.StatusConflict, ErrorResponse{Error: "invalid_state", Message: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: "An error has occurred. Please try again."}
	}
}
