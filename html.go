/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/pokerbox/poker"
)

const robotsTxt = `User-agent: Amazonbot
Disallow: /

User-agent: Applebot-Extended
Disallow: /

User-agent: Bytespider
Disallow: /

User-agent: CCBot
Disallow: /

User-agent: ClaudeBot
Disallow: /

User-agent: Google-Extended
Disallow: /

User-agent: GPTBot
Disallow: /

User-agent: meta-externalagent
Disallow: /`

func serveHomePage(cfg *Config, catalog *poker.Catalog, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var body strings.Builder

		body.WriteString("<h1>Planning Poker</h1>")
		body.WriteString("<p>Create a session with <code>POST " + html.EscapeString(cfg.prefix) + "/poker/sessions</code>, or join one by its id.</p>")
		body.WriteString("<h2>Card sets</h2><ul>")
		for _, p := range catalog.Presets() {
			body.WriteString(fmt.Sprintf("<li><b>%s</b>: %s</li>", html.EscapeString(p.Name), html.EscapeString(p.Description)))
		}
		body.WriteString("</ul>")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := io.WriteString(w, newPage("Planning Poker", body.String()))
		if err != nil {
			errs <- err
		}
	}
}

// serveSessionPage is where a shared session link lands.
func serveSessionPage(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := poker.NormalizeSessionID(ps.ByName("id"))

		body := fmt.Sprintf(`<h1>Session</h1><p><code>%s</code></p><p>Join with <code>POST %s/poker/sessions/%s/join</code>.</p><img src="%s/poker/sessions/%s/qr" alt="QR code for session %s">`,
			html.EscapeString(id),
			html.EscapeString(cfg.prefix), html.EscapeString(id),
			html.EscapeString(cfg.prefix), html.EscapeString(id),
			html.EscapeString(id),
		)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := io.WriteString(w, newPage("Session "+id, body))
		if err != nil {
			errs <- err
		}
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(robotsTxt)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(robotsTxt))
		if err != nil {
			errs <- err

			return
		}
	}
}
