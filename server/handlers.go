package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	maidcommand "github.com/slack-lackey/maid-server/command"
	"github.com/slack-lackey/maid-server/core"
)

const (
	oauthStateCookie = "maid_oauth_state"
	addToSlackImage  = "https://platform.slack-edge.com/img/add_to_slack.png"
)

func (s *Server) handleLanding(w http.ResponseWriter, _ *http.Request) {
	writeHTML(w, http.StatusOK, fmt.Sprintf(
		`<a href="/auth/slack"><img alt="Add to Slack" height="40" width="139" src="%[1]s" srcset="%[1]s 1x, %[2]s 2x" /></a>`,
		addToSlackImage,
		strings.TrimSuffix(addToSlackImage, ".png")+"@2x.png",
	))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

func (s *Server) checkState(w http.ResponseWriter, r *http.Request, state string) error {
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil {
		if state != "" {
			return errors.New("oauth state cookie missing")
		}
		return nil
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/auth", MaxAge: -1})
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		return errors.New("oauth state mismatch")
	}
	return nil
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if s.deps.OAuth == nil {
		writeHTML(w, http.StatusNotFound, "<p>Installation is not configured.</p>")
		return
	}
	state := uuid.NewString()
	target, err := s.deps.OAuth.AuthorizeURL(state)
	if err != nil {
		core.LogError(r.Context(), s.logger, "build authorize url failed", core.ErrorFields(nil, err))
		s.installFailed(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

// handleCallback completes an install. A callback carrying state started at
// /auth/slack and must present the matching cookie. Installs from the app
// directory arrive with neither and skip the check.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.deps.OAuth == nil || s.deps.Installer == nil {
		s.installFailed(w, fmt.Errorf("installation is not configured"))
		return
	}
	query := r.URL.Query()
	if denied := strings.TrimSpace(query.Get("error")); denied != "" {
		s.installFailed(w, fmt.Errorf("authorization denied: %s", denied))
		return
	}
	if err := s.checkState(w, r, query.Get("state")); err != nil {
		s.installFailed(w, err)
		return
	}

	installation, err := s.deps.OAuth.Exchange(ctx, query.Get("code"))
	if err != nil {
		core.LogError(ctx, s.logger, "oauth exchange failed", core.ErrorFields(nil, err))
		s.installFailed(w, err)
		return
	}
	result, err := s.deps.Installer.InstallTenant(ctx, maidcommand.InstallTenantMessage{
		TenantID:    installation.TenantID,
		TeamName:    installation.TeamName,
		AccessToken: installation.AccessToken,
		Source:      "oauth",
	})
	if err != nil {
		core.LogError(ctx, s.logger, "tenant install failed", core.ErrorFields(map[string]any{
			"tenant_id": installation.TenantID,
		}, err))
		s.installFailed(w, err)
		return
	}
	core.LogInfo(ctx, s.logger, "workspace installed", map[string]any{"tenant_id": result.TenantID})
	writeHTML(w, http.StatusOK, fmt.Sprintf("<p>%s was successfully installed on your team.</p>", html.EscapeString(s.appName)))
}

func (s *Server) installFailed(w http.ResponseWriter, err error) {
	writeHTML(w, http.StatusInternalServerError, fmt.Sprintf(
		"<p>%s failed to install</p> <pre>%s</pre>",
		html.EscapeString(s.appName),
		html.EscapeString(err.Error()),
	))
}

// handleInbound reads the raw body for signature verification and hands the
// request to the dispatcher. Verified requests are always answered with the
// dispatcher's status.
func (s *Server) handleInbound(surface string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.deps.Dispatcher == nil {
			http.Error(w, "inbound dispatch is not configured", http.StatusServiceUnavailable)
			return
		}
		limit := s.cfg.MaxBodyBytes
		if limit <= 0 {
			limit = 1 << 20
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
		if err != nil {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}

		result, err := s.deps.Dispatcher.Dispatch(ctx, core.InboundRequest{
			Surface:  surface,
			Headers:  flattenHeaders(r.Header),
			Body:     body,
			Metadata: map[string]any{"request_id": RequestID(ctx)},
		})
		status := result.StatusCode
		if status == 0 {
			status = http.StatusOK
			if err != nil {
				status = core.HTTPStatus(err)
			}
		}
		if err != nil {
			fields := core.ErrorFields(map[string]any{"surface": surface, "status": status}, err)
			if core.IsSignatureInvalid(err) {
				core.LogWarn(ctx, s.logger, "rejected unsigned request", fields)
			} else {
				core.LogError(ctx, s.logger, "inbound dispatch failed", fields)
			}
		}

		if len(result.Body) == 0 {
			w.WriteHeader(status)
			return
		}
		contentType := result.ContentType
		if contentType == "" {
			contentType = "text/plain"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write(result.Body)
	}
}

func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key := range header {
		out[key] = header.Get(key)
	}
	return out
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
