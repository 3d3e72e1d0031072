package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"leaguesim/internal/league"
	"leaguesim/internal/phase"
	"leaguesim/internal/sim"

	"github.com/go-chi/chi/v5/middleware"
)

const (
	ActionStop   = "stop"
	maxReplays   = 256
	sseKeepalive = 25 * time.Second
)

type playRequest struct {
	Action     string `json:"action"`
	PlayByPlay bool   `json:"playByPlay"`
}

type playResponse struct {
	sim.Summary
	PhaseName string `json:"phaseName"`
	Replayed  bool   `json:"replayed,omitempty"`
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var in playRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	action := strings.TrimSpace(in.Action)
	if action == ActionStop {
		if err := s.driver.Stop(r.Context()); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"stopping": s.driver.Running()})
		return
	}

	key := idempotencyKey(r)
	if sum, ok := s.replayed(key); ok {
		writeJSON(w, http.StatusOK, playResponse{Summary: sum, PhaseName: sum.Phase.String(), Replayed: true})
		return
	}

	days, err := s.driver.DaysFor(r.Context(), action)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	sum, err := s.driver.Play(r.Context(), sim.Request{Days: days, UserInitiated: true, PlayByPlay: in.PlayByPlay})
	s.cache.Flush(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.remember(key, sum)
	s.log.Info("played", "action", action, "days", sum.Days, "games", sum.Games, "phase", sum.Phase.String(), "request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, http.StatusOK, playResponse{Summary: sum, PhaseName: sum.Phase.String()})
}

func (s *Server) replayed(key string) (sim.Summary, bool) {
	if strings.TrimSpace(key) == "" {
		return sim.Summary{}, false
	}
	s.replayMu.Lock()
	defer s.replayMu.Unlock()
	sum, ok := s.replays[key]
	return sum, ok
}

func (s *Server) remember(key string, sum sim.Summary) {
	if strings.TrimSpace(key) == "" {
		return
	}
	s.replayMu.Lock()
	defer s.replayMu.Unlock()
	if len(s.replays) >= maxReplays {
		clear(s.replays)
	}
	s.replays[key] = sum
}

type phaseRequest struct {
	Phase string `json:"phase"`
	// ReturnTo is only read when starting a fantasy draft.
	ReturnTo string `json:"returnTo,omitempty"`
}

func (s *Server) handlePhase(w http.ResponseWriter, r *http.Request) {
	var in phaseRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	target, err := league.ParsePhase(in.Phase)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var extra phase.Extra
	if in.ReturnTo != "" {
		back, err := league.ParsePhase(in.ReturnTo)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		extra.ReturnTo = &back
	}
	if s.driver.Running() {
		writeDomainError(w, league.ErrGamesInProgress)
		return
	}
	if err := s.phases.NewPhase(r.Context(), target, extra); err != nil {
		writeDomainError(w, err)
		return
	}
	s.cache.Flush(r.Context())
	cur, season, err := s.phases.Current(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"phase": cur, "phaseName": cur.String(), "season": season})
}

func (s *Server) handleAbort(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"aborted": s.phases.Abort()})
}

// handleUpdates streams hub updates as server-sent events.
func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "updates are not enabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	updates, unsubscribe := s.hub.Subscribe(32)
	defer unsubscribe()

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(u)
			if err != nil {
				s.log.Warn("marshal update failed", "err", err)
				continue
			}
			fmt.Fprintf(w, "event: update\ndata: %s\n\n", data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
