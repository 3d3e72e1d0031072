package api

import (
	"net/http"

	"leaguesim/internal/contract"
	"leaguesim/internal/draft"
	"leaguesim/internal/league"
)

type negotiationStart struct {
	Pid       int  `json:"pid"`
	Tid       *int `json:"tid,omitempty"`
	Resigning bool `json:"resigning"`
}

func (s *Server) handleNegotiationStart(w http.ResponseWriter, r *http.Request) {
	var in negotiationStart
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var out league.Negotiation
	err := s.write(r.Context(), []string{"playerMovement"}, func(c *league.Context) error {
		tid := c.Settings.UserTid
		if in.Tid != nil {
			tid = *in.Tid
		}
		if !c.Settings.IsUserTeam(tid) {
			return &league.ValidationError{Messages: []string{"you can only negotiate for your own team"}}
		}
		var err error
		out, err = contract.Start(r.Context(), c, in.Pid, tid, in.Resigning)
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

type offer struct {
	Amount float64 `json:"amount"`
	Exp    int     `json:"exp"`
}

func (s *Server) handleNegotiationOffer(w http.ResponseWriter, r *http.Request) {
	pid, err := intParam(r, "pid")
	if err != nil {
		writeError(w, http.StatusBadRequest, "pid must be a number")
		return
	}
	var in offer
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var out league.Negotiation
	err = s.write(r.Context(), nil, func(c *league.Context) error {
		out, err = contract.Offer(r.Context(), c, pid, in.Amount, in.Exp)
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleNegotiationAccept(w http.ResponseWriter, r *http.Request) {
	pid, err := intParam(r, "pid")
	if err != nil {
		writeError(w, http.StatusBadRequest, "pid must be a number")
		return
	}
	var out league.Player
	err = s.write(r.Context(), []string{"playerMovement"}, func(c *league.Context) error {
		out, err = contract.Accept(r.Context(), c, pid)
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pid": out.Pid, "tid": out.Tid, "contract": out.Contract})
}

func (s *Server) handleNegotiationCancel(w http.ResponseWriter, r *http.Request) {
	pid, err := intParam(r, "pid")
	if err != nil {
		writeError(w, http.StatusBadRequest, "pid must be a number")
		return
	}
	err = s.write(r.Context(), []string{"playerMovement"}, func(c *league.Context) error {
		return contract.Cancel(r.Context(), c, pid)
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func inDraft(c *league.Context) error {
	if p := c.Phase(); p != league.PhaseDraft && p != league.PhaseFantasyDraft {
		return league.ErrWrongPhase
	}
	return nil
}

type draftAuto struct {
	UntilEnd bool `json:"untilEnd"`
}

func (s *Server) handleDraftAuto(w http.ResponseWriter, r *http.Request) {
	var in draftAuto
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var drafted []int
	err := s.write(r.Context(), []string{"playerMovement", "draft"}, func(c *league.Context) error {
		if err := inDraft(c); err != nil {
			return err
		}
		var err error
		drafted, err = draft.UntilUserOrEnd(r.Context(), c, in.UntilEnd)
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drafted": drafted})
}

type draftPick struct {
	Pid int `json:"pid"`
}

func (s *Server) handleDraftPick(w http.ResponseWriter, r *http.Request) {
	var in draftPick
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := s.write(r.Context(), []string{"playerMovement", "draft"}, func(c *league.Context) error {
		if err := inDraft(c); err != nil {
			return err
		}
		return draft.UserPick(r.Context(), c, in.Pid)
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pid": in.Pid})
}
