// Package httpapi exposes the evaluation service over HTTP. Two lookup
// paths exist: /v1/evaluate/{account} takes a game account id directly,
// /v1/roles/{user} resolves a chat user through the link store first.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"skyvault.gg/internal/persistence/linkdb"
	"skyvault.gg/internal/protocol"
	"skyvault.gg/internal/service"
	"skyvault.gg/internal/upstream"
)

// Evaluator runs one full evaluation pass. *service.Evaluator satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, accountID string) (protocol.EvaluateResponse, error)
}

// LinkStore resolves chat users to game accounts. *linkdb.DB satisfies it.
type LinkStore interface {
	GetLink(ctx context.Context, chatUserID string) (linkdb.Link, error)
	GetBan(ctx context.Context, accountID string) (linkdb.Ban, bool, error)
}

type Server struct {
	eval  Evaluator
	links LinkStore
	log   *log.Logger
}

// NewServer builds the API surface. links may be nil; /v1/roles then always
// reports unlinked.
func NewServer(eval Evaluator, links LinkStore, logger *log.Logger) *Server {
	return &Server{eval: eval, links: links, log: logger}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/evaluate/", s.handleEvaluate)
	mux.HandleFunc("/v1/roles/", s.handleRoles)
	return mux
}

func (s *Server) handleEvaluate(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	accountID := strings.TrimPrefix(r.URL.Path, "/v1/evaluate/")
	if !validAccountID(accountID) {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "malformed account id")
		return
	}
	s.evaluate(rw, r, accountID)
}

func (s *Server) handleRoles(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	if userID == "" || strings.Contains(userID, "/") {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "malformed user id")
		return
	}
	if s.links == nil {
		writeError(rw, http.StatusNotFound, protocol.ErrNotLinked, "no link store configured")
		return
	}

	link, err := s.links.GetLink(r.Context(), userID)
	if errors.Is(err, linkdb.ErrNotFound) {
		writeError(rw, http.StatusNotFound, protocol.ErrNotLinked, "user has no linked account")
		return
	}
	if err != nil {
		s.logf("link lookup %s: %v", userID, err)
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, "link lookup failed")
		return
	}
	if ban, banned, err := s.links.GetBan(r.Context(), link.AccountID); err != nil {
		s.logf("ban lookup %s: %v", link.AccountID, err)
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, "ban lookup failed")
		return
	} else if banned {
		writeError(rw, http.StatusForbidden, protocol.ErrBanned, "account is banned: "+ban.Reason)
		return
	}

	s.evaluate(rw, r, link.AccountID)
}

func (s *Server) evaluate(rw http.ResponseWriter, r *http.Request, accountID string) {
	resp, err := s.eval.Evaluate(r.Context(), accountID)
	if err != nil {
		s.writeEvaluateError(rw, accountID, err)
		return
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) writeEvaluateError(rw http.ResponseWriter, accountID string, err error) {
	if errors.Is(err, service.ErrNoProfiles) {
		writeError(rw, http.StatusNotFound, protocol.ErrNoProfiles, "account has no profiles")
		return
	}
	var se *upstream.StatusError
	if errors.As(err, &se) {
		if se.Status == http.StatusTooManyRequests {
			writeError(rw, http.StatusServiceUnavailable, protocol.ErrRateLimit, "upstream rate limited")
			return
		}
		s.logf("evaluate %s: %v", accountID, err)
		writeError(rw, http.StatusBadGateway, protocol.ErrUpstream, "upstream request failed")
		return
	}
	s.logf("evaluate %s: %v", accountID, err)
	writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, "evaluation failed")
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

// validAccountID accepts the 32-digit hex account id, with or without
// dashes.
func validAccountID(id string) bool {
	hex := 0
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
			hex++
		case c == '-':
		default:
			return false
		}
	}
	return hex == 32
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, protocol.ErrorResponse{Code: code, Message: msg})
}
