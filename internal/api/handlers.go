package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/serp-rank-tracker/internal/dispatcher"
	"github.com/JakeFAU/serp-rank-tracker/internal/refresh"
	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

type refreshRequest struct {
	KeywordIDs []string `json:"keyword_ids"`
	// Job runs a scheduled job ("refresh" or "retry") immediately instead.
	Job string `json:"job"`
}

type keywordResult struct {
	KeywordID    string `json:"keyword_id"`
	Provider     string `json:"provider"`
	Rank         int    `json:"rank"`
	URL          string `json:"url,omitempty"`
	Error        string `json:"error,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	PersistError string `json:"persist_error,omitempty"`
}

type refreshResponse struct {
	Summary  refresh.Summary `json:"summary"`
	Results  []keywordResult `json:"results,omitempty"`
	Canceled bool            `json:"canceled,omitempty"`
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	ids := cleanIDs(req.KeywordIDs)
	switch {
	case req.Job != "" && len(ids) > 0:
		writeError(w, http.StatusBadRequest, "keyword_ids and job are mutually exclusive")
	case req.Job != "":
		s.triggerJob(w, r, req.Job)
	case len(ids) == 0:
		writeError(w, http.StatusBadRequest, "keyword_ids required")
	default:
		s.refreshKeywords(w, r, ids)
	}
}

func (s *Server) refreshKeywords(w http.ResponseWriter, r *http.Request, ids []string) {
	results, err := s.deps.Refresher.RefreshIDs(r.Context(), ids, s.deps.Settings())
	resp := refreshResponse{Summary: refresh.Summarize(results), Results: toKeywordResults(results)}
	switch {
	case errors.Is(err, tracker.ErrCanceled):
		resp.Canceled = true
		writeJSON(w, http.StatusServiceUnavailable, resp)
	case err != nil:
		s.logger.Error("refresh failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "refresh failed")
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) triggerJob(w http.ResponseWriter, r *http.Request, job string) {
	if job != dispatcher.JobRefresh && job != dispatcher.JobRetry {
		writeError(w, http.StatusBadRequest, "job must be refresh or retry")
		return
	}
	if s.deps.Dispatcher == nil {
		writeError(w, http.StatusNotImplemented, "scheduler not configured")
		return
	}
	summary, err := s.deps.Dispatcher.Trigger(r.Context(), job)
	switch {
	case errors.Is(err, dispatcher.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, tracker.ErrCanceled):
		writeJSON(w, http.StatusServiceUnavailable, refreshResponse{Summary: summary, Canceled: true})
	case err != nil:
		s.logger.Error("job trigger failed", zap.String("job", job), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "job failed")
	default:
		writeJSON(w, http.StatusOK, refreshResponse{Summary: summary})
	}
}

func toKeywordResults(results []refresh.Result) []keywordResult {
	out := make([]keywordResult, 0, len(results))
	for _, res := range results {
		kr := keywordResult{
			KeywordID: res.Outcome.KeywordID,
			Provider:  res.Outcome.Provider,
			Rank:      res.Outcome.Rank,
			URL:       res.Outcome.URL,
		}
		if kr.KeywordID == "" {
			kr.KeywordID = res.Keyword.ID
		}
		if res.Outcome.Err != nil {
			kr.Error = res.Outcome.Err.Error()
			kr.ErrorKind = string(tracker.KindOf(res.Outcome.Err))
		}
		if res.PersistErr != nil {
			kr.PersistError = res.PersistErr.Error()
		}
		out = append(out, kr)
	}
	return out
}

func cleanIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type providerView struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Parallel       bool   `json:"parallel"`
	PerKeywordOnly bool   `json:"per_keyword_only"`
	Selectable     bool   `json:"selectable"`
	MinimumDelayMs int64  `json:"minimum_delay_ms"`
}

func (s *Server) listProviders(w http.ResponseWriter, _ *http.Request) {
	selectable := make(map[string]bool)
	for _, a := range s.deps.Registry.Selectable() {
		selectable[a.ID()] = true
	}
	adapters := s.deps.Registry.All()
	views := make([]providerView, 0, len(adapters))
	for _, a := range adapters {
		views = append(views, providerView{
			ID:             a.ID(),
			Name:           a.Name(),
			Parallel:       a.Parallel(),
			PerKeywordOnly: a.PerKeywordOnly(),
			Selectable:     selectable[a.ID()],
			MinimumDelayMs: a.MinimumDelay().Milliseconds(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": views,
		"active":    s.deps.Settings().ProviderID,
	})
}

func (s *Server) getKeyword(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "keyword_id")
	records, err := s.deps.Store.Load(r.Context(), []string{id})
	if err != nil {
		s.logger.Error("load keyword failed", zap.String("keyword_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load keyword")
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, "keyword not found")
		return
	}
	writeJSON(w, http.StatusOK, records[0])
}

func (s *Server) listRetryQueue(w http.ResponseWriter, r *http.Request) {
	if s.deps.Retry == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []tracker.RetryEntry{}})
		return
	}
	entries, err := s.deps.Retry.List(r.Context())
	if err != nil {
		s.logger.Error("list retry queue failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list retry queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) clearRetryQueue(w http.ResponseWriter, r *http.Request) {
	if s.deps.Retry != nil {
		if err := s.deps.Retry.Clear(r.Context()); err != nil {
			s.logger.Error("clear retry queue failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to clear retry queue")
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeRetryEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "keyword_id")
	if s.deps.Retry != nil {
		if err := s.deps.Retry.Remove(r.Context(), id); err != nil {
			s.logger.Error("remove retry entry failed", zap.String("keyword_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to remove retry entry")
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
