package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/store"
)

// digestActions maps digest button names onto logged decision actions.
var digestActions = map[string]model.DecisionAction{
	string(model.ActionPartnerOnly):  model.DecisionPartnerNeeded,
	string(model.ActionAssignToTeam): model.DecisionAssign,
}

// ParseAction accepts a logged decision action or a digest button name.
func ParseAction(s string) (model.DecisionAction, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if a, ok := digestActions[s]; ok {
		return a, true
	}
	return model.ParseDecisionAction(s)
}

type decisionRequest struct {
	TenderID  string `json:"tender_id"`
	Action    string `json:"action"`
	Notes     string `json:"notes"`
	Stage     string `json:"pipeline_stage"`
	DecidedBy string `json:"decided_by"`
}

func (s *Server) createDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.TenderID) == "" {
		writeError(w, http.StatusBadRequest, "tender_id is required")
		return
	}
	action, ok := ParseAction(req.Action)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown action "+req.Action)
		return
	}

	d := &model.Decision{
		TenderID:  strings.TrimSpace(req.TenderID),
		Action:    action,
		Notes:     req.Notes,
		Stage:     req.Stage,
		DecidedBy: req.DecidedBy,
		DecidedAt: s.now().UTC(),
	}
	if err := s.store.InsertDecision(r.Context(), d); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.log.Info("decision recorded",
		zap.String("tender_id", d.TenderID),
		zap.String("action", string(d.Action)),
		zap.String("decided_by", d.DecidedBy),
	)
	writeJSON(w, http.StatusCreated, d)
}

type tenderResponse struct {
	Tender     *model.Tender     `json:"tender"`
	Evaluation *model.Evaluation `json:"evaluation,omitempty"`
}

func (s *Server) getTender(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.store.GetTender(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	resp := tenderResponse{Tender: t}
	ev, err := s.store.LatestEvaluation(r.Context(), id)
	switch {
	case err == nil:
		resp.Evaluation = ev
	case !eris.Is(err, store.ErrNotFound):
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) latestDigest(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.LatestDigest(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) listRecommendations(w http.ResponseWriter, r *http.Request) {
	status := model.RecommendationStatus(r.URL.Query().Get("status"))
	switch status {
	case "":
		status = model.RecProposed
	case "all":
		status = ""
	}
	recs, err := s.store.ListRecommendations(r.Context(), status)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if recs == nil {
		recs = []model.Recommendation{}
	}
	writeJSON(w, http.StatusOK, recs)
}

type approvalRequest struct {
	DecidedBy string `json:"decided_by"`
}

var errMissingApprover = eris.New("decided_by is required")

// readApprover reads the approver name from the body. Profile changes are
// never recorded anonymously, so a missing name is an error.
func readApprover(w http.ResponseWriter, r *http.Request) (string, error) {
	var req approvalRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	who := strings.TrimSpace(req.DecidedBy)
	if who == "" {
		return "", errMissingApprover
	}
	return who, nil
}

func writeApproverError(w http.ResponseWriter, err error) {
	if errors.Is(err, errMissingApprover) {
		writeError(w, http.StatusBadRequest, errMissingApprover.Error())
		return
	}
	writeError(w, http.StatusBadRequest, "invalid request body")
}

type approvalResponse struct {
	RecommendationID string `json:"recommendation_id"`
	Status           string `json:"status"`
	ProfileVersion   string `json:"profile_version,omitempty"`
	ReEvaluate       int    `json:"re_evaluate"`
}

func (s *Server) approveRecommendation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	who, err := readApprover(w, r)
	if err != nil {
		writeApproverError(w, err)
		return
	}
	res, err := s.approver.Approve(r.Context(), id, who)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, approvalResponse{
		RecommendationID: id,
		Status:           string(model.RecApproved),
		ProfileVersion:   res.Profile.Version,
		ReEvaluate:       res.ReEvaluate,
	})
}

func (s *Server) rejectRecommendation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	who, err := readApprover(w, r)
	if err != nil {
		writeApproverError(w, err)
		return
	}
	if err := s.approver.Reject(r.Context(), id, who); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, approvalResponse{RecommendationID: id, Status: string(model.RecRejected)})
}
