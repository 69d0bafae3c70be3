package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roasbeef/planloop/internal/activity"
	"github.com/roasbeef/planloop/internal/review"
)

// registerRoutes mounts the JSON API.
func (s *Server) registerRoutes(r chi.Router) {
	r.Route("/api/reviews", func(r chi.Router) {
		r.Post("/", s.handleCreateReview)
		r.Get("/", s.handleListReviews)
		r.Get("/latest", s.handleLatestReview)

		r.Route("/{reviewID}", func(r chi.Router) {
			r.Get("/", s.handleGetReview)
			r.Get("/activity", s.handleListActivity)
			r.Get("/events", s.handleEventStream)

			r.Post("/comments", s.handleAddComment)
			r.Put("/comments/{commentID}", s.handleUpdateComment)
			r.Delete("/comments/{commentID}", s.handleDeleteComment)
			r.Post("/comments/{commentID}/answer", s.handleAnswerQuestion)

			r.Put("/plan", s.handleUpdatePlan)
			r.Get("/versions", s.handleListVersions)
			r.Get("/versions/{hash}", s.handleGetVersion)
			r.Get("/diff", s.handleDiff)
			r.Post("/rollback", s.handleRollback)

			r.Post("/approve", s.handleApprove)
			r.Post("/request-changes", s.handleRequestChanges)
			r.Post("/ask-questions", s.handleAskQuestions)
		})
	})

	r.Get("/api/health", s.handleHealth)
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("failed to encode response", "err", err)
	}
}

// writeError maps a domain error onto the wire error shape and HTTP
// status.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case review.IsNotFound(err):
		status = http.StatusNotFound
	case review.IsValidation(err), review.IsInvalidTransition(err):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "err", err)
	}

	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeBody parses a JSON request body into dst.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request,
	dst any,
) bool {

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON body: " + err.Error(),
		})
		return false
	}
	return true
}

// receive dispatches a request through the review service and writes
// the review snapshot response.
func (s *Server) receive(w http.ResponseWriter, r *http.Request,
	req review.ReviewRequest, status int,
) {

	resp, err := s.svc.Receive(r.Context(), req).Unpack()
	if err != nil {
		s.writeError(w, err)
		return
	}

	switch m := resp.(type) {
	case review.ReviewSnapshotResponse:
		s.writeJSON(w, status, m.Review)
	case review.CommentResponse:
		s.writeJSON(w, status, m.Comment)
	case review.SummariesResponse:
		s.writeJSON(w, status, m.Summaries)
	case review.DiffResponse:
		s.writeJSON(w, status, m.Diff)
	default:
		s.writeJSON(w, status, resp)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Plan        string `json:"plan"`
		ProjectPath string `json:"projectPath"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	if body.ProjectPath == "" {
		body.ProjectPath = s.cfg.DefaultProjectPath
	}

	s.receive(w, r, review.CreateReviewRequest{
		PlanContent: body.Plan,
		ProjectPath: body.ProjectPath,
	}, http.StatusCreated)
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	s.receive(w, r, review.ListPendingRequest{
		ProjectPath: r.URL.Query().Get("project"),
	}, http.StatusOK)
}

func (s *Server) handleLatestReview(w http.ResponseWriter, r *http.Request) {
	s.receive(w, r, review.LatestReviewRequest{
		ProjectPath: r.URL.Query().Get("project"),
	}, http.StatusOK)
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	s.receive(w, r, review.GetReviewRequest{
		ReviewID:    chi.URLParam(r, "reviewID"),
		ProjectPath: r.URL.Query().Get("project"),
	}, http.StatusOK)
}

func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	if s.activity == nil {
		s.writeJSON(w, http.StatusOK, []activity.Entry{})
		return
	}

	entries, err := s.activity.ListByReview(
		r.Context(), chi.URLParam(r, "reviewID"),
	)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []activity.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Quote    string              `json:"quote"`
		Comment  string              `json:"comment"`
		Position review.TextPosition `json:"position"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	s.receive(w, r, review.AddCommentRequest{
		ReviewID: chi.URLParam(r, "reviewID"),
		Quote:    body.Quote,
		Text:     body.Comment,
		Position: body.Position,
	}, http.StatusCreated)
}

func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Comment string `json:"comment"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	s.receive(w, r, review.UpdateCommentRequest{
		ReviewID:  chi.URLParam(r, "reviewID"),
		CommentID: chi.URLParam(r, "commentID"),
		Text:      body.Comment,
	}, http.StatusOK)
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	s.receive(w, r, review.DeleteCommentRequest{
		ReviewID:  chi.URLParam(r, "reviewID"),
		CommentID: chi.URLParam(r, "commentID"),
	}, http.StatusOK)
}

func (s *Server) handleAnswerQuestion(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Answer string `json:"answer"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	s.receive(w, r, review.AnswerQuestionRequest{
		ReviewID:  chi.URLParam(r, "reviewID"),
		CommentID: chi.URLParam(r, "commentID"),
		Answer:    body.Answer,
	}, http.StatusOK)
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content           string        `json:"content"`
		Author            review.Author `json:"author"`
		ChangeDescription string        `json:"changeDescription"`
		ResolvedComments  []struct {
			CommentID  string `json:"commentId"`
			Resolution string `json:"resolution"`
		} `json:"resolvedComments"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	var resolutions map[string]string
	if len(body.ResolvedComments) > 0 {
		resolutions = make(map[string]string, len(body.ResolvedComments))
		for _, rc := range body.ResolvedComments {
			resolutions[rc.CommentID] = rc.Resolution
		}
	}

	s.receive(w, r, review.UpdatePlanRequest{
		ReviewID:    chi.URLParam(r, "reviewID"),
		Content:     body.Content,
		Author:      body.Author,
		Description: body.ChangeDescription,
		Resolutions: resolutions,
	}, http.StatusOK)
}

// versionSummary is the listing shape of a document version: everything
// but the content.
type versionSummary struct {
	VersionHash string        `json:"versionHash"`
	CreatedAt   time.Time     `json:"createdAt"`
	Description string        `json:"changeDescription,omitempty"`
	Author      review.Author `json:"author"`
	ParentHash  string        `json:"parentVersion,omitempty"`
	Current     bool          `json:"current"`
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.Receive(r.Context(), review.GetReviewRequest{
		ReviewID: chi.URLParam(r, "reviewID"),
	}).Unpack()
	if err != nil {
		s.writeError(w, err)
		return
	}

	rev := resp.(review.ReviewSnapshotResponse).Review

	summaries := make([]versionSummary, 0, len(rev.DocumentVersions))
	for _, v := range rev.DocumentVersions {
		summaries = append(summaries, versionSummary{
			VersionHash: v.Hash,
			CreatedAt:   v.CreatedAt,
			Description: v.Description,
			Author:      v.Author,
			ParentHash:  v.ParentHash,
			Current:     v.Hash == rev.CurrentVersion,
		})
	}

	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.Receive(r.Context(), review.GetReviewRequest{
		ReviewID: chi.URLParam(r, "reviewID"),
	}).Unpack()
	if err != nil {
		s.writeError(w, err)
		return
	}

	rev := resp.(review.ReviewSnapshotResponse).Review

	version := rev.VersionByHash(chi.URLParam(r, "hash"))
	if version == nil {
		s.writeError(w, review.ErrVersionNotFound)
		return
	}

	s.writeJSON(w, http.StatusOK, version)
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	s.receive(w, r, review.DiffVersionsRequest{
		ReviewID: chi.URLParam(r, "reviewID"),
		FromHash: r.URL.Query().Get("from"),
		ToHash:   r.URL.Query().Get("to"),
	}, http.StatusOK)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		VersionHash string `json:"versionHash"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	s.receive(w, r, review.RollbackRequest{
		ReviewID:    chi.URLParam(r, "reviewID"),
		VersionHash: body.VersionHash,
	}, http.StatusOK)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Note string `json:"note"`
	}
	// An empty body is fine: the note is optional.
	if r.ContentLength > 0 && !s.decodeBody(w, r, &body) {
		return
	}

	s.receive(w, r, review.ApproveRequest{
		ReviewID: chi.URLParam(r, "reviewID"),
		Note:     body.Note,
	}, http.StatusOK)
}

func (s *Server) handleRequestChanges(w http.ResponseWriter, r *http.Request) {
	s.receive(w, r, review.RequestChangesRequest{
		ReviewID: chi.URLParam(r, "reviewID"),
	}, http.StatusOK)
}

func (s *Server) handleAskQuestions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Questions []struct {
			CommentID string              `json:"commentId"`
			Type      review.QuestionType `json:"type"`
			Message   string              `json:"message"`
			Options   []string            `json:"options"`
		} `json:"questions"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	questions := make([]review.QuestionInput, 0, len(body.Questions))
	for _, q := range body.Questions {
		questions = append(questions, review.QuestionInput{
			CommentID: q.CommentID,
			Question: review.CommentQuestion{
				Type:    q.Type,
				Message: q.Message,
				Options: q.Options,
			},
		})
	}

	s.receive(w, r, review.AskQuestionsRequest{
		ReviewID:  chi.URLParam(r, "reviewID"),
		Questions: questions,
	}, http.StatusOK)
}
