package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/ltirelay/internal/relay/service"
	"github.com/aussiebroadwan/ltirelay/pkg/cryptox"
	"github.com/aussiebroadwan/ltirelay/pkg/gradersdk"
	"github.com/aussiebroadwan/ltirelay/pkg/httpx"
	"github.com/aussiebroadwan/ltirelay/pkg/slogx"
)

var (
	errInvalidBody = errors.New("invalid request body")
	errInternal    = errors.New("internal error")
)

func gradeFailure(err error) gradersdk.GradeResponse {
	return gradersdk.GradeResponse{Success: false, Error: err.Error()}
}

// GradeHandler serves POST /grade. Apart from an undecodable body (400),
// every outcome is a 200 whose success flag tells the page what happened.
type GradeHandler struct {
	GradingService *service.GradingService
}

func (h *GradeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, httpx.MaxFormBytes)

	var req gradersdk.GradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("invalid grade request", "error", err)
		httpx.WriteJSON(w, http.StatusBadRequest, gradeFailure(errInvalidBody))
		return
	}

	token := req.SessionToken
	if token == "" {
		token = req.Token
	}
	if token != "" {
		ctx = slogx.With(ctx, "session", cryptox.ShortFingerprint(token))
	}

	out, err := h.GradingService.Grade(ctx, service.Submission{
		StudentInput:  req.StudentInput,
		DefaultValue:  req.DefaultValue,
		EmptyErrorMsg: req.EmptyErrorMsg,
		SessionToken:  token,
	})
	if err != nil {
		httpx.WriteJSON(w, http.StatusOK, gradeFailure(err))
		return
	}

	resp := gradersdk.GradeResponse{
		Success:     true,
		Feedback:    out.Feedback,
		ScoreInfo:   &gradersdk.ScoreInfo{},
		LTINotified: out.LTINotified,
	}
	if out.Graded {
		resp.ScoreInfo.Score = gradersdk.Float(out.Grade.Score)
		resp.ScoreInfo.Max = gradersdk.Float(out.Grade.Max)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
