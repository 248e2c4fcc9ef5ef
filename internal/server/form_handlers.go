package server

import (
	stderrors "errors"
	"html/template"
	"net/http"
	"strings"

	"loan-decision/internal/common/errors"
	"loan-decision/internal/common/metrics"
	"loan-decision/internal/form"
	"loan-decision/internal/models"
	"loan-decision/pkg/catalog"

	"github.com/gin-gonic/gin"
)

var templateFuncs = template.FuncMap{
	"approved": func(v *models.Verdict) bool { return v.Approved() },
}

type fieldView struct {
	catalog.Field
	Value    string
	Required bool
}

type sectionView struct {
	ID     string
	Title  string
	Fields []fieldView
}

type pageView struct {
	Sections    []sectionView
	Verdict     *models.Verdict
	ReferenceID string
	Evaluating  bool
	Error       string
	HasData     bool
	BranchLabel string
	Source      string
}

func (s *Server) buildPage(state *models.FormState) pageView {
	cat := s.controller.Catalog()
	view := pageView{
		Verdict:     state.Verdict,
		ReferenceID: state.ReferenceID,
		Evaluating:  state.Evaluating,
		Error:       state.Error,
		HasData:     !state.Application.IsEmpty(),
		BranchLabel: s.cfg.BranchLabel,
		Source:      s.controller.SourceName(),
	}
	for _, sec := range cat.Sections {
		sv := sectionView{ID: sec.ID, Title: sec.Title}
		for _, f := range sec.Fields {
			sv.Fields = append(sv.Fields, fieldView{
				Field:    f,
				Value:    state.Application.String(f.Name),
				Required: !f.Optional,
			})
		}
		view.Sections = append(view.Sections, sv)
	}
	return view
}

func (s *Server) renderForm(c *gin.Context) {
	state, err := s.controller.TakeState(c.Request.Context(), sessionID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.HTML(http.StatusOK, "form.html", s.buildPage(state))
}

func (s *Server) updateField(c *gin.Context) {
	metrics.FormActions.WithLabelValues("field").Inc()

	var req struct {
		Name  string      `json:"name" binding:"required"`
		Value interface{} `json:"value"`
	}
	if strings.HasPrefix(c.ContentType(), gin.MIMEJSON) {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
			return
		}
	} else {
		req.Name = c.PostForm("name")
		req.Value = c.PostForm("value")
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"err": "field name is required"})
		return
	}
	if req.Value == nil {
		req.Value = ""
	}

	err := s.controller.UpdateField(c.Request.Context(), sessionID(c), req.Name, req.Value)
	if stderrors.Is(err, form.ErrUnknownField) {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c)
}

// submit takes every catalog field from the posted form (or JSON body),
// stores it and evaluates the application. The request waits for the
// verdict.
func (s *Server) submit(c *gin.Context) {
	metrics.FormActions.WithLabelValues("submit").Inc()
	ctx := c.Request.Context()
	sid := sessionID(c)

	values, err := s.submittedValues(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	if len(values) > 0 {
		if err := s.controller.UpdateFields(ctx, sid, values); err != nil {
			if stderrors.Is(err, form.ErrUnknownField) {
				c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
				return
			}
			s.fail(c, err)
			return
		}
	}

	v, err := s.controller.Submit(ctx, sid)
	if err != nil {
		stdErr := errors.AsStandardError(err)
		switch {
		case stdErr.Code == errors.ErrCodeEvaluationInFlight:
			c.JSON(http.StatusConflict, gin.H{"err": stdErr.Message})
		case wantsJSON(c):
			c.JSON(statusFor(stdErr), gin.H{"err": stdErr.Message, "code": stdErr.Code, "details": stdErr.Details})
		case stdErr.Code == errors.ErrCodeSessionStoreFailed:
			s.fail(c, err)
		default:
			// The message is on the session and the page shows it once.
			c.Redirect(http.StatusSeeOther, "/")
		}
		return
	}

	if wantsJSON(c) {
		c.JSON(http.StatusOK, v)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) submittedValues(c *gin.Context) (map[string]interface{}, error) {
	values := map[string]interface{}{}
	if strings.HasPrefix(c.ContentType(), gin.MIMEJSON) {
		var app models.Application
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&app); err != nil {
				return nil, err
			}
		}
		for k, v := range app {
			values[k] = v
		}
		return values, nil
	}

	for _, name := range s.controller.Catalog().Names() {
		if v, ok := c.GetPostForm(name); ok {
			values[name] = v
		}
	}
	return values, nil
}

func (s *Server) reset(c *gin.Context) {
	metrics.FormActions.WithLabelValues("reset").Inc()
	if err := s.controller.Reset(c.Request.Context(), sessionID(c)); err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c)
}

func (s *Server) fillDemo(c *gin.Context) {
	metrics.FormActions.WithLabelValues("demo").Inc()
	if _, err := s.controller.FillDemoData(c.Request.Context(), sessionID(c)); err != nil {
		s.fail(c, err)
		return
	}
	s.respond(c)
}

// respond sends the session state to API callers and redirects browsers
// back to the page.
func (s *Server) respond(c *gin.Context) {
	if !wantsJSON(c) {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	state, err := s.controller.State(c.Request.Context(), sessionID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) fail(c *gin.Context, err error) {
	stdErr := errors.AsStandardError(err)
	s.logger.WithError(err).Error("request failed", map[string]interface{}{
		"path":      c.FullPath(),
		"errorCode": string(stdErr.Code),
	})
	c.JSON(statusFor(stdErr), gin.H{"err": stdErr.Message, "code": stdErr.Code})
}

func statusFor(err *errors.StandardError) int {
	switch err.Code {
	case errors.ErrCodeApplicationValidationFailed:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeEvaluationInFlight:
		return http.StatusConflict
	case errors.ErrCodePredictionServiceFailed, errors.ErrCodePredictionResponseInvalid:
		return http.StatusBadGateway
	case errors.ErrCodeSessionStoreFailed, errors.ErrCodeEvaluationCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), gin.MIMEJSON) ||
		strings.HasPrefix(c.ContentType(), gin.MIMEJSON)
}
