package web

import (
	"bytes"
	"html/template"

	"github.com/vbonduro/snackcheck/internal/domain"
)

// reportView is what the report partial and the SSE report event carry.
type reportView struct {
	RequestID     string        `json:"request_id"`
	Rating        int           `json:"rating"`
	Markdown      string        `json:"markdown"`
	HTML          template.HTML `json:"html"`
	ExtractedText string        `json:"extracted_text"`
	HealthContext string        `json:"health_context"`
}

// toView renders the report Markdown. goldmark escapes raw HTML in model
// output, so the result is safe to insert into the page.
func (s *Server) toView(a *domain.Analysis) (*reportView, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(a.Report), &buf); err != nil {
		return nil, err
	}
	return &reportView{
		RequestID:     a.RequestID,
		Rating:        a.Rating,
		Markdown:      a.Report,
		HTML:          template.HTML(buf.String()),
		ExtractedText: a.ExtractedText,
		HealthContext: a.HealthContext,
	}, nil
}
