package api

import (
	_ "embed"
	"net/http"

	"go.uber.org/zap"
)

//go:embed static/index.html
var indexHTML []byte

// indexPage serves the embedded search page.
func (s *Server) indexPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(indexHTML); err != nil {
		s.logger.Error("write index page failed", zap.Error(err))
	}
}
