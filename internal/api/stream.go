package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/prior-auth-engine/internal/engine"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser origin checking is delegated to the CORS layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamMessage is one frame of the evaluation stream. Step frames carry the
// pipeline step events; the final frame carries the evaluation result or an
// error.
type streamMessage struct {
	Type   string                   `json:"type"`
	Step   *engine.StepEvent        `json:"step,omitempty"`
	Result *engine.EvaluationResult `json:"result,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

// handleEvaluateStream upgrades to a websocket, reads one evaluate request
// and streams pipeline step events followed by the final result.
func (s *Server) handleEvaluateStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	var req evaluateRequest
	if err := conn.ReadJSON(&req); err != nil {
		conn.WriteJSON(streamMessage{Type: "error", Error: "invalid evaluate request: " + err.Error()})
		return
	}
	if req.DrugName == "" {
		conn.WriteJSON(streamMessage{Type: "error", Error: "drug_name is required"})
		return
	}
	if err := req.Patient.Validate(); err != nil {
		conn.WriteJSON(streamMessage{Type: "error", Error: err.Error()})
		return
	}

	observe := func(event engine.StepEvent) {
		if err := conn.WriteJSON(streamMessage{Type: "step", Step: &event}); err != nil {
			s.logger.WithError(err).Warn("Failed to write step event")
		}
	}

	result, err := s.pipeline.EvaluateWithObserver(c.Request.Context(), &req.Patient, req.DrugName, observe)
	if err != nil {
		conn.WriteJSON(streamMessage{Type: "error", Error: err.Error()})
		return
	}

	conn.WriteJSON(streamMessage{Type: "result", Result: result})
}
