package api

import (
	"io"
	"net/http"

	"github.com/seantiz/showcase/internal/processes"
)

// handleStartProcess starts one loan approval instance per call. The caller
// always gets 200 True; a failed start is only logged and counted.
func (s *Server) handleStartProcess(w http.ResponseWriter, r *http.Request) {
	inst, err := s.engine.RuntimeService().StartProcessInstanceByKey(r.Context(), processes.LoanApprovalKey, "", nil)
	if err != nil {
		processStartFailures.Inc()
		s.logger.Error("start process instance", "key", processes.LoanApprovalKey, "error", err)
	} else {
		s.logger.Debug("process instance started", "key", processes.LoanApprovalKey, "process_instance_id", inst.ID)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, "True"); err != nil {
		s.logger.Debug("write response", "error", err)
	}
}
