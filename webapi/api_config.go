package webapi

import "net/http"

// handleGetConfig 获取当前配置（只读，修改配置需要编辑文件后重启）
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.Config == nil {
		s.writeJSONError(w, "Config not available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSONSuccess(w, "Config retrieved successfully", s.deps.Config)
}
