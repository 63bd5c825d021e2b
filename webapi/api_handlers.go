package webapi

import (
	"net/http"
	"time"

	"hostsync/refresh"
	"hostsync/source"
)

// StatusResult 刷新状态
type StatusResult struct {
	Running    bool            `json:"running"`
	Pending    []string        `json:"pending"`
	LastReport *refresh.Report `json:"last_report,omitempty"`
}

// SourceStatus 单个列表的状态
type SourceStatus struct {
	Title        string     `json:"title"`
	Location     string     `json:"location"`
	Enabled      bool       `json:"enabled"`
	Kind         string     `json:"kind"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// handleHealth 健康检查
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSONSuccess(w, "ok", map[string]interface{}{
		"running": s.deps.Refresh.Running(),
	})
}

// handleStatus 返回当前刷新状态和上一次报告
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	pending := s.deps.Refresh.Pending()
	if pending == nil {
		pending = []string{}
	}
	s.writeJSONSuccess(w, "Refresh status retrieved successfully", StatusResult{
		Running:    s.deps.Refresh.Running(),
		Pending:    pending,
		LastReport: s.deps.Refresh.LastReport(),
	})
}

// handleRefresh 触发一次刷新
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.deps.Refresh.Running() {
		s.writeJSONError(w, "Refresh already running", http.StatusConflict)
		return
	}
	if !s.deps.Scheduler.Trigger() {
		s.writeJSONSuccess(w, "Refresh already queued", nil)
		return
	}
	s.log.Infof("refresh triggered via API")
	s.writeJSONSuccess(w, "Refresh triggered", nil)
}

// handleCancel 停止派发剩余条目，正在下载的条目会继续完成
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Refresh.Running() {
		s.writeJSONError(w, "No refresh running", http.StatusConflict)
		return
	}
	s.deps.Refresh.Cancel()
	s.log.Infof("refresh cancelled via API")
	s.writeJSONSuccess(w, "Refresh cancellation requested", nil)
}

// handleSources 列出所有条目及其镜像状态
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	// title 可能重复，按 location 对应
	lastErrors := make(map[string]string)
	if report := s.deps.Refresh.LastReport(); report != nil {
		for _, e := range report.Errors {
			lastErrors[e.Location] = e.Message
		}
	}

	items := s.deps.Config.Items()
	result := make([]SourceStatus, 0, len(items))
	for _, item := range items {
		st := SourceStatus{
			Title:     item.Title,
			Location:  item.Location,
			Enabled:   item.Enabled,
			Kind:      source.Classify(item.Location).String(),
			LastError: lastErrors[item.Location],
		}
		if s.deps.Mirrors != nil {
			if mod := s.deps.Mirrors.ModTime(item); !mod.IsZero() {
				st.LastModified = &mod
			}
		}
		result = append(result, st)
	}
	s.writeJSONSuccess(w, "Sources retrieved successfully", result)
}

// handleStats 处理统计信息请求
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		s.writeJSONError(w, "Stats are disabled", http.StatusServiceUnavailable)
		return
	}
	s.writeJSONSuccess(w, "Stats retrieved successfully", s.deps.Stats.GetStats())
}

// handleClearStats 清空统计
func (s *Server) handleClearStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		s.writeJSONError(w, "Stats are disabled", http.StatusServiceUnavailable)
		return
	}
	s.deps.Stats.Reset()
	s.writeJSONSuccess(w, "Stats cleared", nil)
}
