package handler

import "net/http"

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	session SessionServiceInterface
	hub     HubInterface
}

// NewHealthHandler はHealthHandlerを生成する。hubはnilでもよい。
func NewHealthHandler(session SessionServiceInterface, hub HubInterface) *HealthHandler {
	return &HealthHandler{session: session, hub: hub}
}

// healthResponse はヘルスチェックのAPIレスポンス。
type healthResponse struct {
	Status   string `json:"status"`
	Session  string `json:"session"`
	Realtime bool   `json:"realtime"`
}

// Health はプロセスの稼働状況を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Session: h.session.State().Phase.String(),
	}
	if h.hub != nil {
		resp.Realtime = h.hub.Connected()
	}
	writeJSON(w, http.StatusOK, resp)
}
