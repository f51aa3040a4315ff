package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/voicedesk/voicedesk/pkg/bridge/calls"
)

// CallsHandler lists the calls currently bridged by this instance.
type CallsHandler struct {
	Registry *calls.Registry
}

func (h CallsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type callResp struct {
		CallID string `json:"call_id"`
		State  string `json:"state"`
	}

	snapshot := h.Registry.Snapshot()
	out := struct {
		Count int        `json:"count"`
		Calls []callResp `json:"calls"`
	}{
		Count: len(snapshot),
		Calls: make([]callResp, 0, len(snapshot)),
	}
	for _, info := range snapshot {
		out.Calls = append(out.Calls, callResp{CallID: info.CallID, State: info.State})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(out)
}
