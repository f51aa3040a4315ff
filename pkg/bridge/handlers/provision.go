package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// NumberProvisioner buys an inbound number and wires its webhook.
type NumberProvisioner interface {
	BuyNumber(country string) (string, error)
}

// ProvisionHandler purchases a new inbound number for the service.
type ProvisionHandler struct {
	Provisioner NumberProvisioner
	Logger      *slog.Logger
}

func (h ProvisionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Provisioner == nil {
		http.Error(w, "number provisioning is not configured", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Country string `json:"country"`
	}
	if r.Body != nil {
		// An empty body means the default country.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Country == "" {
		req.Country = "US"
	}

	number, err := h.Provisioner.BuyNumber(req.Country)
	if err != nil {
		h.log().Error("number purchase failed", "country", req.Country, "err", err)
		http.Error(w, "purchase failed", http.StatusBadGateway)
		return
	}

	h.log().Info("number provisioned", "number", number, "country", req.Country)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"phone_number": number})
}

func (h ProvisionHandler) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
