package api

import (
	"fmt"
	"net/http"
	"strconv"

	"sentinel-sim/internal/sim"
	"sentinel-sim/internal/telemetry"
)

type okBody struct {
	OK bool `json:"ok"`
}

var okReply = okBody{OK: true}

func (s *Server) handleCreateGateway(w http.ResponseWriter, r *http.Request) {
	var g telemetry.GatewayRegistryItem
	if err := decode(r, &g); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.engine.CreateGateway(r.Context(), g)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "gateway": out})
}

func (s *Server) handlePatchGateway(w http.ResponseWriter, r *http.Request) {
	var p sim.GatewayPatch
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.engine.PatchGateway(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "gateway": out})
}

func (s *Server) handleDeleteGateway(w http.ResponseWriter, r *http.Request) {
	id, err := required(r, "gateway_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	force, err := boolParam(r, "force")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.DeleteGateway(r.Context(), id, force); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okReply)
}

type gatewayControl struct {
	Action    string `json:"action"`
	GatewayID string `json:"gateway_id"`
}

func (s *Server) handleGatewayControl(w http.ResponseWriter, r *http.Request) {
	var c gatewayControl
	if err := decode(r, &c); err != nil {
		s.writeError(w, r, err)
		return
	}
	if c.Action != "reboot" {
		s.writeError(w, r, fmt.Errorf("%w: unknown action %q", sim.ErrInvalid, c.Action))
		return
	}
	if err := s.engine.RebootGateway(r.Context(), c.GatewayID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okReply)
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var n telemetry.NodeRegistryItem
	if err := decode(r, &n); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.engine.CreateNode(r.Context(), n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "node": out})
}

func (s *Server) handlePatchNode(w http.ResponseWriter, r *http.Request) {
	var p sim.NodePatch
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.engine.PatchNode(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "node": out})
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id, err := required(r, "node_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.DeleteNode(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okReply)
}

func (s *Server) handleNodeControl(w http.ResponseWriter, r *http.Request) {
	var c sim.NodeControl
	if err := decode(r, &c); err != nil {
		s.writeError(w, r, err)
		return
	}
	changed, err := s.engine.ControlNodes(r.Context(), c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "changed": changed})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "alerts": s.engine.Alerts()})
}

func (s *Server) handleAckAlert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.AckAlert(r.Context(), body.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okReply)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "settings": s.engine.Settings()})
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var p sim.SettingsPatch
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.engine.UpdateSettings(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "settings": out})
}

func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", sim.ErrInvalid, name)
	}
	return b, nil
}
