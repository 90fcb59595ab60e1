package sim

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"time"

	"go.opentelemetry.io/otel/codes"

	"sentinel-sim/internal/telemetry"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidID reports whether id is an acceptable gateway or node identifier.
func ValidID(id string) bool { return idPattern.MatchString(id) }

// GatewayPatch edits a gateway. Nil fields are left unchanged.
type GatewayPatch struct {
	GatewayID   string              `json:"gateway_id"`
	DisplayName *string             `json:"display_name,omitempty"`
	Region      *string             `json:"region,omitempty"`
	Backhaul    *telemetry.Backhaul `json:"backhaul,omitempty"`
	Lat         *float64            `json:"lat,omitempty"`
	Lon         *float64            `json:"lon,omitempty"`
	Status      *GatewayStatus      `json:"status,omitempty"` // online | offline
}

// NodePatch edits a node. Nil fields are left unchanged.
type NodePatch struct {
	NodeID      string              `json:"node_id"`
	DisplayName *string             `json:"display_name,omitempty"`
	GatewayID   *string             `json:"gateway_id,omitempty"`
	Networks    []telemetry.Network `json:"networks,omitempty"`
	Lat         *float64            `json:"lat,omitempty"`
	Lon         *float64            `json:"lon,omitempty"`
	Status      *string             `json:"status,omitempty"` // online | offline
}

// NodeAction is a bulk node operation.
type NodeAction string

const (
	ActionEnable        NodeAction = "enable"
	ActionDisable       NodeAction = "disable"
	ActionReboot        NodeAction = "reboot"
	ActionAssignGateway NodeAction = "assign_gateway"
)

// NodeControl applies Action to every listed node.
type NodeControl struct {
	Action    NodeAction `json:"action"`
	NodeIDs   []string   `json:"node_ids"`
	GatewayID string     `json:"gateway_id,omitempty"`
}

// SettingsPatch edits the settings. Nil fields are left unchanged.
type SettingsPatch struct {
	LowBatteryVolts         *float64 `json:"low_battery_volts,omitempty"`
	HeartbeatMissingMinutes *int     `json:"heartbeat_missing_minutes,omitempty"`
}

// mutate runs fn under the engine lock and publishes a snapshot when it
// succeeds.
func (e *Engine) mutate(ctx context.Context, name string, fn func(now time.Time) error) error {
	_, span := e.tracer.Start(ctx, "sentinel.command."+name)
	defer span.End()

	e.mu.Lock()
	now := e.clock.Now()
	if err := fn(now); err != nil {
		e.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	snap := e.snapshotLocked(now)
	e.mu.Unlock()

	e.log.Debug("command applied", "command", name)
	e.bcast.Publish(snap)
	return nil
}

// CreateGateway adds g to the registry.
func (e *Engine) CreateGateway(ctx context.Context, g telemetry.GatewayRegistryItem) (telemetry.GatewayRegistryItem, error) {
	if !ValidID(g.GatewayID) {
		return g, fmt.Errorf("%w: gateway_id %q", ErrInvalid, g.GatewayID)
	}
	if g.Backhaul == "" {
		g.Backhaul = telemetry.Backhaul4G
	}
	if !g.Backhaul.Valid() {
		return g, fmt.Errorf("%w: backhaul %q", ErrInvalid, g.Backhaul)
	}
	if err := validLocation(g.Location.Lat, g.Location.Lon); err != nil {
		return g, err
	}
	if g.DisplayName == "" {
		g.DisplayName = g.GatewayID
	}
	err := e.mutate(ctx, "create_gateway", func(now time.Time) error {
		if e.gatewayIndexLocked(g.GatewayID) >= 0 {
			return fmt.Errorf("%w: gateway %s exists", ErrConflict, g.GatewayID)
		}
		e.gateways = append(slices.Clip(e.gateways), g)
		e.gwStatus[g.GatewayID] = GatewayOnline
		e.lastSeen[g.GatewayID] = now
		return nil
	})
	return g, err
}

// PatchGateway edits an existing gateway.
func (e *Engine) PatchGateway(ctx context.Context, p GatewayPatch) (telemetry.GatewayRegistryItem, error) {
	var out telemetry.GatewayRegistryItem
	if p.Backhaul != nil && !p.Backhaul.Valid() {
		return out, fmt.Errorf("%w: backhaul %q", ErrInvalid, *p.Backhaul)
	}
	if p.Status != nil && *p.Status != GatewayOnline && *p.Status != GatewayOffline {
		return out, fmt.Errorf("%w: status %q", ErrInvalid, *p.Status)
	}
	err := e.mutate(ctx, "patch_gateway", func(now time.Time) error {
		i := e.gatewayIndexLocked(p.GatewayID)
		if i < 0 {
			return fmt.Errorf("%w: gateway %s", ErrNotFound, p.GatewayID)
		}
		g := e.gateways[i]
		if p.DisplayName != nil {
			g.DisplayName = *p.DisplayName
		}
		if p.Region != nil {
			g.Region = *p.Region
		}
		if p.Backhaul != nil {
			g.Backhaul = *p.Backhaul
		}
		if p.Lat != nil {
			g.Location.Lat = *p.Lat
		}
		if p.Lon != nil {
			g.Location.Lon = *p.Lon
		}
		if err := validLocation(g.Location.Lat, g.Location.Lon); err != nil {
			return err
		}
		if p.Status != nil {
			e.stopTimerLocked(gatewayTimerKey(g.GatewayID))
			e.gwStatus[g.GatewayID] = *p.Status
			if *p.Status == GatewayOnline {
				e.lastSeen[g.GatewayID] = now
			}
		}
		gws := slices.Clone(e.gateways)
		gws[i] = g
		e.gateways = gws
		out = g
		return nil
	})
	return out, err
}

// DeleteGateway removes a gateway. A gateway with attached nodes is only
// removed when force is set, and its nodes go with it.
func (e *Engine) DeleteGateway(ctx context.Context, id string, force bool) error {
	if id == "" {
		return fmt.Errorf("%w: gateway_id required", ErrInvalid)
	}
	return e.mutate(ctx, "delete_gateway", func(time.Time) error {
		i := e.gatewayIndexLocked(id)
		if i < 0 {
			return fmt.Errorf("%w: gateway %s", ErrNotFound, id)
		}
		var attached []string
		for _, n := range e.nodes {
			if n.GatewayID == id {
				attached = append(attached, n.NodeID)
			}
		}
		if len(attached) > 0 && !force {
			return fmt.Errorf("%w: gateway %s has %d nodes", ErrConflict, id, len(attached))
		}
		for _, nid := range attached {
			e.removeNodeLocked(nid)
		}
		e.gateways = slices.Delete(slices.Clone(e.gateways), i, i+1)
		e.stopTimerLocked(gatewayTimerKey(id))
		delete(e.gwStatus, id)
		delete(e.lastSeen, id)
		return nil
	})
}

// RebootGateway takes a gateway offline for the reboot delay.
func (e *Engine) RebootGateway(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: gateway_id required", ErrInvalid)
	}
	return e.mutate(ctx, "reboot_gateway", func(time.Time) error {
		if e.gatewayIndexLocked(id) < 0 {
			return fmt.Errorf("%w: gateway %s", ErrNotFound, id)
		}
		e.gwStatus[id] = GatewayRebooting
		key := gatewayTimerKey(id)
		e.stopTimerLocked(key)
		e.timers[key] = e.clock.AfterFunc(e.cfg.Engine.RebootDelay, func() {
			e.finishGatewayReboot(id)
		})
		return nil
	})
}

func (e *Engine) finishGatewayReboot(id string) {
	_ = e.mutate(context.Background(), "gateway_online", func(now time.Time) error {
		delete(e.timers, gatewayTimerKey(id))
		if e.gwStatus[id] != GatewayRebooting {
			return fmt.Errorf("%w: gateway %s no longer rebooting", ErrConflict, id)
		}
		e.gwStatus[id] = GatewayOnline
		e.lastSeen[id] = now
		return nil
	})
}

// CreateNode adds n to the registry under an existing gateway.
func (e *Engine) CreateNode(ctx context.Context, n telemetry.NodeRegistryItem) (telemetry.NodeRegistryItem, error) {
	if !ValidID(n.NodeID) {
		return n, fmt.Errorf("%w: node_id %q", ErrInvalid, n.NodeID)
	}
	if !n.Profile.Valid() {
		return n, fmt.Errorf("%w: profile %q", ErrInvalid, n.Profile)
	}
	if n.Role == "" {
		n.Role = telemetry.RoleSensor
	}
	if !n.Role.Valid() {
		return n, fmt.Errorf("%w: role %q", ErrInvalid, n.Role)
	}
	if len(n.Networks) == 0 {
		n.Networks = []telemetry.Network{telemetry.NetworkLoRa}
	}
	if err := validNetworks(n.Networks); err != nil {
		return n, err
	}
	if err := validLocation(n.Location.Lat, n.Location.Lon); err != nil {
		return n, err
	}
	if n.DisplayName == "" {
		n.DisplayName = n.NodeID
	}
	err := e.mutate(ctx, "create_node", func(now time.Time) error {
		if e.nodeIndexLocked(n.NodeID) >= 0 {
			return fmt.Errorf("%w: node %s exists", ErrConflict, n.NodeID)
		}
		gi := e.gatewayIndexLocked(n.GatewayID)
		if gi < 0 {
			return fmt.Errorf("%w: gateway %s", ErrNotFound, n.GatewayID)
		}
		if n.SiteID == "" {
			n.SiteID = "site-" + n.GatewayID
		}
		if n.Location.Lat == 0 && n.Location.Lon == 0 {
			n.Location = e.gateways[gi].Location
		}
		e.nodes = append(slices.Clip(e.nodes), n)
		e.bootedAt[n.NodeID] = now
		return nil
	})
	return n, err
}

// PatchNode edits an existing node.
func (e *Engine) PatchNode(ctx context.Context, p NodePatch) (telemetry.NodeRegistryItem, error) {
	var out telemetry.NodeRegistryItem
	if p.Networks != nil {
		if err := validNetworks(p.Networks); err != nil {
			return out, err
		}
	}
	if p.Status != nil && *p.Status != "online" && *p.Status != "offline" {
		return out, fmt.Errorf("%w: status %q", ErrInvalid, *p.Status)
	}
	err := e.mutate(ctx, "patch_node", func(time.Time) error {
		i := e.nodeIndexLocked(p.NodeID)
		if i < 0 {
			return fmt.Errorf("%w: node %s", ErrNotFound, p.NodeID)
		}
		n := e.nodes[i]
		if p.GatewayID != nil && *p.GatewayID != n.GatewayID {
			if e.gatewayIndexLocked(*p.GatewayID) < 0 {
				return fmt.Errorf("%w: gateway %s", ErrNotFound, *p.GatewayID)
			}
			n = reassign(n, *p.GatewayID)
			e.retagLatestLocked(n.NodeID, n.GatewayID)
		}
		if p.DisplayName != nil {
			n.DisplayName = *p.DisplayName
		}
		if p.Networks != nil {
			n.Networks = slices.Clone(p.Networks)
		}
		if p.Lat != nil {
			n.Location.Lat = *p.Lat
		}
		if p.Lon != nil {
			n.Location.Lon = *p.Lon
		}
		if err := validLocation(n.Location.Lat, n.Location.Lon); err != nil {
			return err
		}
		if p.Status != nil {
			e.setEnabledLocked(n.NodeID, *p.Status == "online")
		}
		nodes := slices.Clone(e.nodes)
		nodes[i] = n
		e.nodes = nodes
		out = n
		return nil
	})
	return out, err
}

// DeleteNode removes a node and its latest message.
func (e *Engine) DeleteNode(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: node_id required", ErrInvalid)
	}
	return e.mutate(ctx, "delete_node", func(time.Time) error {
		if e.nodeIndexLocked(id) < 0 {
			return fmt.Errorf("%w: node %s", ErrNotFound, id)
		}
		e.removeNodeLocked(id)
		return nil
	})
}

// ControlNodes applies a bulk action and returns how many nodes it touched.
// Unknown node ids are skipped.
func (e *Engine) ControlNodes(ctx context.Context, c NodeControl) (int, error) {
	if len(c.NodeIDs) == 0 {
		return 0, fmt.Errorf("%w: node_ids required", ErrInvalid)
	}
	switch c.Action {
	case ActionEnable, ActionDisable, ActionReboot:
	case ActionAssignGateway:
		if c.GatewayID == "" {
			return 0, fmt.Errorf("%w: gateway_id required", ErrInvalid)
		}
	default:
		return 0, fmt.Errorf("%w: unknown action %q", ErrInvalid, c.Action)
	}
	changed := 0
	err := e.mutate(ctx, "control_nodes", func(now time.Time) error {
		if c.Action == ActionAssignGateway && e.gatewayIndexLocked(c.GatewayID) < 0 {
			return fmt.Errorf("%w: gateway %s", ErrNotFound, c.GatewayID)
		}
		var nodes []telemetry.NodeRegistryItem
		for _, id := range c.NodeIDs {
			i := e.nodeIndexLocked(id)
			if i < 0 {
				continue
			}
			switch c.Action {
			case ActionEnable:
				e.setEnabledLocked(id, true)
			case ActionDisable:
				e.setEnabledLocked(id, false)
			case ActionReboot:
				e.rebootNodeLocked(id)
			case ActionAssignGateway:
				if nodes == nil {
					nodes = slices.Clone(e.nodes)
				}
				nodes[i] = reassign(nodes[i], c.GatewayID)
				e.retagLatestLocked(id, c.GatewayID)
			}
			changed++
		}
		if nodes != nil {
			e.nodes = nodes
		}
		return nil
	})
	return changed, err
}

func (e *Engine) setEnabledLocked(id string, enabled bool) {
	if enabled {
		delete(e.disabled, id)
		if _, busy := e.rebooting[id]; !busy {
			e.health.Release(id)
		}
		return
	}
	e.disabled[id] = struct{}{}
	e.health.ForceOffline(id)
}

func (e *Engine) rebootNodeLocked(id string) {
	e.rebooting[id] = struct{}{}
	e.health.ForceOffline(id)
	key := nodeTimerKey(id)
	e.stopTimerLocked(key)
	e.timers[key] = e.clock.AfterFunc(e.cfg.Engine.RebootDelay, func() {
		e.finishNodeReboot(id)
	})
}

func (e *Engine) finishNodeReboot(id string) {
	_ = e.mutate(context.Background(), "node_online", func(now time.Time) error {
		delete(e.timers, nodeTimerKey(id))
		if _, ok := e.rebooting[id]; !ok {
			return fmt.Errorf("%w: node %s no longer rebooting", ErrConflict, id)
		}
		delete(e.rebooting, id)
		e.bootedAt[id] = now
		if _, off := e.disabled[id]; !off {
			e.health.Release(id)
		}
		return nil
	})
}

// removeNodeLocked drops every trace of a node.
func (e *Engine) removeNodeLocked(id string) {
	i := e.nodeIndexLocked(id)
	if i >= 0 {
		e.nodes = slices.Delete(slices.Clone(e.nodes), i, i+1)
	}
	delete(e.latest, id)
	delete(e.seq, id)
	delete(e.bootedAt, id)
	delete(e.disabled, id)
	delete(e.rebooting, id)
	e.stopTimerLocked(nodeTimerKey(id))
	e.health.Remove(id)
}

func (e *Engine) stopTimerLocked(key string) {
	if t, ok := e.timers[key]; ok {
		t.Stop()
		delete(e.timers, key)
	}
}

// Alerts returns the alert list, newest first.
func (e *Engine) Alerts() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.alerts)
}

// AckAlert marks an alert acknowledged.
func (e *Engine) AckAlert(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: id required", ErrInvalid)
	}
	return e.mutate(ctx, "ack_alert", func(time.Time) error {
		for i, a := range e.alerts {
			if a.ID == id {
				alerts := slices.Clone(e.alerts)
				alerts[i].Acked = true
				e.alerts = alerts
				return nil
			}
		}
		return fmt.Errorf("%w: alert %s", ErrNotFound, id)
	})
}

// Settings returns the current settings.
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// UpdateSettings applies p and returns the resulting settings.
func (e *Engine) UpdateSettings(ctx context.Context, p SettingsPatch) (Settings, error) {
	if p.LowBatteryVolts != nil && (*p.LowBatteryVolts <= 0 || *p.LowBatteryVolts > 5) {
		return Settings{}, fmt.Errorf("%w: low_battery_volts %.2f", ErrInvalid, *p.LowBatteryVolts)
	}
	if p.HeartbeatMissingMinutes != nil && *p.HeartbeatMissingMinutes < 1 {
		return Settings{}, fmt.Errorf("%w: heartbeat_missing_minutes %d", ErrInvalid, *p.HeartbeatMissingMinutes)
	}
	var out Settings
	err := e.mutate(ctx, "update_settings", func(time.Time) error {
		if p.LowBatteryVolts != nil {
			e.settings.LowBatteryVolts = *p.LowBatteryVolts
		}
		if p.HeartbeatMissingMinutes != nil {
			e.settings.HeartbeatMissingMinutes = *p.HeartbeatMissingMinutes
		}
		out = e.settings
		return nil
	})
	return out, err
}

func reassign(n telemetry.NodeRegistryItem, gatewayID string) telemetry.NodeRegistryItem {
	if n.SiteID == "" || n.SiteID == "site-"+n.GatewayID {
		n.SiteID = "site-" + gatewayID
	}
	n.GatewayID = gatewayID
	return n
}

// retagLatestLocked points a moved node's latest message at its new gateway
// so snapshots agree with the registry before the node reports again.
func (e *Engine) retagLatestLocked(id, gatewayID string) {
	if m, ok := e.latest[id]; ok {
		m.GatewayID = gatewayID
		e.latest[id] = m
	}
}

func validLocation(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: location %.4f,%.4f", ErrInvalid, lat, lon)
	}
	return nil
}

func validNetworks(nets []telemetry.Network) error {
	for _, n := range nets {
		if !n.Valid() {
			return fmt.Errorf("%w: network %q", ErrInvalid, n)
		}
	}
	return nil
}

func gatewayTimerKey(id string) string { return "gw/" + id }
func nodeTimerKey(id string) string    { return "node/" + id }
