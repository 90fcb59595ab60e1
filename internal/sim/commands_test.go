package sim

import (
	"errors"
	"testing"
	"time"

	"sentinel-sim/internal/telemetry"
)

func TestGatewayRebootPublishesTwice(t *testing.T) {
	e, clk := newTestEngine(t, quietConfig(), testRegistry())
	r := &recorder{}
	e.Subscribe(r.deliver)

	if err := e.RebootGateway(bg, "gw-a"); err != nil {
		t.Fatalf("RebootGateway: %v", err)
	}
	if r.len() != 1 {
		t.Fatalf("expected an immediate publish, got %d", r.len())
	}
	if st := gatewayStatus(t, r.last(), "gw-a"); st != GatewayRebooting {
		t.Fatalf("status = %s, want rebooting", st)
	}

	clk.Advance(time.Second)
	if r.len() != 1 {
		t.Fatalf("gateway came back before the reboot delay")
	}
	clk.Advance(500 * time.Millisecond)
	if r.len() != 2 {
		t.Fatalf("expected a second publish after the reboot delay, got %d", r.len())
	}
	if st := gatewayStatus(t, r.last(), "gw-a"); st != GatewayOnline {
		t.Fatalf("status = %s, want online", st)
	}
}

func TestRebootingGatewaySilencesItsNodes(t *testing.T) {
	e, clk := newTestEngine(t, quietConfig(), testRegistry())
	if err := e.RebootGateway(bg, "gw-a"); err != nil {
		t.Fatalf("RebootGateway: %v", err)
	}
	snap := e.Tick(bg)
	for _, id := range []string{"node-1", "node-2", "node-3"} {
		if _, ok := snap.Latest[id]; ok {
			t.Errorf("%s emitted behind a rebooting gateway", id)
		}
	}
	if _, ok := snap.Latest["node-4"]; !ok {
		t.Errorf("node-4 on another gateway should still emit")
	}
	clk.Advance(2 * time.Second)
	snap = e.Tick(bg)
	if _, ok := snap.Latest["node-1"]; !ok {
		t.Errorf("node-1 should emit once the gateway is back")
	}
}

func TestNodeRebootKeepsSequence(t *testing.T) {
	e, clk := newTestEngine(t, quietConfig(), testRegistry())
	before := e.Tick(bg).Latest["node-1"]

	n, err := e.ControlNodes(bg, NodeControl{Action: ActionReboot, NodeIDs: []string{"node-1", "ghost"}})
	if err != nil || n != 1 {
		t.Fatalf("ControlNodes = %d, %v", n, err)
	}
	during := e.Tick(bg).Latest["node-1"]
	if during.Seq != before.Seq {
		t.Fatalf("rebooting node emitted: seq %d", during.Seq)
	}

	clk.Advance(1500 * time.Millisecond)
	after := e.Tick(bg).Latest["node-1"]
	if after.Seq != before.Seq+1 {
		t.Fatalf("seq after reboot = %d, want %d", after.Seq, before.Seq+1)
	}
	if after.UptimeS > 1 {
		t.Fatalf("uptime should restart at reboot, got %d", after.UptimeS)
	}
}

func TestDisabledNodeStaysOfflineThroughReboot(t *testing.T) {
	e, clk := newTestEngine(t, quietConfig(), testRegistry())
	if _, err := e.ControlNodes(bg, NodeControl{Action: ActionDisable, NodeIDs: []string{"node-2"}}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := e.ControlNodes(bg, NodeControl{Action: ActionReboot, NodeIDs: []string{"node-2"}}); err != nil {
		t.Fatalf("reboot: %v", err)
	}
	clk.Advance(2 * time.Second)
	if _, ok := e.Tick(bg).Latest["node-2"]; ok {
		t.Fatalf("disabled node emitted after reboot")
	}
	if _, err := e.ControlNodes(bg, NodeControl{Action: ActionEnable, NodeIDs: []string{"node-2"}}); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if _, ok := e.Tick(bg).Latest["node-2"]; !ok {
		t.Fatalf("enabled node should emit")
	}
}

func TestControlNodesValidation(t *testing.T) {
	e, _ := newTestEngine(t, quietConfig(), testRegistry())
	cases := []struct {
		name string
		c    NodeControl
		want error
	}{
		{"no ids", NodeControl{Action: ActionEnable}, ErrInvalid},
		{"unknown action", NodeControl{Action: "explode", NodeIDs: []string{"node-1"}}, ErrInvalid},
		{"assign without gateway", NodeControl{Action: ActionAssignGateway, NodeIDs: []string{"node-1"}}, ErrInvalid},
		{"assign to unknown gateway", NodeControl{Action: ActionAssignGateway, NodeIDs: []string{"node-1"}, GatewayID: "gw-x"}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.ControlNodes(bg, tc.c); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestAssignGateway(t *testing.T) {
	e, _ := newTestEngine(t, quietConfig(), testRegistry())
	n, err := e.ControlNodes(bg, NodeControl{Action: ActionAssignGateway, NodeIDs: []string{"node-1", "node-2"}, GatewayID: "gw-b"})
	if err != nil || n != 2 {
		t.Fatalf("assign = %d, %v", n, err)
	}
	snap := e.Tick(bg)
	if got := len(snap.NodesOf("gw-b")); got != 3 {
		t.Fatalf("gw-b has %d nodes, want 3", got)
	}
	if m := snap.Latest["node-1"]; m.GatewayID != "gw-b" {
		t.Fatalf("message gateway = %s, want gw-b", m.GatewayID)
	}
	node, _ := e.Registry().Node("node-1")
	if node.SiteID != "site-gw-b" {
		t.Fatalf("site id = %s", node.SiteID)
	}
}

func TestReassignRetagsLatestMessage(t *testing.T) {
	e, _ := newTestEngine(t, quietConfig(), testRegistry())
	e.Tick(bg)

	if _, err := e.ControlNodes(bg, NodeControl{Action: ActionAssignGateway, NodeIDs: []string{"node-1"}, GatewayID: "gw-b"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	gw := "gw-b"
	if _, err := e.PatchNode(bg, NodePatch{NodeID: "node-2", GatewayID: &gw}); err != nil {
		t.Fatalf("PatchNode: %v", err)
	}

	// no tick in between: the published snapshot must already agree
	snap := e.Snapshot()
	for _, id := range []string{"node-1", "node-2"} {
		m, ok := snap.Latest[id]
		if !ok {
			t.Fatalf("%s lost its latest message", id)
		}
		if m.GatewayID != "gw-b" {
			t.Fatalf("%s latest message on %s, registry says gw-b", id, m.GatewayID)
		}
	}
	if m := snap.Latest["node-3"]; m.GatewayID != "gw-a" {
		t.Fatalf("untouched node retagged to %s", m.GatewayID)
	}
}

func TestGatewayLifecycle(t *testing.T) {
	e, _ := newTestEngine(t, quietConfig(), testRegistry())
	r := &recorder{}
	e.Subscribe(r.deliver)

	g, err := e.CreateGateway(bg, telemetry.GatewayRegistryItem{GatewayID: "gw-c", Location: telemetry.Location{Lat: 3, Lon: 4}})
	if err != nil {
		t.Fatalf("CreateGateway: %v", err)
	}
	if g.Backhaul != telemetry.Backhaul4G || g.DisplayName != "gw-c" {
		t.Fatalf("defaults not applied: %+v", g)
	}
	if _, err := e.CreateGateway(bg, telemetry.GatewayRegistryItem{GatewayID: "gw-c"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate create err = %v", err)
	}
	if _, err := e.CreateGateway(bg, telemetry.GatewayRegistryItem{GatewayID: "bad id!"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("bad id err = %v", err)
	}

	name := "Gateway C"
	offline := GatewayOffline
	g, err = e.PatchGateway(bg, GatewayPatch{GatewayID: "gw-c", DisplayName: &name, Status: &offline})
	if err != nil || g.DisplayName != name {
		t.Fatalf("PatchGateway = %+v, %v", g, err)
	}
	if st := gatewayStatus(t, r.last(), "gw-c"); st != GatewayOffline {
		t.Fatalf("status = %s", st)
	}
	if _, err := e.PatchGateway(bg, GatewayPatch{GatewayID: "gw-z"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("patch unknown err = %v", err)
	}

	if err := e.DeleteGateway(bg, "gw-c", false); err != nil {
		t.Fatalf("DeleteGateway: %v", err)
	}
	if _, ok := r.last().Gateway("gw-c"); ok {
		t.Fatalf("deleted gateway still in snapshot")
	}
	if r.len() != 3 {
		t.Fatalf("expected one publish per successful mutation, got %d", r.len())
	}
}

func TestDeleteGatewayWithNodes(t *testing.T) {
	e, _ := newTestEngine(t, quietConfig(), testRegistry())
	e.Tick(bg)
	if err := e.DeleteGateway(bg, "gw-a", false); !errors.Is(err, ErrConflict) {
		t.Fatalf("non-forced delete err = %v", err)
	}
	if err := e.DeleteGateway(bg, "gw-a", true); err != nil {
		t.Fatalf("forced delete: %v", err)
	}
	snap := e.Snapshot()
	if len(snap.Nodes) != 1 || len(snap.Latest) != 1 {
		t.Fatalf("forced delete should drop attached nodes: nodes=%d latest=%d", len(snap.Nodes), len(snap.Latest))
	}
	if err := e.DeleteGateway(bg, "gw-a", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestNodeLifecycle(t *testing.T) {
	e, _ := newTestEngine(t, quietConfig(), testRegistry())
	n, err := e.CreateNode(bg, telemetry.NodeRegistryItem{NodeID: "node-9", Profile: telemetry.ProfileSMS, GatewayID: "gw-b"})
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if n.Role != telemetry.RoleSensor || n.SiteID != "site-gw-b" || n.Location.Lat != 2 {
		t.Fatalf("defaults not applied: %+v", n)
	}
	if _, err := e.CreateNode(bg, telemetry.NodeRegistryItem{NodeID: "node-9", Profile: telemetry.ProfileSMS, GatewayID: "gw-b"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate err = %v", err)
	}
	if _, err := e.CreateNode(bg, telemetry.NodeRegistryItem{NodeID: "node-10", Profile: "xyz", GatewayID: "gw-b"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("bad profile err = %v", err)
	}
	if _, err := e.CreateNode(bg, telemetry.NodeRegistryItem{NodeID: "node-10", Profile: telemetry.ProfileSMS, GatewayID: "gw-x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown gateway err = %v", err)
	}

	e.Tick(bg)
	offline := "offline"
	if _, err := e.PatchNode(bg, NodePatch{NodeID: "node-9", Status: &offline}); err != nil {
		t.Fatalf("PatchNode: %v", err)
	}
	seq := e.Snapshot().Latest["node-9"].Seq
	if got := e.Tick(bg).Latest["node-9"].Seq; got != seq {
		t.Fatalf("node patched offline still emitted")
	}

	if err := e.DeleteNode(bg, "node-9"); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	if _, ok := e.Snapshot().Latest["node-9"]; ok {
		t.Fatalf("deleted node kept its latest message")
	}
	if err := e.DeleteNode(bg, "node-9"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestSettingsAndAck(t *testing.T) {
	cfg := quietConfig()
	cfg.Alerts.LowBatteryProbability = 1
	e, _ := newTestEngine(t, cfg, testRegistry())

	volts := 5.0
	s, err := e.UpdateSettings(bg, SettingsPatch{LowBatteryVolts: &volts})
	if err != nil || s.LowBatteryVolts != 5 || s.HeartbeatMissingMinutes != 10 {
		t.Fatalf("UpdateSettings = %+v, %v", s, err)
	}
	bad := 0
	if _, err := e.UpdateSettings(bg, SettingsPatch{HeartbeatMissingMinutes: &bad}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("bad minutes err = %v", err)
	}

	e.Tick(bg)
	alerts := e.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("expected one low-battery alert, got %d", len(alerts))
	}
	if err := e.AckAlert(bg, alerts[0].ID); err != nil {
		t.Fatalf("AckAlert: %v", err)
	}
	if !e.Snapshot().Alerts[0].Acked {
		t.Fatalf("alert not acked")
	}
	if alerts[0].Acked {
		t.Fatalf("earlier copy observed the ack")
	}
	if err := e.AckAlert(bg, "AL-NOPE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown ack err = %v", err)
	}
}

func TestValidID(t *testing.T) {
	for _, id := range []string{"gw-1", "node_0001", "a.b", "X"} {
		if !ValidID(id) {
			t.Errorf("%q should be valid", id)
		}
	}
	for _, id := range []string{"", "-lead", "has space", "slash/id"} {
		if ValidID(id) {
			t.Errorf("%q should be invalid", id)
		}
	}
}
