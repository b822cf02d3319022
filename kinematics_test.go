package netcode

import (
	"math"
	"testing"

	"warp-rally/netcode/internal/proto"
)

func TestIntegrateControlsThrustsAlongFacing(t *testing.T) {
	state := proto.PlayerState{Orientation: proto.Quat{W: 1}}
	update := integrateControls(state, proto.ControlState{})

	if update.Velocity == nil || update.Position == nil || update.Speed == nil {
		t.Fatalf("integration must produce transform fields")
	}
	if update.Velocity.Z >= 0 {
		t.Fatalf("ships face -Z; expected negative Z velocity, got %+v", *update.Velocity)
	}
	if update.Position.Z >= 0 {
		t.Fatalf("position must follow velocity, got %+v", *update.Position)
	}
	if *update.Speed <= 0 {
		t.Fatalf("expected positive speed, got %v", *update.Speed)
	}
	if *update.Boosting {
		t.Fatalf("boost flag must track controls")
	}
}

func TestIntegrateControlsBoostScalesThrust(t *testing.T) {
	state := proto.PlayerState{Orientation: proto.Quat{W: 1}}

	plain := integrateControls(state, proto.ControlState{})
	boosted := integrateControls(state, proto.ControlState{Boost: true})

	ratio := *boosted.Speed / *plain.Speed
	if math.Abs(ratio-boostMultiplier) > 1e-9 {
		t.Fatalf("boost speed ratio = %v, want %v", ratio, boostMultiplier)
	}
	if !*boosted.Boosting {
		t.Fatalf("boost flag must be set while boosting")
	}
}

func TestIntegrateControlsBrakeShedsSpeed(t *testing.T) {
	state := proto.PlayerState{
		Orientation: proto.Quat{W: 1},
		Velocity:    proto.Vec3{Z: -60},
	}

	braked := integrateControls(state, proto.ControlState{Brake: true})
	coasting := integrateControls(state, proto.ControlState{})

	if *braked.Speed >= *coasting.Speed {
		t.Fatalf("braking must shed speed: braked %v, coasting %v", *braked.Speed, *coasting.Speed)
	}
}

func TestIntegrateControlsClampsAtMaxSpeed(t *testing.T) {
	state := proto.PlayerState{
		Orientation: proto.Quat{W: 1},
		Velocity:    proto.Vec3{Z: -shipMaxSpeed},
	}

	update := integrateControls(state, proto.ControlState{})
	if *update.Speed > shipMaxSpeed+1e-9 {
		t.Fatalf("speed must clamp at %v, got %v", shipMaxSpeed, *update.Speed)
	}
}

func TestIntegrateControlsTurnsAboutLocalUp(t *testing.T) {
	state := proto.PlayerState{Orientation: proto.Quat{W: 1}}

	update := integrateControls(state, proto.ControlState{Left: true})
	forward := quatForward(*update.Orientation)

	if forward.X >= 0 {
		t.Fatalf("left turn should swing the nose toward -X, got %+v", forward)
	}
	if math.Abs(forward.Y) > 1e-9 {
		t.Fatalf("yaw must not pitch the ship, got %+v", forward)
	}
}

func TestIntegrateControlsToleratesZeroOrientation(t *testing.T) {
	update := integrateControls(proto.PlayerState{}, proto.ControlState{Left: true, Up: true})

	if update.Orientation == nil {
		t.Fatalf("integration must produce an orientation")
	}
	q := *update.Orientation
	length := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if math.IsNaN(length) || math.Abs(length-1) > 1e-9 {
		t.Fatalf("orientation must normalize from a zero value, got length %v", length)
	}
}

func TestQuatForwardMatchesKnownRotations(t *testing.T) {
	identity := quatForward(proto.Quat{W: 1})
	if math.Abs(identity.Z+1) > 1e-9 || math.Abs(identity.X) > 1e-9 {
		t.Fatalf("identity forward should be -Z, got %+v", identity)
	}

	quarter := yawRotation(math.Pi / 2)
	turned := quatForward(quarter)
	if math.Abs(turned.X+1) > 1e-9 || math.Abs(turned.Z) > 1e-9 {
		t.Fatalf("quarter yaw forward should be -X, got %+v", turned)
	}
}
