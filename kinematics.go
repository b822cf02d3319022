package netcode

import (
	"math"

	"warp-rally/netcode/internal/proto"
)

// integrateControls advances a mirrored player state by one input interval.
// This is the host-side arbiter step for remote ships: deliberately simple,
// fully deterministic, and applied only to directory mirrors. The sender's
// own prediction runs a richer model; the periodic full state reconciles the
// two.
func integrateControls(state proto.PlayerState, controls proto.ControlState) PlayerStateUpdate {
	dt := inputSendInterval.Seconds()

	orientation := quatNormalize(state.Orientation)
	if controls.Left {
		orientation = quatMul(orientation, yawRotation(shipTurnRate*dt))
	}
	if controls.Right {
		orientation = quatMul(orientation, yawRotation(-shipTurnRate*dt))
	}
	if controls.Up {
		orientation = quatMul(orientation, pitchRotation(shipTurnRate*dt))
	}
	if controls.Down {
		orientation = quatMul(orientation, pitchRotation(-shipTurnRate*dt))
	}
	orientation = quatNormalize(orientation)

	accel := shipThrust
	maxSpeed := shipMaxSpeed
	if controls.Boost {
		accel *= boostMultiplier
		maxSpeed *= boostMultiplier
	}

	forward := quatForward(orientation)
	velocity := state.Velocity
	velocity.X += forward.X * accel * dt
	velocity.Y += forward.Y * accel * dt
	velocity.Z += forward.Z * accel * dt

	if controls.Brake {
		speed := vecLength(velocity)
		if speed > 0 {
			scale := math.Max(0, speed-shipBrakeDecel*dt) / speed
			velocity = vecScale(velocity, scale)
		}
	}

	speed := vecLength(velocity)
	if speed > maxSpeed {
		velocity = vecScale(velocity, maxSpeed/speed)
		speed = maxSpeed
	}

	position := state.Position
	position.X += velocity.X * dt
	position.Y += velocity.Y * dt
	position.Z += velocity.Z * dt

	boosting := controls.Boost
	return PlayerStateUpdate{
		Position:    &position,
		Orientation: &orientation,
		Velocity:    &velocity,
		Speed:       &speed,
		Boosting:    &boosting,
	}
}

// yawRotation builds a rotation about the ship's up axis.
func yawRotation(angle float64) proto.Quat {
	half := angle / 2
	return proto.Quat{Y: math.Sin(half), W: math.Cos(half)}
}

// pitchRotation builds a rotation about the ship's right axis.
func pitchRotation(angle float64) proto.Quat {
	half := angle / 2
	return proto.Quat{X: math.Sin(half), W: math.Cos(half)}
}

// quatMul is the Hamilton product. Post-multiplying an orientation rotates
// about the ship's local axes, which is how a ship turns.
func quatMul(a, b proto.Quat) proto.Quat {
	return proto.Quat{
		W: a.W*b.W - a.X*b.X - a.Y*b.Y - a.Z*b.Z,
		X: a.W*b.X + a.X*b.W + a.Y*b.Z - a.Z*b.Y,
		Y: a.W*b.Y - a.X*b.Z + a.Y*b.W + a.Z*b.X,
		Z: a.W*b.Z + a.X*b.Y - a.Y*b.X + a.Z*b.W,
	}
}

// quatNormalize returns the unit quaternion, treating a zero value as the
// identity so never-initialized mirrors behave sanely.
func quatNormalize(q proto.Quat) proto.Quat {
	length := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if length < 1e-9 {
		return proto.Quat{W: 1}
	}
	return proto.Quat{X: q.X / length, Y: q.Y / length, Z: q.Z / length, W: q.W / length}
}

// quatForward rotates the ship's rest facing (0,0,-1) by q. Ships face -Z,
// matching the browser renderer's convention.
func quatForward(q proto.Quat) proto.Vec3 {
	return proto.Vec3{
		X: -2 * (q.X*q.Z + q.W*q.Y),
		Y: -2 * (q.Y*q.Z - q.W*q.X),
		Z: -(1 - 2*(q.X*q.X+q.Y*q.Y)),
	}
}

func vecLength(v proto.Vec3) float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func vecScale(v proto.Vec3, s float64) proto.Vec3 {
	return proto.Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}
