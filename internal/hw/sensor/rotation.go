package sensor

import "sync/atomic"

// FixedRotation always reports the same rotation.
type FixedRotation Rotation

func (f FixedRotation) Rotation() Rotation { return Rotation(f) }

// RotationVar is a RotationSource that can be updated concurrently,
// e.g. from a rotation notification or the control API.
type RotationVar struct {
	v atomic.Int32
}

// NewRotationVar returns a RotationVar holding r.
func NewRotationVar(r Rotation) *RotationVar {
	rv := &RotationVar{}
	rv.Set(r)
	return rv
}

func (rv *RotationVar) Set(r Rotation) { rv.v.Store(int32(r)) }

func (rv *RotationVar) Rotation() Rotation { return Rotation(rv.v.Load()) }
