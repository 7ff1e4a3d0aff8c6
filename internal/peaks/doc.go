// Package peaks locates sharp amplitude transients (candidate knocks) in a
// clip's RMS envelope using a per-clip dynamic threshold and a refractory
// interval that collapses echo retriggers.
package peaks
