package timeline

// PivotOffset is the per-axis translation that makes a zoom pivot around the
// authored point instead of the frame corner. coord is a percentage of
// dimension; the same formula is used by preview and by the compositor.
func PivotOffset(coord, dimension, scale float64) float64 {
	return (50 - coord/100*100) * dimension * (scale - 1) / 100
}

// Offsets returns the pivot offsets of s for a frame of width x height pixels.
func (s VisualState) Offsets(width, height int) (dx, dy float64) {
	return PivotOffset(s.X, float64(width), s.Scale), PivotOffset(s.Y, float64(height), s.Scale)
}
