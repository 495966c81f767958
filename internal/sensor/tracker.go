package sensor

// Tracker holds the previous acceleration vector for one session. It is not
// safe for concurrent use; the ingestion loop owns it.
type Tracker struct {
	prev Vector
}

// Update returns previous minus v per axis and then stores v as previous.
// Calls must follow message arrival order.
func (t *Tracker) Update(v Vector) Delta {
	d := Delta{
		DX: t.prev.X - v.X,
		DY: t.prev.Y - v.Y,
		DZ: t.prev.Z - v.Z,
	}
	t.prev = v
	return d
}

// Reset seeds the previous vector back to zero.
func (t *Tracker) Reset() {
	t.prev = Vector{}
}

// Previous reports the vector the next delta will be computed against.
func (t *Tracker) Previous() Vector {
	return t.prev
}
