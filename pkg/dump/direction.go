package dump

// Direction identifies which side of the audio path a stream belongs to.
type Direction int

const (
	// DirectionOut is a playback stream.
	DirectionOut Direction = iota
	// DirectionIn is a capture stream.
	DirectionIn
)

// String returns the filename token for the direction.
func (d Direction) String() string {
	if d == DirectionIn {
		return "in"
	}
	return "out"
}
