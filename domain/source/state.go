package source

// PlaybackState is the lifecycle state of a video decode source.
type PlaybackState int32

const (
	Stopped PlaybackState = iota
	Playing
	Paused
	SeekPending
)

func (s PlaybackState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case SeekPending:
		return "seek-pending"
	}
	return "unknown"
}

// CaptureState is the lifecycle state of a screen/window capture source.
type CaptureState int32

const (
	CaptureIdle CaptureState = iota
	Capturing
	CaptureError
)

func (s CaptureState) String() string {
	switch s {
	case CaptureIdle:
		return "idle"
	case Capturing:
		return "capturing"
	case CaptureError:
		return "error"
	}
	return "unknown"
}
