package alignment

// Stage is a pipeline state. A run moves forward through the stages in
// declaration order and ends at StageWarped or StageFailed.
type Stage int

const (
	StageLoaded Stage = iota
	StageGrayscaleReady
	StageKeypointsDetected
	StageMatched
	StageFiltered
	StageHomographyFit
	StageWarped
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageLoaded:
		return "loaded"
	case StageGrayscaleReady:
		return "grayscale_ready"
	case StageKeypointsDetected:
		return "keypoints_detected"
	case StageMatched:
		return "matched"
	case StageFiltered:
		return "filtered"
	case StageHomographyFit:
		return "homography_fit"
	case StageWarped:
		return "warped"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition leaves s.
func (s Stage) Terminal() bool {
	return s == StageWarped || s == StageFailed
}
