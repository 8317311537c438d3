package detection

import "strings"

// PointName selects which part of a detection the camera aims at.
type PointName int

const (
	PointAuto PointName = iota
	PointHead
	PointNeck
	PointBody
	PointLegs
)

func (n PointName) String() string {
	switch n {
	case PointHead:
		return "HEAD"
	case PointNeck:
		return "NECK"
	case PointBody:
		return "BODY"
	case PointLegs:
		return "LEGS"
	default:
		return "AUTO"
	}
}

// ParsePointName accepts the String form case-insensitively. Unknown names
// map to PointAuto.
func ParsePointName(s string) PointName {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HEAD":
		return PointHead
	case "NECK":
		return PointNeck
	case "BODY":
		return PointBody
	case "LEGS":
		return PointLegs
	default:
		return PointAuto
	}
}

// Locator resolves the aim point for a detection. ok is false when the
// object cannot provide one.
type Locator interface {
	TargetPoint(obj *Object, name PointName) (pt Point, ok bool)
}

// CenterLocator aims at the object centre regardless of the point name. It
// serves box-only detectors.
type CenterLocator struct{}

func (CenterLocator) TargetPoint(obj *Object, _ PointName) (Point, bool) {
	if obj == nil || obj.Center == nil {
		return Point{}, false
	}
	return *obj.Center, true
}

// COCO-17 keypoint layout as emitted by single-pose estimators.
const (
	kpNose = iota
	kpLeftEye
	kpRightEye
	kpLeftEar
	kpRightEar
	kpLeftShoulder
	kpRightShoulder
	kpLeftElbow
	kpRightElbow
	kpLeftWrist
	kpRightWrist
	kpLeftHip
	kpRightHip
	kpLeftKnee
	kpRightKnee
	kpLeftAnkle
	kpRightAnkle

	poseKeypoints
)

// PoseLocator derives body-part aim points from pose keypoints and falls
// back to the object centre when keypoints are missing.
type PoseLocator struct {
	// ShoulderScoreMax is the shoulder score under which AUTO may prefer
	// the head.
	ShoulderScoreMax float64
	// HeadScoreGap is the minimum ear-over-shoulder score margin for AUTO to
	// prefer the head.
	HeadScoreGap float64
}

// NewPoseLocator returns a PoseLocator with the stock AUTO thresholds.
func NewPoseLocator() PoseLocator {
	return PoseLocator{ShoulderScoreMax: 0.3, HeadScoreGap: 0.5}
}

func mid(a, b Keypoint) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

func (l PoseLocator) TargetPoint(obj *Object, name PointName) (Point, bool) {
	if obj == nil {
		return Point{}, false
	}
	if len(obj.Keypoints) < poseKeypoints {
		return CenterLocator{}.TargetPoint(obj, name)
	}
	kp := obj.Keypoints

	head := mid(kp[kpLeftEar], kp[kpRightEar])
	neck := mid(kp[kpLeftShoulder], kp[kpRightShoulder])
	hips := mid(kp[kpLeftHip], kp[kpRightHip])
	heart := Point{
		X: neck.X + (hips.X-neck.X)/2,
		Y: neck.Y + (hips.Y-neck.Y)/3.5,
	}

	switch name {
	case PointHead:
		return head, true
	case PointNeck:
		return neck, true
	case PointBody:
		return heart, true
	case PointLegs:
		hip, knee := kp[kpRightHip], kp[kpRightKnee]
		if kp[kpLeftKnee].Score > kp[kpRightKnee].Score {
			hip, knee = kp[kpLeftHip], kp[kpLeftKnee]
		}
		return Point{
			X: hip.X + (knee.X-hip.X)/3,
			Y: hip.Y + (knee.Y-hip.Y)/2,
		}, true
	default:
		ear, shoulder := kp[kpLeftEar].Score, kp[kpLeftShoulder].Score
		if ear > shoulder && shoulder < l.ShoulderScoreMax && ear-shoulder >= l.HeadScoreGap {
			return head, true
		}
		return heart, true
	}
}
