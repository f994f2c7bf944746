// Package tracking turns detected landmarks into particle emissions by
// following each named marker from frame to frame.
package tracking

import (
	"fmt"
	"strings"

	"github.com/ayusman/snoezelen/internal/detector"
	"github.com/ayusman/snoezelen/internal/geometry"
)

// Marker names a tracked body part.
type Marker string

// Body markers, available for every detector type. Face and feet are only
// produced by the body models.
const (
	Face      Marker = "face"
	LeftHand  Marker = "left_hand"
	RightHand Marker = "right_hand"
	LeftFoot  Marker = "left_foot"
	RightFoot Marker = "right_foot"
)

var fingers = []struct {
	name  string
	index int
}{
	{"thumb", detector.ThumbTip},
	{"index", detector.IndexTip},
	{"middle", detector.MiddleTip},
	{"ring", detector.RingTip},
	{"pinky", detector.PinkyTip},
}

var bodyLandmarks = map[Marker]string{
	Face:      detector.Nose,
	LeftHand:  detector.LeftWrist,
	RightHand: detector.RightWrist,
	LeftFoot:  detector.LeftAnkle,
	RightFoot: detector.RightAnkle,
}

type handLandmark struct {
	side  string // "Left" or "Right"
	index int
}

// handMarkers maps hand model markers to a landmark on one hand.
var handMarkers = map[Marker]handLandmark{
	LeftHand:  {"Left", detector.Wrist},
	RightHand: {"Right", detector.Wrist},
}

func init() {
	for _, f := range fingers {
		handMarkers[FingerTip("Left", f.name)] = handLandmark{"Left", f.index}
		handMarkers[FingerTip("Right", f.name)] = handLandmark{"Right", f.index}
	}
}

// FingerTip returns the marker for a fingertip, e.g. left_index_tip.
func FingerTip(side, finger string) Marker {
	return Marker(strings.ToLower(side) + "_" + finger + "_tip")
}

// Markers returns every marker the detector type can produce.
func Markers(t detector.Type) []Marker {
	if t == detector.TypeHands {
		out := []Marker{LeftHand, RightHand}
		for _, side := range []string{"Left", "Right"} {
			for _, f := range fingers {
				out = append(out, FingerTip(side, f.name))
			}
		}
		return out
	}
	return []Marker{Face, LeftHand, RightHand, LeftFoot, RightFoot}
}

// ParseMarker validates a marker name for any detector type.
func ParseMarker(s string) (Marker, error) {
	m := Marker(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := bodyLandmarks[m]; ok {
		return m, nil
	}
	if _, ok := handMarkers[m]; ok {
		return m, nil
	}
	return "", fmt.Errorf("unknown marker %q", s)
}

// Observation is one marker's state in a single frame.
type Observation struct {
	Marker  Marker
	Point   geometry.Point
	Score   float64
	Visible bool
}

// Resolve picks the keypoint for each marker out of poses produced by a
// detector of type t. A marker is visible when its keypoint exists, is
// finite and scores at least minScore. One observation is returned per
// marker, in the order given.
func Resolve(t detector.Type, poses []detector.Pose, markers []Marker, minScore float64) []Observation {
	out := make([]Observation, 0, len(markers))

	var hands map[string]detector.Pose
	if t == detector.TypeHands {
		hands = assignHands(poses)
	}
	body := bestPose(poses)

	for _, m := range markers {
		obs := Observation{Marker: m}

		var kp detector.Keypoint
		var ok bool
		if t == detector.TypeHands {
			if hm, known := handMarkers[m]; known {
				if pose, found := hands[hm.side]; found {
					kp, ok = pose.At(hm.index)
				}
			}
		} else if name, known := bodyLandmarks[m]; known && body != nil {
			kp, ok = detector.Find(t, *body, name)
		}

		if ok {
			obs.Point = geometry.Pt(kp.X, kp.Y)
			obs.Score = kp.Score
			obs.Visible = kp.Score >= minScore && obs.Point.Finite()
		}
		out = append(out, obs)
	}
	return out
}

func bestPose(poses []detector.Pose) *detector.Pose {
	var best *detector.Pose
	for i := range poses {
		if best == nil || poses[i].Score > best.Score {
			best = &poses[i]
		}
	}
	return best
}

// assignHands keys hands by handedness. Unlabelled hands fill the left slot
// first, then the right. The higher scoring hand wins a duplicate label.
func assignHands(poses []detector.Pose) map[string]detector.Pose {
	hands := make(map[string]detector.Pose, 2)
	var unlabelled []detector.Pose
	for _, p := range poses {
		var side string
		switch strings.ToLower(p.Handedness) {
		case "left":
			side = "Left"
		case "right":
			side = "Right"
		default:
			unlabelled = append(unlabelled, p)
			continue
		}
		if prev, dup := hands[side]; !dup || p.Score > prev.Score {
			hands[side] = p
		}
	}
	for _, p := range unlabelled {
		for _, side := range []string{"Left", "Right"} {
			if _, taken := hands[side]; !taken {
				hands[side] = p
				break
			}
		}
	}
	return hands
}
