package detector

import (
	"fmt"
	"strings"
)

// Type identifies a detection model. Each model numbers its keypoints
// differently, so indices must always be looked up through the model's table.
type Type string

const (
	// TypeMoveNet is a single or multi person body model with 17 COCO keypoints.
	TypeMoveNet Type = "movenet"
	// TypeBlazePose is the 33 keypoint MediaPipe body model.
	TypeBlazePose Type = "blazepose"
	// TypeHands is the MediaPipe hand model with 21 landmarks per hand.
	TypeHands Type = "hands"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Keypoint names shared by the body models.
const (
	Nose       = "nose"
	LeftWrist  = "left_wrist"
	RightWrist = "right_wrist"
	LeftAnkle  = "left_ankle"
	RightAnkle = "right_ankle"
)

var cocoNames = []string{
	"nose",
	"left_eye", "right_eye",
	"left_ear", "right_ear",
	"left_shoulder", "right_shoulder",
	"left_elbow", "right_elbow",
	"left_wrist", "right_wrist",
	"left_hip", "right_hip",
	"left_knee", "right_knee",
	"left_ankle", "right_ankle",
}

var blazePoseNames = []string{
	"nose",
	"left_eye_inner", "left_eye", "left_eye_outer",
	"right_eye_inner", "right_eye", "right_eye_outer",
	"left_ear", "right_ear",
	"mouth_left", "mouth_right",
	"left_shoulder", "right_shoulder",
	"left_elbow", "right_elbow",
	"left_wrist", "right_wrist",
	"left_pinky", "right_pinky",
	"left_index", "right_index",
	"left_thumb", "right_thumb",
	"left_hip", "right_hip",
	"left_knee", "right_knee",
	"left_ankle", "right_ankle",
	"left_heel", "right_heel",
	"left_foot_index", "right_foot_index",
}

var handNames = [NumLandmarks]string{
	Wrist:     "wrist",
	ThumbCMC:  "thumb_cmc",
	ThumbMCP:  "thumb_mcp",
	ThumbIP:   "thumb_ip",
	ThumbTip:  "thumb_tip",
	IndexMCP:  "index_finger_mcp",
	IndexPIP:  "index_finger_pip",
	IndexDIP:  "index_finger_dip",
	IndexTip:  "index_finger_tip",
	MiddleMCP: "middle_finger_mcp",
	MiddlePIP: "middle_finger_pip",
	MiddleDIP: "middle_finger_dip",
	MiddleTip: "middle_finger_tip",
	RingMCP:   "ring_finger_mcp",
	RingPIP:   "ring_finger_pip",
	RingDIP:   "ring_finger_dip",
	RingTip:   "ring_finger_tip",
	PinkyMCP:  "pinky_finger_mcp",
	PinkyPIP:  "pinky_finger_pip",
	PinkyDIP:  "pinky_finger_dip",
	PinkyTip:  "pinky_finger_tip",
}

var indexTables = map[Type]map[string]int{}

func init() {
	for t, names := range map[Type][]string{
		TypeMoveNet:   cocoNames,
		TypeBlazePose: blazePoseNames,
		TypeHands:     handNames[:],
	} {
		table := make(map[string]int, len(names))
		for i, n := range names {
			table[n] = i
		}
		indexTables[t] = table
	}
}

// ParseType validates a detector type name.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown detector type %q", s)
	}
	return t, nil
}

// Valid reports whether t is a known detector type.
func (t Type) Valid() bool {
	_, ok := indexTables[t]
	return ok
}

// Names returns the keypoint names of t in index order.
func (t Type) Names() []string {
	switch t {
	case TypeMoveNet:
		return cocoNames
	case TypeBlazePose:
		return blazePoseNames
	case TypeHands:
		return handNames[:]
	}
	return nil
}

// NumKeypoints returns how many keypoints one pose of type t carries.
func (t Type) NumKeypoints() int {
	return len(t.Names())
}

// Lookup returns the index of the named keypoint in t's layout.
func Lookup(t Type, name string) (int, bool) {
	i, ok := indexTables[t][name]
	return i, ok
}

// Find returns the named keypoint of pose p produced by a detector of type t.
func Find(t Type, p Pose, name string) (Keypoint, bool) {
	i, ok := Lookup(t, name)
	if !ok {
		return Keypoint{}, false
	}
	return p.At(i)
}
