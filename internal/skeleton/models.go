package skeleton

// node is a topology tree entry. Only the parent/child structure matters
// here; keypoint ids belong to the pose estimator, not to this package.
type node struct {
	name     string
	children []node
}

func n(name string, children ...node) node {
	return node{name: name, children: children}
}

// links flattens the tree into parent/child pairs in pre-order.
func (nd node) links() []Pair {
	var out []Pair
	var walk func(node)
	walk = func(p node) {
		for _, c := range p.children {
			out = append(out, Pair{A: p.name, B: c.name})
			walk(c)
		}
	}
	walk(nd)
	return out
}

func leg(side string) node {
	return n(side+"Hip",
		n(side+"Knee",
			n(side+"Ankle",
				n(side+"BigToe", n(side+"SmallToe")),
				n(side+"Heel"),
			),
		),
	)
}

func arm(side string) node {
	return n(side+"Shoulder", n(side+"Elbow", n(side+"Wrist")))
}

var modelTrees = map[string]node{
	"BODY_25B": n("CHip",
		leg("R"), leg("L"),
		n("Neck",
			n("Head", n("Nose")),
			arm("R"), arm("L"),
		),
	),
	"BODY_25": n("CHip",
		leg("R"), leg("L"),
		n("Neck",
			n("Nose", n("REye", n("REar")), n("LEye", n("LEar"))),
			arm("R"), arm("L"),
		),
	),
	"HALPE_26": n("Hip",
		leg("R"), leg("L"),
		n("Neck",
			n("Head", n("Nose")),
			arm("R"), arm("L"),
		),
	),
	"COCO_17": n("Hip",
		n("RHip", n("RKnee", n("RAnkle"))),
		n("LHip", n("LKnee", n("LAnkle"))),
		n("Neck",
			n("Nose", n("REye", n("REar")), n("LEye", n("LEar"))),
			arm("R"), arm("L"),
		),
	),
	"BLAZEPOSE": n("root",
		n("right_hip", n("right_knee", n("right_ankle", n("right_heel"), n("right_foot_index")))),
		n("left_hip", n("left_knee", n("left_ankle", n("left_heel"), n("left_foot_index")))),
		n("nose", n("right_eye"), n("left_eye")),
		n("right_shoulder", n("right_elbow", n("right_wrist", n("right_pinky"), n("right_index"), n("right_thumb")))),
		n("left_shoulder", n("left_elbow", n("left_wrist", n("left_pinky"), n("left_index"), n("left_thumb")))),
	),
}

func seg(name string, candidates ...[2]string) SegmentPattern {
	return SegmentPattern{Name: name, Candidates: candidates}
}

func jnt(name string, candidates ...[3]string) JointPattern {
	return JointPattern{Name: name, Candidates: candidates}
}

// standardSegments covers both the OpenPose style names (RHip, Neck) and the
// BlazePose style names (right_hip, nose). Candidates are tried in order.
var standardSegments = []SegmentPattern{
	seg("Trunk",
		[2]string{"Neck", "Hip"}, [2]string{"Neck", "CHip"}, [2]string{"Neck", "RHip"}, [2]string{"Neck", "LHip"},
		[2]string{"C7", "Hip"}, [2]string{"C7", "CHip"}, [2]string{"C7", "RHip"}, [2]string{"C7", "LHip"},
		[2]string{"nose", "right_hip"}, [2]string{"nose", "left_hip"}),
	seg("Head",
		[2]string{"Neck", "Head"}, [2]string{"Neck", "Nose"}, [2]string{"C7", "Head"}, [2]string{"C7", "Nose"},
		[2]string{"nose", "right_eye"}, [2]string{"nose", "left_eye"}),
	seg("Upper_Arm_R", [2]string{"RShoulder", "RElbow"}, [2]string{"right_shoulder", "right_elbow"}),
	seg("Upper_Arm_L", [2]string{"LShoulder", "LElbow"}, [2]string{"left_shoulder", "left_elbow"}),
	seg("Forearm_R", [2]string{"RElbow", "RWrist"}, [2]string{"right_elbow", "right_wrist"}),
	seg("Forearm_L", [2]string{"LElbow", "LWrist"}, [2]string{"left_elbow", "left_wrist"}),
	seg("Thigh_R", [2]string{"RHip", "RKnee"}, [2]string{"right_hip", "right_knee"}),
	seg("Thigh_L", [2]string{"LHip", "LKnee"}, [2]string{"left_hip", "left_knee"}),
	seg("Shank_R", [2]string{"RKnee", "RAnkle"}, [2]string{"right_knee", "right_ankle"}),
	seg("Shank_L", [2]string{"LKnee", "LAnkle"}, [2]string{"left_knee", "left_ankle"}),
	seg("Foot_R",
		[2]string{"RAnkle", "RBigToe"}, [2]string{"RAnkle", "RSmallToe"}, [2]string{"RAnkle", "RHeel"},
		[2]string{"right_ankle", "right_foot_index"}, [2]string{"right_ankle", "right_heel"}),
	seg("Foot_L",
		[2]string{"LAnkle", "LBigToe"}, [2]string{"LAnkle", "LSmallToe"}, [2]string{"LAnkle", "LHeel"},
		[2]string{"left_ankle", "left_foot_index"}, [2]string{"left_ankle", "left_heel"}),
}

var standardJoints = []JointPattern{
	jnt("Hip_R",
		[3]string{"Neck", "RHip", "RKnee"}, [3]string{"C7", "RHip", "RKnee"},
		[3]string{"RShoulder", "RHip", "RKnee"}, [3]string{"LShoulder", "RHip", "RKnee"},
		[3]string{"nose", "right_hip", "right_knee"}, [3]string{"right_shoulder", "right_hip", "right_knee"}),
	jnt("Hip_L",
		[3]string{"Neck", "LHip", "LKnee"}, [3]string{"C7", "LHip", "LKnee"},
		[3]string{"RShoulder", "LHip", "LKnee"}, [3]string{"LShoulder", "LHip", "LKnee"},
		[3]string{"nose", "left_hip", "left_knee"}, [3]string{"left_shoulder", "left_hip", "left_knee"}),
	jnt("Knee_R", [3]string{"RHip", "RKnee", "RAnkle"}, [3]string{"right_hip", "right_knee", "right_ankle"}),
	jnt("Knee_L", [3]string{"LHip", "LKnee", "LAnkle"}, [3]string{"left_hip", "left_knee", "left_ankle"}),
	jnt("Ankle_R",
		[3]string{"RKnee", "RAnkle", "RBigToe"}, [3]string{"RKnee", "RAnkle", "RHeel"},
		[3]string{"right_knee", "right_ankle", "right_foot_index"}, [3]string{"right_knee", "right_ankle", "right_heel"}),
	jnt("Ankle_L",
		[3]string{"LKnee", "LAnkle", "LBigToe"}, [3]string{"LKnee", "LAnkle", "LHeel"},
		[3]string{"left_knee", "left_ankle", "left_foot_index"}, [3]string{"left_knee", "left_ankle", "left_heel"}),
	jnt("Shoulder_R",
		[3]string{"Neck", "RShoulder", "RElbow"}, [3]string{"C7", "RShoulder", "RElbow"},
		[3]string{"nose", "right_shoulder", "right_elbow"}),
	jnt("Shoulder_L",
		[3]string{"Neck", "LShoulder", "LElbow"}, [3]string{"C7", "LShoulder", "LElbow"},
		[3]string{"nose", "left_shoulder", "left_elbow"}),
	jnt("Elbow_R", [3]string{"RShoulder", "RElbow", "RWrist"}, [3]string{"right_shoulder", "right_elbow", "right_wrist"}),
	jnt("Elbow_L", [3]string{"LShoulder", "LElbow", "LWrist"}, [3]string{"left_shoulder", "left_elbow", "left_wrist"}),
	jnt("Wrist_R",
		[3]string{"RElbow", "RWrist", "RThumb"}, [3]string{"RElbow", "RWrist", "RIndex"},
		[3]string{"right_elbow", "right_wrist", "right_thumb"}, [3]string{"right_elbow", "right_wrist", "right_index"}),
	jnt("Wrist_L",
		[3]string{"LElbow", "LWrist", "LThumb"}, [3]string{"LElbow", "LWrist", "LIndex"},
		[3]string{"left_elbow", "left_wrist", "left_thumb"}, [3]string{"left_elbow", "left_wrist", "left_index"}),
	jnt("Neck",
		[3]string{"RShoulder", "Neck", "Head"}, [3]string{"LShoulder", "Neck", "Head"},
		[3]string{"RShoulder", "Neck", "Nose"}, [3]string{"LShoulder", "Neck", "Nose"},
		[3]string{"right_shoulder", "nose", "right_eye"}, [3]string{"left_shoulder", "nose", "left_eye"}),
}
