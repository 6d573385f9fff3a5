package scene

import "fmt"

// MeshType classifies what a mesh context contributes to the model.
type MeshType uint8

const (
	// MeshPolygon is ordinary polygonal geometry.
	MeshPolygon MeshType = 0
	// MeshBone is a bone context used for skinning.
	MeshBone MeshType = 1
	// MeshMorph is a morph target layered on a base mesh.
	MeshMorph MeshType = 2
)

func (t MeshType) String() string {
	switch t {
	case MeshPolygon:
		return "polygon"
	case MeshBone:
		return "bone"
	case MeshMorph:
		return "morph"
	default:
		return fmt.Sprintf("meshtype(%d)", uint8(t))
	}
}

// MirrorMode controls how a mesh context mirrors its geometry.
type MirrorMode uint8

const (
	MirrorNone      MirrorMode = 0
	MirrorSeparate  MirrorMode = 1
	MirrorConnected MirrorMode = 2
)

func (m MirrorMode) String() string {
	switch m {
	case MirrorNone:
		return "none"
	case MirrorSeparate:
		return "separate"
	case MirrorConnected:
		return "connected"
	default:
		return fmt.Sprintf("mirrormode(%d)", uint8(m))
	}
}

// Mirror axis bits for MeshContext.MirrorAxis.
const (
	AxisX uint8 = 1 << 0
	AxisY uint8 = 1 << 1
	AxisZ uint8 = 1 << 2
)

// ImageFormat identifies the encoding of an Image's data bytes.
type ImageFormat uint8

const (
	ImageRaw  ImageFormat = 0
	ImagePNG  ImageFormat = 1
	ImageJPEG ImageFormat = 2
)

func (f ImageFormat) String() string {
	switch f {
	case ImageRaw:
		return "raw"
	case ImagePNG:
		return "png"
	case ImageJPEG:
		return "jpeg"
	default:
		return fmt.Sprintf("imageformat(%d)", uint8(f))
	}
}

// BoneWeight is one vertex's skinning record: up to four bone
// influences with their normalized weights. Unused slots hold zero.
type BoneWeight struct {
	Bones   [4]uint16
	Weights [4]float32
}

// Face is a single polygon. Vertices index into the mesh's vertex
// buffers; UVs and Normals, when present, are parallel per-corner
// index lists of the same arity as Vertices.
type Face struct {
	Vertices []uint32
	Material uint16
	Flags    uint8
	ID       uint32
	UVs      []uint32
	Normals  []uint32
}

// Arity returns the corner count of the face.
func (f *Face) Arity() int { return len(f.Vertices) }

// Mesh holds geometry buffers. All per-vertex slices are parallel:
// index i across Positions, Normals, UVs, BoneWeights, VertexFlags and
// VertexIDs describes the same vertex. Slices that were never loaded
// or never requested stay nil.
type Mesh struct {
	Positions   [][3]float32
	Normals     [][3]float32
	UVs         [][2]float32
	BoneWeights []BoneWeight
	VertexFlags []uint8
	VertexIDs   []uint32
	Faces       []Face
}

// VertexCount reports the vertex count implied by the populated
// per-vertex buffers. Parallel buffers must agree; when they do not,
// the longest wins, which codecs treat as an encoding error.
func (m *Mesh) VertexCount() int {
	n := len(m.Positions)
	if len(m.Normals) > n {
		n = len(m.Normals)
	}
	if len(m.UVs) > n {
		n = len(m.UVs)
	}
	if len(m.BoneWeights) > n {
		n = len(m.BoneWeights)
	}
	if len(m.VertexFlags) > n {
		n = len(m.VertexFlags)
	}
	if len(m.VertexIDs) > n {
		n = len(m.VertexIDs)
	}
	return n
}

// FaceCount reports the number of faces.
func (m *Mesh) FaceCount() int { return len(m.Faces) }

// Identity is the 4x4 identity matrix in column-major order, the
// default for the World and Bind transforms of a new mesh context.
var Identity = [16]float32{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// IdentityQuat is the no-rotation quaternion (x, y, z, w).
var IdentityQuat = [4]float32{0, 0, 0, 1}

// MeshContext is one entry in a model's mesh list: the flat editing
// attributes for a mesh plus the geometry itself.
type MeshContext struct {
	Name       string
	Type       MeshType
	Visible    bool
	Locked     bool
	Depth      uint8
	Parent     int16 // index of parent context, -1 for none
	MirrorMode MirrorMode
	MirrorAxis uint8

	HasMorph   bool
	MorphBase  uint16
	MorphRatio float32

	HasBone  bool
	BoneHead [3]float32
	BoneTail [3]float32

	HasIK        bool
	IKChain      uint8
	IKTarget     uint16
	IKIterations uint16
	IKAngle      float32

	World    [16]float32
	Bind     [16]float32
	Rotation [4]float32

	Mesh Mesh
}

// NewMeshContext returns a visible polygon context with identity
// transforms and no parent.
func NewMeshContext(name string) *MeshContext {
	return &MeshContext{
		Name:     name,
		Type:     MeshPolygon,
		Visible:  true,
		Parent:   -1,
		World:    Identity,
		Bind:     Identity,
		Rotation: IdentityQuat,
	}
}

// Model is one model within a project: an ordered mesh context list
// plus the editing state that travels with it.
type Model struct {
	Name            string
	ActiveCategory  uint8
	Selected        []uint16
	MeshContextList []*MeshContext
}

// IsSelected reports whether the mesh context at index is part of the
// model's current selection.
func (m *Model) IsSelected(index int) bool {
	for _, s := range m.Selected {
		if int(s) == index {
			return true
		}
	}
	return false
}

// Project is the root of the scene graph.
type Project struct {
	Name         string
	CurrentModel uint8
	Models       []*Model
}

// Current returns the model CurrentModel points at, or nil when the
// index is out of range.
func (p *Project) Current() *Model {
	if int(p.CurrentModel) >= len(p.Models) {
		return nil
	}
	return p.Models[p.CurrentModel]
}

// Image is one texture in the scene's image list.
type Image struct {
	ID     uint16
	Format ImageFormat
	Width  uint32
	Height uint32
	Data   []byte
}
