package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/scenewire/scenewire/pkg/scene"
)

// MessageType discriminates what a mesh payload carries.
type MessageType uint8

const (
	// MeshData is a full or partial mesh selected by field flags.
	MeshData MessageType = 0x01
	// PositionsOnly is the fast path: just the position buffer, used
	// while geometry is being dragged.
	PositionsOnly MessageType = 0x02
	// RawFile wraps an opaque file (name plus bytes) in a mesh payload
	// so tools can ship original model files over the same channel.
	RawFile MessageType = 0x03
)

func (t MessageType) String() string {
	switch t {
	case MeshData:
		return "meshData"
	case PositionsOnly:
		return "positionsOnly"
	case RawFile:
		return "rawFile"
	default:
		return fmt.Sprintf("messagetype(0x%02x)", uint8(t))
	}
}

// FieldFlags selects which sections a mesh payload carries. Sections
// are encoded in ascending bit order.
type FieldFlags uint32

const (
	FieldPositions     FieldFlags = 1 << 0  // 3 x f32 per vertex
	FieldNormals       FieldFlags = 1 << 1  // 3 x f32 per vertex
	FieldUVs           FieldFlags = 1 << 2  // 2 x f32 per vertex
	FieldBoneWeights   FieldFlags = 1 << 3  // 4 x u16 + 4 x f32 per vertex
	FieldVertexFlags   FieldFlags = 1 << 4  // u8 per vertex
	FieldVertexIDs     FieldFlags = 1 << 5  // u32 per vertex
	FieldFaces         FieldFlags = 1 << 6  // u8 arity + arity x u32 per face
	FieldFaceMaterials FieldFlags = 1 << 7  // u16 per face
	FieldFaceFlags     FieldFlags = 1 << 8  // u8 per face
	FieldFaceIDs       FieldFlags = 1 << 9  // u32 per face
	FieldFaceUVs       FieldFlags = 1 << 10 // u8 count + count x u32 per face
	FieldFaceNormals   FieldFlags = 1 << 11 // u8 count + count x u32 per face

	// FieldAll selects every defined section.
	FieldAll FieldFlags = 1<<12 - 1
)

// Has reports whether all bits in f are set.
func (ff FieldFlags) Has(f FieldFlags) bool { return ff&f == f }

// Mesh payload errors.
var (
	ErrMessageType     = errors.New("codec: unexpected message type")
	ErrSectionMismatch = errors.New("codec: section length does not match header count")
	ErrFaceArity       = errors.New("codec: face arity exceeds 255")
)

// MeshHeaderSize is the fixed byte length of a mesh payload header.
const MeshHeaderSize = 20

// MeshHeader is the fixed-size head of a mesh payload.
type MeshHeader struct {
	Version     uint8
	Type        MessageType
	Flags       FieldFlags
	VertexCount uint32
	FaceCount   uint32
}

// PeekMeshHeader decodes just the header, letting callers route on the
// message type before committing to a full decode.
func PeekMeshHeader(data []byte) (MeshHeader, error) {
	var h MeshHeader
	d := NewDecoder(data)
	if err := expectMagic(d, MagicMesh); err != nil {
		return h, err
	}
	if err := expectVersion(d, MeshVersion); err != nil {
		return h, err
	}
	h.Version = MeshVersion
	t, err := d.ReadByte()
	if err != nil {
		return h, err
	}
	h.Type = MessageType(t)
	f, err := d.ReadUint32()
	if err != nil {
		return h, err
	}
	h.Flags = FieldFlags(f)
	if h.VertexCount, err = d.ReadUint32(); err != nil {
		return h, err
	}
	if h.FaceCount, err = d.ReadUint32(); err != nil {
		return h, err
	}
	if _, err = d.ReadUint16(); err != nil { // reserved
		return h, err
	}
	return h, nil
}

func writeMeshHeader(e *Encoder, t MessageType, flags FieldFlags, vc, fc uint32) {
	e.WriteBytes(MagicMesh[:])
	e.WriteByte(MeshVersion)
	e.WriteByte(uint8(t))
	e.WriteUint32(uint32(flags))
	e.WriteUint32(vc)
	e.WriteUint32(fc)
	e.WriteUint16(0) // reserved
}

// presentFields reports which sections the mesh actually has data for.
func presentFields(m *scene.Mesh) FieldFlags {
	var f FieldFlags
	if len(m.Positions) > 0 {
		f |= FieldPositions
	}
	if len(m.Normals) > 0 {
		f |= FieldNormals
	}
	if len(m.UVs) > 0 {
		f |= FieldUVs
	}
	if len(m.BoneWeights) > 0 {
		f |= FieldBoneWeights
	}
	if len(m.VertexFlags) > 0 {
		f |= FieldVertexFlags
	}
	if len(m.VertexIDs) > 0 {
		f |= FieldVertexIDs
	}
	if len(m.Faces) == 0 {
		return f
	}
	f |= FieldFaces | FieldFaceMaterials | FieldFaceFlags | FieldFaceIDs
	for i := range m.Faces {
		if len(m.Faces[i].UVs) > 0 {
			f |= FieldFaceUVs
		}
		if len(m.Faces[i].Normals) > 0 {
			f |= FieldFaceNormals
		}
	}
	return f
}

// EncodeMesh serializes the sections of m selected by flags as a
// MeshData payload. Requested sections the mesh has no data for are
// dropped from the encoded flags, so a decode populates exactly what
// the payload advertises. Sections that are present must match the
// mesh's vertex count.
func EncodeMesh(m *scene.Mesh, flags FieldFlags) ([]byte, error) {
	flags &= presentFields(m)
	vc := m.VertexCount()
	fc := m.FaceCount()

	e := NewEncoderWithCap(MeshHeaderSize + encodedMeshSize(m, flags, vc, fc))
	writeMeshHeader(e, MeshData, flags, uint32(vc), uint32(fc))
	if err := encodeMeshSections(e, m, flags, vc); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// EncodePositions serializes just the position buffer as a
// PositionsOnly payload.
func EncodePositions(m *scene.Mesh) ([]byte, error) {
	vc := len(m.Positions)
	e := NewEncoderWithCap(MeshHeaderSize + vc*12)
	writeMeshHeader(e, PositionsOnly, FieldPositions, uint32(vc), 0)
	for _, p := range m.Positions {
		e.WriteFloat32(p[0])
		e.WriteFloat32(p[1])
		e.WriteFloat32(p[2])
	}
	return e.Bytes(), nil
}

// EncodeRawFile wraps an opaque file in a RawFile mesh payload.
func EncodeRawFile(name string, data []byte) ([]byte, error) {
	if len(name) > MaxStringLen {
		return nil, ErrStringTooLong
	}
	e := NewEncoderWithCap(MeshHeaderSize + 2 + len(name) + 4 + len(data))
	writeMeshHeader(e, RawFile, 0, 0, 0)
	e.WriteString(name)
	e.WriteBlob(data)
	return e.Bytes(), nil
}

// DecodeMesh deserializes a MeshData or PositionsOnly payload into a
// fresh mesh. Sections absent from the payload's flags stay at their
// zero values.
func DecodeMesh(data []byte) (*scene.Mesh, error) {
	h, err := PeekMeshHeader(data)
	if err != nil {
		return nil, err
	}
	if h.Type != MeshData && h.Type != PositionsOnly {
		return nil, fmt.Errorf("%w: %s", ErrMessageType, h.Type)
	}
	m := &scene.Mesh{}
	d := NewDecoder(data)
	_ = d.Skip(MeshHeaderSize)
	if err := decodeMeshSections(d, m, h.Flags, h.VertexCount, h.FaceCount); err != nil {
		return nil, err
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeMeshInto deserializes a MeshData or PositionsOnly payload into
// an existing mesh, replacing only the sections the payload carries.
func DecodeMeshInto(data []byte, m *scene.Mesh) error {
	h, err := PeekMeshHeader(data)
	if err != nil {
		return err
	}
	if h.Type != MeshData && h.Type != PositionsOnly {
		return fmt.Errorf("%w: %s", ErrMessageType, h.Type)
	}
	// Decode into a scratch mesh first so a mid-payload failure leaves
	// the target untouched.
	var scratch scene.Mesh
	d := NewDecoder(data)
	_ = d.Skip(MeshHeaderSize)
	if err := decodeMeshSections(d, &scratch, h.Flags, h.VertexCount, h.FaceCount); err != nil {
		return err
	}
	if err := d.Finish(); err != nil {
		return err
	}
	if h.Flags.Has(FieldPositions) {
		m.Positions = scratch.Positions
	}
	if h.Flags.Has(FieldNormals) {
		m.Normals = scratch.Normals
	}
	if h.Flags.Has(FieldUVs) {
		m.UVs = scratch.UVs
	}
	if h.Flags.Has(FieldBoneWeights) {
		m.BoneWeights = scratch.BoneWeights
	}
	if h.Flags.Has(FieldVertexFlags) {
		m.VertexFlags = scratch.VertexFlags
	}
	if h.Flags.Has(FieldVertexIDs) {
		m.VertexIDs = scratch.VertexIDs
	}
	if h.Flags&(FieldFaces|FieldFaceMaterials|FieldFaceFlags|FieldFaceIDs|FieldFaceUVs|FieldFaceNormals) != 0 {
		m.Faces = scratch.Faces
	}
	return nil
}

// DecodeRawFile unwraps a RawFile payload into its name and bytes.
func DecodeRawFile(data []byte) (string, []byte, error) {
	h, err := PeekMeshHeader(data)
	if err != nil {
		return "", nil, err
	}
	if h.Type != RawFile {
		return "", nil, fmt.Errorf("%w: %s", ErrMessageType, h.Type)
	}
	d := NewDecoder(data)
	_ = d.Skip(MeshHeaderSize)
	name, err := d.ReadString()
	if err != nil {
		return "", nil, err
	}
	blob, err := d.ReadBlob()
	if err != nil {
		return "", nil, err
	}
	if err := d.Finish(); err != nil {
		return "", nil, err
	}
	return name, blob, nil
}

func encodedMeshSize(m *scene.Mesh, flags FieldFlags, vc, fc int) int {
	n := 0
	if flags.Has(FieldPositions) {
		n += vc * 12
	}
	if flags.Has(FieldNormals) {
		n += vc * 12
	}
	if flags.Has(FieldUVs) {
		n += vc * 8
	}
	if flags.Has(FieldBoneWeights) {
		n += vc * 24
	}
	if flags.Has(FieldVertexFlags) {
		n += vc
	}
	if flags.Has(FieldVertexIDs) {
		n += vc * 4
	}
	for i := range m.Faces {
		f := &m.Faces[i]
		if flags.Has(FieldFaces) {
			n += 1 + 4*len(f.Vertices)
		}
		if flags.Has(FieldFaceUVs) {
			n += 1 + 4*len(f.UVs)
		}
		if flags.Has(FieldFaceNormals) {
			n += 1 + 4*len(f.Normals)
		}
	}
	if flags.Has(FieldFaceMaterials) {
		n += fc * 2
	}
	if flags.Has(FieldFaceFlags) {
		n += fc
	}
	if flags.Has(FieldFaceIDs) {
		n += fc * 4
	}
	return n
}

func encodeMeshSections(e *Encoder, m *scene.Mesh, flags FieldFlags, vc int) error {
	if flags.Has(FieldPositions) {
		if len(m.Positions) != vc {
			return sectionErr("positions", len(m.Positions), vc)
		}
		for _, p := range m.Positions {
			e.WriteFloat32(p[0])
			e.WriteFloat32(p[1])
			e.WriteFloat32(p[2])
		}
	}
	if flags.Has(FieldNormals) {
		if len(m.Normals) != vc {
			return sectionErr("normals", len(m.Normals), vc)
		}
		for _, n := range m.Normals {
			e.WriteFloat32(n[0])
			e.WriteFloat32(n[1])
			e.WriteFloat32(n[2])
		}
	}
	if flags.Has(FieldUVs) {
		if len(m.UVs) != vc {
			return sectionErr("uvs", len(m.UVs), vc)
		}
		for _, uv := range m.UVs {
			e.WriteFloat32(uv[0])
			e.WriteFloat32(uv[1])
		}
	}
	if flags.Has(FieldBoneWeights) {
		if len(m.BoneWeights) != vc {
			return sectionErr("boneWeights", len(m.BoneWeights), vc)
		}
		for _, bw := range m.BoneWeights {
			for _, b := range bw.Bones {
				e.WriteUint16(b)
			}
			for _, w := range bw.Weights {
				e.WriteFloat32(w)
			}
		}
	}
	if flags.Has(FieldVertexFlags) {
		if len(m.VertexFlags) != vc {
			return sectionErr("vertexFlags", len(m.VertexFlags), vc)
		}
		e.WriteBytes(m.VertexFlags)
	}
	if flags.Has(FieldVertexIDs) {
		if len(m.VertexIDs) != vc {
			return sectionErr("vertexIDs", len(m.VertexIDs), vc)
		}
		for _, id := range m.VertexIDs {
			e.WriteUint32(id)
		}
	}
	if flags.Has(FieldFaces) {
		for i := range m.Faces {
			f := &m.Faces[i]
			if len(f.Vertices) > 255 {
				return fmt.Errorf("%w: face %d has %d corners", ErrFaceArity, i, len(f.Vertices))
			}
			e.WriteByte(uint8(len(f.Vertices)))
			for _, v := range f.Vertices {
				e.WriteUint32(v)
			}
		}
	}
	if flags.Has(FieldFaceMaterials) {
		for i := range m.Faces {
			e.WriteUint16(m.Faces[i].Material)
		}
	}
	if flags.Has(FieldFaceFlags) {
		for i := range m.Faces {
			e.WriteByte(m.Faces[i].Flags)
		}
	}
	if flags.Has(FieldFaceIDs) {
		for i := range m.Faces {
			e.WriteUint32(m.Faces[i].ID)
		}
	}
	if flags.Has(FieldFaceUVs) {
		for i := range m.Faces {
			f := &m.Faces[i]
			if len(f.UVs) > 255 {
				return fmt.Errorf("%w: face %d has %d uv corners", ErrFaceArity, i, len(f.UVs))
			}
			e.WriteByte(uint8(len(f.UVs)))
			for _, v := range f.UVs {
				e.WriteUint32(v)
			}
		}
	}
	if flags.Has(FieldFaceNormals) {
		for i := range m.Faces {
			f := &m.Faces[i]
			if len(f.Normals) > 255 {
				return fmt.Errorf("%w: face %d has %d normal corners", ErrFaceArity, i, len(f.Normals))
			}
			e.WriteByte(uint8(len(f.Normals)))
			for _, v := range f.Normals {
				e.WriteUint32(v)
			}
		}
	}
	return nil
}

func sectionErr(name string, got, want int) error {
	return fmt.Errorf("%w: %s has %d entries, header says %d", ErrSectionMismatch, name, got, want)
}

func decodeMeshSections(d *Decoder, m *scene.Mesh, flags FieldFlags, vertexCount, faceCount uint32) error {
	vc := int(vertexCount)
	fc := int(faceCount)
	if vc == 0 {
		// Zero-length sections decode to nil buffers.
		flags &^= FieldPositions | FieldNormals | FieldUVs |
			FieldBoneWeights | FieldVertexFlags | FieldVertexIDs
	}

	if flags.Has(FieldPositions) {
		if err := d.CheckCount(vertexCount, 12); err != nil {
			return err
		}
		m.Positions = make([][3]float32, vc)
		for i := 0; i < vc; i++ {
			if err := readVec3(d, &m.Positions[i]); err != nil {
				return err
			}
		}
	}
	if flags.Has(FieldNormals) {
		if err := d.CheckCount(vertexCount, 12); err != nil {
			return err
		}
		m.Normals = make([][3]float32, vc)
		for i := 0; i < vc; i++ {
			if err := readVec3(d, &m.Normals[i]); err != nil {
				return err
			}
		}
	}
	if flags.Has(FieldUVs) {
		if err := d.CheckCount(vertexCount, 8); err != nil {
			return err
		}
		m.UVs = make([][2]float32, vc)
		for i := 0; i < vc; i++ {
			var err error
			if m.UVs[i][0], err = d.ReadFloat32(); err != nil {
				return err
			}
			if m.UVs[i][1], err = d.ReadFloat32(); err != nil {
				return err
			}
		}
	}
	if flags.Has(FieldBoneWeights) {
		if err := d.CheckCount(vertexCount, 24); err != nil {
			return err
		}
		m.BoneWeights = make([]scene.BoneWeight, vc)
		for i := 0; i < vc; i++ {
			bw := &m.BoneWeights[i]
			for j := 0; j < 4; j++ {
				v, err := d.ReadUint16()
				if err != nil {
					return err
				}
				bw.Bones[j] = v
			}
			for j := 0; j < 4; j++ {
				v, err := d.ReadFloat32()
				if err != nil {
					return err
				}
				bw.Weights[j] = v
			}
		}
	}
	if flags.Has(FieldVertexFlags) {
		if err := d.CheckCount(vertexCount, 1); err != nil {
			return err
		}
		b, err := d.ReadBytes(vc)
		if err != nil {
			return err
		}
		m.VertexFlags = make([]uint8, vc)
		copy(m.VertexFlags, b)
	}
	if flags.Has(FieldVertexIDs) {
		if err := d.CheckCount(vertexCount, 4); err != nil {
			return err
		}
		m.VertexIDs = make([]uint32, vc)
		for i := 0; i < vc; i++ {
			v, err := d.ReadUint32()
			if err != nil {
				return err
			}
			m.VertexIDs[i] = v
		}
	}

	const faceBits = FieldFaces | FieldFaceMaterials | FieldFaceFlags |
		FieldFaceIDs | FieldFaceUVs | FieldFaceNormals
	if flags&faceBits == 0 || fc == 0 {
		return nil
	}
	if err := d.CheckCount(faceCount, 1); err != nil {
		return err
	}
	m.Faces = make([]scene.Face, fc)

	if flags.Has(FieldFaces) {
		for i := 0; i < fc; i++ {
			verts, err := readIndexList(d)
			if err != nil {
				return err
			}
			m.Faces[i].Vertices = verts
		}
	}
	if flags.Has(FieldFaceMaterials) {
		for i := 0; i < fc; i++ {
			v, err := d.ReadUint16()
			if err != nil {
				return err
			}
			m.Faces[i].Material = v
		}
	}
	if flags.Has(FieldFaceFlags) {
		for i := 0; i < fc; i++ {
			v, err := d.ReadByte()
			if err != nil {
				return err
			}
			m.Faces[i].Flags = v
		}
	}
	if flags.Has(FieldFaceIDs) {
		for i := 0; i < fc; i++ {
			v, err := d.ReadUint32()
			if err != nil {
				return err
			}
			m.Faces[i].ID = v
		}
	}
	if flags.Has(FieldFaceUVs) {
		for i := 0; i < fc; i++ {
			list, err := readIndexList(d)
			if err != nil {
				return err
			}
			m.Faces[i].UVs = list
		}
	}
	if flags.Has(FieldFaceNormals) {
		for i := 0; i < fc; i++ {
			list, err := readIndexList(d)
			if err != nil {
				return err
			}
			m.Faces[i].Normals = list
		}
	}
	return nil
}

func readVec3(d *Decoder, v *[3]float32) error {
	var err error
	if v[0], err = d.ReadFloat32(); err != nil {
		return err
	}
	if v[1], err = d.ReadFloat32(); err != nil {
		return err
	}
	v[2], err = d.ReadFloat32()
	return err
}

// readIndexList reads a u8 count followed by that many u32 indices.
func readIndexList(d *Decoder) ([]uint32, error) {
	n, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if int(n)*4 > d.Remaining() {
		return nil, io.ErrUnexpectedEOF
	}
	list := make([]uint32, n)
	for i := range list {
		if list[i], err = d.ReadUint32(); err != nil {
			return nil, err
		}
	}
	return list, nil
}
