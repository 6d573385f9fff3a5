package codec

import (
	"errors"
	"fmt"

	"github.com/scenewire/scenewire/pkg/scene"
)

// ErrCountOverflow is returned when a collection is too large for its
// wire count width.
var ErrCountOverflow = errors.New("codec: collection exceeds wire count width")

// Minimum encoded sizes used to validate counts before allocating.
const (
	// name prefix + meshCount + activeCategory + selectedCount
	minModelSize = 2 + 2 + 1 + 2
	// name prefix + fixed attributes + presence bytes + transforms + meshBytes
	minMeshContextSize = 2 + 8 + 3 + 144 + 4
)

// EncodeProject serializes a whole project snapshot. Every mesh is
// embedded in full, so the result is a complete, self-contained copy
// of the scene.
func EncodeProject(p *scene.Project) ([]byte, error) {
	if len(p.Models) > 65535 {
		return nil, fmt.Errorf("%w: %d models", ErrCountOverflow, len(p.Models))
	}
	if len(p.Name) > MaxStringLen {
		return nil, ErrStringTooLong
	}

	e := NewEncoderWithCap(4096)
	e.WriteBytes(MagicProject[:])
	e.WriteByte(ProjectVersion)
	e.WriteUint16(uint16(len(p.Models)))
	e.WriteByte(p.CurrentModel)
	e.WriteString(p.Name)

	for _, m := range p.Models {
		if err := encodeModel(e, m); err != nil {
			return nil, err
		}
	}
	return e.Bytes(), nil
}

func encodeModel(e *Encoder, m *scene.Model) error {
	if len(m.MeshContextList) > 65535 {
		return fmt.Errorf("%w: %d meshes", ErrCountOverflow, len(m.MeshContextList))
	}
	if len(m.Selected) > 65535 {
		return fmt.Errorf("%w: %d selected", ErrCountOverflow, len(m.Selected))
	}
	if len(m.Name) > MaxStringLen {
		return ErrStringTooLong
	}

	e.WriteString(m.Name)
	e.WriteUint16(uint16(len(m.MeshContextList)))
	e.WriteByte(m.ActiveCategory)
	e.WriteUint16(uint16(len(m.Selected)))
	for _, s := range m.Selected {
		e.WriteUint16(s)
	}
	for _, ctx := range m.MeshContextList {
		if err := encodeMeshContext(e, ctx); err != nil {
			return err
		}
	}
	return nil
}

func encodeMeshContext(e *Encoder, ctx *scene.MeshContext) error {
	if len(ctx.Name) > MaxStringLen {
		return ErrStringTooLong
	}
	e.WriteString(ctx.Name)
	e.WriteByte(uint8(ctx.Type))
	e.WriteBool(ctx.Visible)
	e.WriteBool(ctx.Locked)
	e.WriteByte(ctx.Depth)
	e.WriteInt16(ctx.Parent)
	e.WriteByte(uint8(ctx.MirrorMode))
	e.WriteByte(ctx.MirrorAxis)

	e.WriteBool(ctx.HasMorph)
	if ctx.HasMorph {
		e.WriteUint16(ctx.MorphBase)
		e.WriteFloat32(ctx.MorphRatio)
	}
	e.WriteBool(ctx.HasBone)
	if ctx.HasBone {
		for _, v := range ctx.BoneHead {
			e.WriteFloat32(v)
		}
		for _, v := range ctx.BoneTail {
			e.WriteFloat32(v)
		}
	}
	e.WriteBool(ctx.HasIK)
	if ctx.HasIK {
		e.WriteByte(ctx.IKChain)
		e.WriteUint16(ctx.IKTarget)
		e.WriteUint16(ctx.IKIterations)
		e.WriteFloat32(ctx.IKAngle)
	}

	for _, v := range ctx.World {
		e.WriteFloat32(v)
	}
	for _, v := range ctx.Bind {
		e.WriteFloat32(v)
	}
	for _, v := range ctx.Rotation {
		e.WriteFloat32(v)
	}

	mesh, err := EncodeMesh(&ctx.Mesh, FieldAll)
	if err != nil {
		return fmt.Errorf("mesh %q: %w", ctx.Name, err)
	}
	e.WriteBlob(mesh)
	return nil
}

// DecodeProject deserializes a project snapshot. Any malformed model,
// context or embedded mesh fails the whole decode.
func DecodeProject(data []byte) (*scene.Project, error) {
	d := NewDecoder(data)
	if err := expectMagic(d, MagicProject); err != nil {
		return nil, err
	}
	if err := expectVersion(d, ProjectVersion); err != nil {
		return nil, err
	}

	modelCount, err := d.ReadUint16()
	if err != nil {
		return nil, err
	}
	current, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	name, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	if err := d.CheckCount(uint32(modelCount), minModelSize); err != nil {
		return nil, err
	}

	p := &scene.Project{
		Name:         name,
		CurrentModel: current,
	}
	if modelCount > 0 {
		p.Models = make([]*scene.Model, modelCount)
		for i := range p.Models {
			m, err := decodeModel(d)
			if err != nil {
				return nil, fmt.Errorf("model %d: %w", i, err)
			}
			p.Models[i] = m
		}
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeModel(d *Decoder) (*scene.Model, error) {
	name, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	meshCount, err := d.ReadUint16()
	if err != nil {
		return nil, err
	}
	category, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	selCount, err := d.ReadUint16()
	if err != nil {
		return nil, err
	}
	if err := d.CheckCount(uint32(selCount), 2); err != nil {
		return nil, err
	}

	m := &scene.Model{
		Name:           name,
		ActiveCategory: category,
	}
	if selCount > 0 {
		m.Selected = make([]uint16, selCount)
		for i := range m.Selected {
			if m.Selected[i], err = d.ReadUint16(); err != nil {
				return nil, err
			}
		}
	}

	if err := d.CheckCount(uint32(meshCount), minMeshContextSize); err != nil {
		return nil, err
	}
	if meshCount > 0 {
		m.MeshContextList = make([]*scene.MeshContext, meshCount)
		for i := range m.MeshContextList {
			ctx, err := decodeMeshContext(d)
			if err != nil {
				return nil, fmt.Errorf("mesh %d: %w", i, err)
			}
			m.MeshContextList[i] = ctx
		}
	}
	return m, nil
}

func decodeMeshContext(d *Decoder) (*scene.MeshContext, error) {
	ctx := &scene.MeshContext{}
	var err error

	if ctx.Name, err = d.ReadString(); err != nil {
		return nil, err
	}
	t, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	ctx.Type = scene.MeshType(t)
	if ctx.Visible, err = d.ReadBool(); err != nil {
		return nil, err
	}
	if ctx.Locked, err = d.ReadBool(); err != nil {
		return nil, err
	}
	if ctx.Depth, err = d.ReadByte(); err != nil {
		return nil, err
	}
	if ctx.Parent, err = d.ReadInt16(); err != nil {
		return nil, err
	}
	mm, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	ctx.MirrorMode = scene.MirrorMode(mm)
	if ctx.MirrorAxis, err = d.ReadByte(); err != nil {
		return nil, err
	}

	if ctx.HasMorph, err = d.ReadBool(); err != nil {
		return nil, err
	}
	if ctx.HasMorph {
		if ctx.MorphBase, err = d.ReadUint16(); err != nil {
			return nil, err
		}
		if ctx.MorphRatio, err = d.ReadFloat32(); err != nil {
			return nil, err
		}
	}
	if ctx.HasBone, err = d.ReadBool(); err != nil {
		return nil, err
	}
	if ctx.HasBone {
		if err = readVec3(d, &ctx.BoneHead); err != nil {
			return nil, err
		}
		if err = readVec3(d, &ctx.BoneTail); err != nil {
			return nil, err
		}
	}
	if ctx.HasIK, err = d.ReadBool(); err != nil {
		return nil, err
	}
	if ctx.HasIK {
		if ctx.IKChain, err = d.ReadByte(); err != nil {
			return nil, err
		}
		if ctx.IKTarget, err = d.ReadUint16(); err != nil {
			return nil, err
		}
		if ctx.IKIterations, err = d.ReadUint16(); err != nil {
			return nil, err
		}
		if ctx.IKAngle, err = d.ReadFloat32(); err != nil {
			return nil, err
		}
	}

	for i := range ctx.World {
		if ctx.World[i], err = d.ReadFloat32(); err != nil {
			return nil, err
		}
	}
	for i := range ctx.Bind {
		if ctx.Bind[i], err = d.ReadFloat32(); err != nil {
			return nil, err
		}
	}
	for i := range ctx.Rotation {
		if ctx.Rotation[i], err = d.ReadFloat32(); err != nil {
			return nil, err
		}
	}

	blob, err := d.ReadBlob()
	if err != nil {
		return nil, err
	}
	mesh, err := DecodeMesh(blob)
	if err != nil {
		return nil, err
	}
	ctx.Mesh = *mesh
	return ctx, nil
}
