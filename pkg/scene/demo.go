package scene

// DemoProject builds a small project with one model containing a
// quad-based body mesh and a bone, enough to exercise every query
// without loading external data.
func DemoProject() *Project {
	body := NewMeshContext("Body")
	body.Mesh = Mesh{
		Positions: [][3]float32{
			{-1, -1, 0},
			{1, -1, 0},
			{1, 1, 0},
			{-1, 1, 0},
		},
		Normals: [][3]float32{
			{0, 0, 1},
			{0, 0, 1},
			{0, 0, 1},
			{0, 0, 1},
		},
		UVs: [][2]float32{
			{0, 0},
			{1, 0},
			{1, 1},
			{0, 1},
		},
		VertexFlags: []uint8{0, 0, 0, 0},
		VertexIDs:   []uint32{1, 2, 3, 4},
		Faces: []Face{
			{Vertices: []uint32{0, 1, 2}, Material: 0, ID: 1},
			{Vertices: []uint32{0, 2, 3}, Material: 0, ID: 2},
		},
	}

	spine := NewMeshContext("Spine")
	spine.Type = MeshBone
	spine.HasBone = true
	spine.BoneHead = [3]float32{0, 0, 0}
	spine.BoneTail = [3]float32{0, 1, 0}

	return &Project{
		Name: "Demo",
		Models: []*Model{{
			Name:            "Character",
			MeshContextList: []*MeshContext{body, spine},
		}},
	}
}

// DemoImages returns two small stand-in textures for the demo scene.
func DemoImages() []*Image {
	return []*Image{
		{ID: 1, Format: ImagePNG, Width: 64, Height: 64, Data: []byte{0x89, 'P', 'N', 'G'}},
		{ID: 2, Format: ImageRaw, Width: 2, Height: 2, Data: []byte{0xff, 0x00, 0xff, 0x00}},
	}
}
