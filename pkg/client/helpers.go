package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/scenewire/scenewire/pkg/codec"
	"github.com/scenewire/scenewire/pkg/dispatch"
	"github.com/scenewire/scenewire/pkg/scene"
)

// Query sends a query envelope and returns the response. Error
// responses come back as ErrServer.
func (c *Client) Query(ctx context.Context, target string, params map[string]string, fields ...string) (*dispatch.Response, error) {
	req := &dispatch.Request{
		Type:   dispatch.TypeQuery,
		Target: target,
		Params: params,
		Fields: fields,
	}
	resp, _, err := c.do(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	if err := errFromResponse(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// QueryBinary sends a query whose response announces a binary
// payload and returns both.
func (c *Client) QueryBinary(ctx context.Context, target string, params map[string]string, magic codec.Magic) (*dispatch.Response, []byte, error) {
	req := &dispatch.Request{
		Type:   dispatch.TypeQuery,
		Target: target,
		Params: params,
	}
	resp, binary, err := c.do(ctx, req, &magic)
	if err != nil {
		return nil, nil, err
	}
	if err := errFromResponse(resp); err != nil {
		return nil, nil, err
	}
	return resp, binary, nil
}

// Command sends a command envelope.
func (c *Client) Command(ctx context.Context, action string, params map[string]string) (*dispatch.Response, error) {
	req := &dispatch.Request{
		Type:   dispatch.TypeCommand,
		Action: action,
		Params: params,
	}
	resp, _, err := c.do(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	if err := errFromResponse(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// MeshList returns one row per mesh context in the current model.
// With no fields the server's default column set is used.
func (c *Client) MeshList(ctx context.Context, fields ...string) ([]map[string]any, error) {
	resp, err := c.Query(ctx, "meshList", nil, fields...)
	if err != nil {
		return nil, err
	}
	var data struct {
		Meshes []map[string]any `json:"meshes"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("decoding meshList data: %w", err)
	}
	return data.Meshes, nil
}

// MeshData returns the requested fields of one mesh context.
func (c *Client) MeshData(ctx context.Context, index int, fields ...string) (map[string]any, error) {
	resp, err := c.Query(ctx, "meshData", indexParam(index), fields...)
	if err != nil {
		return nil, err
	}
	var data struct {
		Mesh map[string]any `json:"mesh"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("decoding meshData data: %w", err)
	}
	return data.Mesh, nil
}

// ModelInfo describes the current model.
type ModelInfo struct {
	ProjectName    string `json:"projectName"`
	ModelCount     int    `json:"modelCount"`
	Index          int    `json:"index"`
	Name           string `json:"name"`
	MeshCount      int    `json:"meshCount"`
	ActiveCategory int    `json:"activeCategory"`
	Selected       []int  `json:"selected"`
}

// ModelInfo returns the project and current model summary.
func (c *Client) ModelInfo(ctx context.Context) (*ModelInfo, error) {
	resp, err := c.Query(ctx, "modelInfo", nil)
	if err != nil {
		return nil, err
	}
	info := &ModelInfo{}
	if err := json.Unmarshal(resp.Data, info); err != nil {
		return nil, fmt.Errorf("decoding modelInfo data: %w", err)
	}
	return info, nil
}

// AvailableFields returns the mesh field names the server can
// resolve.
func (c *Client) AvailableFields(ctx context.Context) ([]string, error) {
	resp, err := c.Query(ctx, "availableFields", nil)
	if err != nil {
		return nil, err
	}
	var data struct {
		Fields []string `json:"fields"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("decoding availableFields data: %w", err)
	}
	return data.Fields, nil
}

// MeshBinary fetches and decodes one mesh. flags selects the
// sections; zero fetches everything present.
func (c *Client) MeshBinary(ctx context.Context, index int, flags codec.FieldFlags) (*scene.Mesh, error) {
	params := indexParam(index)
	if flags != 0 {
		params["flags"] = strconv.FormatUint(uint64(flags), 10)
	}
	_, binary, err := c.QueryBinary(ctx, "meshBinary", params, codec.MagicMesh)
	if err != nil {
		return nil, err
	}
	return codec.DecodeMesh(binary)
}

// Project fetches and decodes the whole project snapshot.
func (c *Client) Project(ctx context.Context) (*scene.Project, error) {
	_, binary, err := c.QueryBinary(ctx, "project", nil, codec.MagicProject)
	if err != nil {
		return nil, err
	}
	return codec.DecodeProject(binary)
}

// ImageList fetches and decodes the scene's images.
func (c *Client) ImageList(ctx context.Context) ([]*scene.Image, error) {
	_, binary, err := c.QueryBinary(ctx, "imageList", nil, codec.MagicImageList)
	if err != nil {
		return nil, err
	}
	return codec.DecodeImageList(binary)
}

// SelectMesh makes index the selected mesh context.
func (c *Client) SelectMesh(ctx context.Context, index int) error {
	_, err := c.Command(ctx, "selectMesh", indexParam(index))
	return err
}

// UpdateAttribute applies the non-nil fields of upd to the context at
// index.
func (c *Client) UpdateAttribute(ctx context.Context, index int, upd scene.AttributeUpdate) error {
	params := indexParam(index)
	if upd.Name != nil {
		params["name"] = *upd.Name
	}
	if upd.Visible != nil {
		params["visible"] = strconv.FormatBool(*upd.Visible)
	}
	if upd.Locked != nil {
		params["locked"] = strconv.FormatBool(*upd.Locked)
	}
	_, err := c.Command(ctx, "updateAttribute", params)
	return err
}

// ImportMesh pushes geometry to the server. The server replaces the
// selected mesh or appends a new one; the outcome arrives as a push,
// not a response.
func (c *Client) ImportMesh(ctx context.Context, m *scene.Mesh, flags codec.FieldFlags) error {
	payload, err := codec.EncodeMesh(m, flags)
	if err != nil {
		return err
	}
	return c.sendBinary(ctx, payload)
}

// SendPositions streams a positions-only update for the selected
// mesh, the fast path while dragging vertices.
func (c *Client) SendPositions(ctx context.Context, m *scene.Mesh) error {
	payload, err := codec.EncodePositions(m)
	if err != nil {
		return err
	}
	return c.sendBinary(ctx, payload)
}

// SendRawFile uploads a named file blob.
func (c *Client) SendRawFile(ctx context.Context, name string, data []byte) error {
	payload, err := codec.EncodeRawFile(name, data)
	if err != nil {
		return err
	}
	return c.sendBinary(ctx, payload)
}

func indexParam(index int) map[string]string {
	return map[string]string{"index": strconv.Itoa(index)}
}
