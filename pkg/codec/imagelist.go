package codec

import (
	"fmt"

	"github.com/scenewire/scenewire/pkg/scene"
)

// minImageSize is the encoded size of an image record with no data.
const minImageSize = 2 + 1 + 4 + 4 + 4

// EncodeImageList serializes the scene's textures.
func EncodeImageList(images []*scene.Image) ([]byte, error) {
	if len(images) > 65535 {
		return nil, fmt.Errorf("%w: %d images", ErrCountOverflow, len(images))
	}

	size := 4 + 1 + 2
	for _, img := range images {
		size += minImageSize + len(img.Data)
	}
	e := NewEncoderWithCap(size)
	e.WriteBytes(MagicImageList[:])
	e.WriteByte(ImageListVersion)
	e.WriteUint16(uint16(len(images)))
	for _, img := range images {
		e.WriteUint16(img.ID)
		e.WriteByte(uint8(img.Format))
		e.WriteUint32(img.Width)
		e.WriteUint32(img.Height)
		e.WriteBlob(img.Data)
	}
	return e.Bytes(), nil
}

// DecodeImageList deserializes an image list payload.
func DecodeImageList(data []byte) ([]*scene.Image, error) {
	d := NewDecoder(data)
	if err := expectMagic(d, MagicImageList); err != nil {
		return nil, err
	}
	if err := expectVersion(d, ImageListVersion); err != nil {
		return nil, err
	}
	count, err := d.ReadUint16()
	if err != nil {
		return nil, err
	}
	if err := d.CheckCount(uint32(count), minImageSize); err != nil {
		return nil, err
	}

	images := make([]*scene.Image, count)
	for i := range images {
		img := &scene.Image{}
		if img.ID, err = d.ReadUint16(); err != nil {
			return nil, err
		}
		f, err := d.ReadByte()
		if err != nil {
			return nil, err
		}
		img.Format = scene.ImageFormat(f)
		if img.Width, err = d.ReadUint32(); err != nil {
			return nil, err
		}
		if img.Height, err = d.ReadUint32(); err != nil {
			return nil, err
		}
		if img.Data, err = d.ReadBlob(); err != nil {
			return nil, err
		}
		images[i] = img
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return images, nil
}
