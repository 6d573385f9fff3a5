package codec

import "fmt"

// Magic is the 4-byte ASCII tag opening every binary payload.
type Magic [4]byte

// Payload magics. MagicModel is reserved for a future standalone model
// payload; nothing emits it yet but decoders recognize it as known.
var (
	MagicMesh      = Magic{'M', 'E', 'S', 'H'}
	MagicImageList = Magic{'I', 'M', 'G', ' '}
	MagicModel     = Magic{'M', 'O', 'D', 'L'}
	MagicProject   = Magic{'P', 'R', 'O', 'J'}
)

func (m Magic) String() string {
	return fmt.Sprintf("%q", string(m[:]))
}

// Payload format versions. Decoders accept exactly these; anything
// else is ErrVersion.
const (
	MeshVersion      uint8 = 1
	ProjectVersion   uint8 = 1
	ImageListVersion uint8 = 1
)

// PeekMagic returns the payload magic without consuming anything.
// ok is false when the buffer is too short to carry one.
func PeekMagic(data []byte) (Magic, bool) {
	if len(data) < 4 {
		return Magic{}, false
	}
	return Magic{data[0], data[1], data[2], data[3]}, true
}

func expectMagic(d *Decoder, want Magic) error {
	b, err := d.ReadBytes(4)
	if err != nil {
		return err
	}
	got := Magic{b[0], b[1], b[2], b[3]}
	if got != want {
		return fmt.Errorf("%w: got %s, want %s", ErrBadMagic, got, want)
	}
	return nil
}

func expectVersion(d *Decoder, want uint8) error {
	v, err := d.ReadByte()
	if err != nil {
		return err
	}
	if v != want {
		return fmt.Errorf("%w: %d", ErrVersion, v)
	}
	return nil
}
