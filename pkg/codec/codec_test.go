package codec

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"
)

func TestEncoderDecoderRoundTrip(t *testing.T) {
	e := NewEncoder()
	e.WriteByte(0xAB)
	e.WriteBool(true)
	e.WriteBool(false)
	e.WriteUint16(0xBEEF)
	e.WriteUint32(0xDEADBEEF)
	e.WriteInt16(-1234)
	e.WriteFloat32(3.14159)
	e.WriteString("héllo")
	e.WriteBlob([]byte{1, 2, 3})

	d := NewDecoder(e.Bytes())

	if v, err := d.ReadByte(); err != nil || v != 0xAB {
		t.Errorf("ReadByte() = %x, %v", v, err)
	}
	if v, err := d.ReadBool(); err != nil || v != true {
		t.Errorf("ReadBool() = %v, %v", v, err)
	}
	if v, err := d.ReadBool(); err != nil || v != false {
		t.Errorf("ReadBool() = %v, %v", v, err)
	}
	if v, err := d.ReadUint16(); err != nil || v != 0xBEEF {
		t.Errorf("ReadUint16() = %x, %v", v, err)
	}
	if v, err := d.ReadUint32(); err != nil || v != 0xDEADBEEF {
		t.Errorf("ReadUint32() = %x, %v", v, err)
	}
	if v, err := d.ReadInt16(); err != nil || v != -1234 {
		t.Errorf("ReadInt16() = %d, %v", v, err)
	}
	if v, err := d.ReadFloat32(); err != nil || v != 3.14159 {
		t.Errorf("ReadFloat32() = %v, %v", v, err)
	}
	if v, err := d.ReadString(); err != nil || v != "héllo" {
		t.Errorf("ReadString() = %q, %v", v, err)
	}
	if v, err := d.ReadBlob(); err != nil || !bytes.Equal(v, []byte{1, 2, 3}) {
		t.Errorf("ReadBlob() = %v, %v", v, err)
	}
	if !d.EOF() {
		t.Errorf("EOF() = false with %d bytes remaining", d.Remaining())
	}
	if err := d.Finish(); err != nil {
		t.Errorf("Finish() = %v", err)
	}
}

func TestBigEndianLayout(t *testing.T) {
	e := NewEncoder()
	e.WriteUint16(0x0102)
	e.WriteUint32(0x03040506)

	want := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	if !bytes.Equal(e.Bytes(), want) {
		t.Errorf("Bytes() = %x, want %x", e.Bytes(), want)
	}
}

func TestFloat32Bits(t *testing.T) {
	values := []float32{0, 1, -1, 0.5, float32(math.Inf(1)), 1e-6, 123456.78}
	for _, v := range values {
		e := NewEncoder()
		e.WriteFloat32(v)
		got, err := NewDecoder(e.Bytes()).ReadFloat32()
		if err != nil {
			t.Fatalf("ReadFloat32(%v) error: %v", v, err)
		}
		if math.Float32bits(got) != math.Float32bits(v) {
			t.Errorf("round trip %v -> %v, bits differ", v, got)
		}
	}
}

func TestDecoderShortReads(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		read func(*Decoder) error
	}{
		{"byte", nil, func(d *Decoder) error { _, err := d.ReadByte(); return err }},
		{"uint16", []byte{0x01}, func(d *Decoder) error { _, err := d.ReadUint16(); return err }},
		{"uint32", []byte{1, 2, 3}, func(d *Decoder) error { _, err := d.ReadUint32(); return err }},
		{"float32", []byte{1, 2}, func(d *Decoder) error { _, err := d.ReadFloat32(); return err }},
		{"string prefix", []byte{0x00}, func(d *Decoder) error { _, err := d.ReadString(); return err }},
		{"string body", []byte{0x00, 0x05, 'a'}, func(d *Decoder) error { _, err := d.ReadString(); return err }},
		{"blob body", []byte{0, 0, 0, 9, 1}, func(d *Decoder) error { _, err := d.ReadBlob(); return err }},
		{"skip", []byte{1, 2}, func(d *Decoder) error { return d.Skip(3) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.read(NewDecoder(tt.buf)); !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Errorf("error = %v, want io.ErrUnexpectedEOF", err)
			}
		})
	}
}

func TestReadBoolLenient(t *testing.T) {
	d := NewDecoder([]byte{0x00, 0x01, 0x7F})
	for i, want := range []bool{false, true, true} {
		got, err := d.ReadBool()
		if err != nil {
			t.Fatalf("ReadBool #%d: %v", i, err)
		}
		if got != want {
			t.Errorf("ReadBool #%d = %v, want %v", i, got, want)
		}
	}
}

func TestCheckCount(t *testing.T) {
	tests := []struct {
		name    string
		count   uint32
		minSize int
		bufLen  int
		wantErr error
	}{
		{name: "fits", count: 10, minSize: 4, bufLen: 40},
		{name: "overruns buffer", count: 10, minSize: 4, bufLen: 39, wantErr: io.ErrUnexpectedEOF},
		{name: "too many items", count: MaxCollectionCount + 1, minSize: 1, bufLen: 8, wantErr: ErrCollectionTooLarge},
		{name: "zero", count: 0, minSize: 100, bufLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(make([]byte, tt.bufLen))
			err := d.CheckCount(tt.count, tt.minSize)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckCount(%d, %d) = %v, want %v", tt.count, tt.minSize, err, tt.wantErr)
			}
		})
	}
}

func TestFinishRejectsTrailing(t *testing.T) {
	d := NewDecoder([]byte{0x01})
	if err := d.Finish(); !errors.Is(err, ErrTrailingBytes) {
		t.Errorf("Finish() = %v, want ErrTrailingBytes", err)
	}
}

func TestEncoderReset(t *testing.T) {
	e := NewEncoderWithCap(64)
	e.WriteUint32(42)
	if e.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", e.Len())
	}
	e.Reset()
	if e.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", e.Len())
	}
}

func TestPeekMagic(t *testing.T) {
	if _, ok := PeekMagic([]byte("MES")); ok {
		t.Error("PeekMagic accepted a 3-byte buffer")
	}
	m, ok := PeekMagic([]byte("MESH\x01rest"))
	if !ok || m != MagicMesh {
		t.Errorf("PeekMagic = %v, %v", m, ok)
	}
}
