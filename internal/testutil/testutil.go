// Package testutil builds small image files for tests that need real
// container bytes rather than decoded pixels.
package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/png"
)

// PNGWithSize returns a 1x1 grayscale PNG whose header claims width x height.
// The header checksum is valid, so image.DecodeConfig accepts it.
func PNGWithSize(width, height uint32) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))); err != nil {
		panic(err)
	}
	data := buf.Bytes()

	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc
	binary.BigEndian.PutUint32(data[16:20], width)
	binary.BigEndian.PutUint32(data[20:24], height)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

// DICOM returns an explicit VR little endian file with one monochrome frame
// of 16-bit allocated samples
func DICOM(width, height, bitsStored int, samples []uint16) []byte {
	var meta bytes.Buffer
	writeElement(&meta, 0x0002, 0x0010, "UI", padded("1.2.840.10008.1.2.1", 0))

	var ds bytes.Buffer
	writeElement(&ds, 0x0028, 0x0002, "US", us(1))
	writeElement(&ds, 0x0028, 0x0004, "CS", padded("MONOCHROME2", ' '))
	writeElement(&ds, 0x0028, 0x0010, "US", us(uint16(height)))
	writeElement(&ds, 0x0028, 0x0011, "US", us(uint16(width)))
	writeElement(&ds, 0x0028, 0x0100, "US", us(16))
	writeElement(&ds, 0x0028, 0x0101, "US", us(uint16(bitsStored)))
	writeElement(&ds, 0x0028, 0x0102, "US", us(uint16(bitsStored-1)))
	writeElement(&ds, 0x0028, 0x0103, "US", us(0))

	pixels := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pixels[i*2:], s)
	}
	writeElement(&ds, 0x7FE0, 0x0010, "OW", pixels)

	var out bytes.Buffer
	out.Write(make([]byte, 128))
	out.WriteString("DICM")
	out.Write(meta.Bytes())
	out.Write(ds.Bytes())
	return out.Bytes()
}

func writeElement(buf *bytes.Buffer, group, element uint16, vr string, value []byte) {
	binary.Write(buf, binary.LittleEndian, group)
	binary.Write(buf, binary.LittleEndian, element)
	buf.WriteString(vr)

	switch vr {
	case "OB", "OW", "OF", "SQ", "UT", "UN":
		buf.Write([]byte{0, 0})
		binary.Write(buf, binary.LittleEndian, uint32(len(value)))
	default:
		binary.Write(buf, binary.LittleEndian, uint16(len(value)))
	}
	buf.Write(value)
}

func us(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// padded returns s padded to an even length with pad
func padded(s string, pad byte) []byte {
	b := []byte(s)
	if len(b)%2 == 1 {
		b = append(b, pad)
	}
	return b
}
