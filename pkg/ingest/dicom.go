package ingest

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/cocosip/go-dicom/pkg/dicom/parser"
	"github.com/cocosip/go-dicom/pkg/imaging"

	// Register transfer-syntax codecs for encapsulated pixel data
	_ "github.com/cocosip/go-dicom-codec/jpeg/baseline"
	_ "github.com/cocosip/go-dicom-codec/jpeg/lossless"
	_ "github.com/cocosip/go-dicom-codec/jpeg2000/lossless"
	_ "github.com/cocosip/go-dicom-codec/jpegls/lossless"

	"medidenoise/internal/models"
)

// PixelLayout describes how a native DICOM frame is packed
type PixelLayout struct {
	Width           int
	Height          int
	SamplesPerPixel int
	BitsAllocated   int
	BitsStored      int
	Signed          bool
}

// DecodeDICOM extracts the first frame of a DICOM file. Sample values keep
// their stored range (12/16-bit data is not rescaled here).
func DecodeDICOM(data []byte, maxPixels int) (*models.RawImage, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	// The parser reads from a path, so the upload is spooled to a temp file.
	tmp, err := os.CreateTemp("", "medidenoise-*.dcm")
	if err != nil {
		return nil, fmt.Errorf("failed to spool dicom upload: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to spool dicom upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to spool dicom upload: %w", err)
	}

	res, err := parser.ParseFile(tmp.Name(), parser.WithReadOption(parser.ReadAll))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	pd, err := imaging.CreatePixelData(res.Dataset)
	if err != nil {
		return nil, fmt.Errorf("%w: no pixel data: %v", ErrCorrupt, err)
	}
	if pd.FrameCount() < 1 {
		return nil, fmt.Errorf("%w: dicom has no frames", ErrCorrupt)
	}
	if err := checkPixels(int(pd.Info.Width), int(pd.Info.Height), maxPixels); err != nil {
		return nil, err
	}

	frame, err := pd.GetFrame(0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	info := pd.Info
	layout := PixelLayout{
		Width:           int(info.Width),
		Height:          int(info.Height),
		SamplesPerPixel: int(info.SamplesPerPixel),
		BitsAllocated:   int(info.BitsAllocated),
		BitsStored:      int(info.BitsStored),
		Signed:          int(info.PixelRepresentation) == 1,
	}

	return FrameToRaw(frame, layout)
}

// FrameToRaw unpacks a little-endian native frame into a RawImage.
// Only the first sample of multi-sample pixels is kept.
func FrameToRaw(frame []byte, layout PixelLayout) (*models.RawImage, error) {
	if layout.Width <= 0 || layout.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrCorrupt, layout.Width, layout.Height)
	}
	if layout.SamplesPerPixel <= 0 {
		layout.SamplesPerPixel = 1
	}
	if layout.BitsStored <= 0 || layout.BitsStored > layout.BitsAllocated {
		layout.BitsStored = layout.BitsAllocated
	}

	var bytesPerSample int
	switch layout.BitsAllocated {
	case 8:
		bytesPerSample = 1
	case 16:
		bytesPerSample = 2
	default:
		return nil, fmt.Errorf("%w: %d bits allocated", ErrUnsupportedFormat, layout.BitsAllocated)
	}

	stride := bytesPerSample * layout.SamplesPerPixel
	need := layout.Width * layout.Height * stride
	if len(frame) < need {
		return nil, fmt.Errorf("%w: frame has %d bytes, need %d", ErrCorrupt, len(frame), need)
	}

	raw := models.NewRawImage(layout.Width, layout.Height)
	raw.Source = models.SourceDICOM
	raw.BitDepth = layout.BitsStored

	mask := uint32(1)<<uint(layout.BitsStored) - 1
	signBit := uint32(1) << uint(layout.BitsStored-1)

	for i := range raw.Pix {
		off := i * stride
		var v uint32
		if bytesPerSample == 1 {
			v = uint32(frame[off])
		} else {
			v = uint32(binary.LittleEndian.Uint16(frame[off : off+2]))
		}
		v &= mask

		if layout.Signed && v&signBit != 0 {
			raw.Pix[i] = float64(int64(v) - int64(mask) - 1)
		} else {
			raw.Pix[i] = float64(v)
		}
	}

	return raw, nil
}
