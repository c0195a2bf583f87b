// Package writeback converts a combined NIfTI volume back into a
// DICOM series, reusing the headers of a reference series.
package writeback

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/Project-Laminate/flairstar/internal/domain"
	"github.com/Project-Laminate/flairstar/internal/logger"
)

const (
	// DerivedSeriesDescription labels the generated series.
	DerivedSeriesDescription = "FLAIR Star"
	// DerivedSeriesNumber places the generated series after the
	// acquired ones.
	DerivedSeriesNumber = 1000

	maxPixelValue = 4095

	explicitVRLittleEndian = "1.2.840.10008.1.2.1"
)

// Result describes the written series.
type Result struct {
	SeriesInstanceUID string
	Files             []string
}

// ToDICOM converts the volume at niftiPath into a new DICOM series
// under outDir. Each slice reuses the header of the instance at the
// same position in the reference series, with pixel data replaced by
// the normalized volume slice. When the slice count and the reference
// instance count differ, the smaller of the two bounds the output.
func ToDICOM(niftiPath string, reference domain.SeriesDescriptor, outDir string) (*Result, error) {
	vol, err := ReadVolume(niftiPath)
	if err != nil {
		return nil, err
	}
	if len(reference.FilePaths) == 0 {
		return nil, fmt.Errorf("%w: reference series %s has no files",
			domain.ErrConversion, reference.SeriesInstanceUID)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConversion, err)
	}

	log := logger.With("series", reference.SeriesInstanceUID)
	if vol.NZ != len(reference.FilePaths) {
		log.Warn("slice count does not match reference instance count",
			"slices", vol.NZ, "instances", len(reference.FilePaths))
	}

	seriesUID, err := newUID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConversion, err)
	}

	lo, hi := vol.extent()
	count := vol.NZ
	if len(reference.FilePaths) < count {
		count = len(reference.FilePaths)
	}

	result := &Result{SeriesInstanceUID: seriesUID}
	for idx := 0; idx < count; idx++ {
		sopUID, err := newUID()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrConversion, err)
		}
		path := filepath.Join(outDir, fmt.Sprintf("%s_%04d.dcm", seriesUID, idx+1))
		if err := writeSlice(vol, idx, lo, hi, reference.FilePaths[idx], path, seriesUID, sopUID, idx+1); err != nil {
			return nil, err
		}
		result.Files = append(result.Files, path)
	}

	log.Info("wrote derived series", "uid", seriesUID, "files", len(result.Files))
	return result, nil
}

// extent returns the volume-wide value range used for normalization.
func (v *Volume) extent() (lo, hi float64) {
	lo, hi = v.data[0], v.data[0]
	for _, x := range v.data[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}

// slicePixels extracts slice z rotated 180 degrees in plane and
// normalized to the 12-bit range. Rows run along the volume's y axis.
func slicePixels(v *Volume, z int, lo, hi float64) []uint16 {
	scale := 0.0
	if hi > lo {
		scale = maxPixelValue / (hi - lo)
	}
	pix := make([]uint16, v.NY*v.NX)
	for i := 0; i < v.NY; i++ {
		for j := 0; j < v.NX; j++ {
			val := (v.At(v.NX-1-j, v.NY-1-i, z) - lo) * scale
			if val < 0 {
				val = 0
			}
			if val > maxPixelValue {
				val = maxPixelValue
			}
			pix[i*v.NX+j] = uint16(val)
		}
	}
	return pix
}

func writeSlice(vol *Volume, z int, lo, hi float64, refPath, outPath, seriesUID, sopUID string, instance int) error {
	ref, err := dicom.ParseFile(refPath, nil, dicom.SkipPixelData())
	if err != nil {
		return fmt.Errorf("%w: reading reference %s: %v", domain.ErrConversion, refPath, err)
	}

	elements := make([]*dicom.Element, 0, len(ref.Elements)+8)
	for _, el := range ref.Elements {
		if el.Tag == tag.PixelData {
			continue
		}
		elements = append(elements, el)
	}

	rows, cols := vol.NY, vol.NX
	overrides := []struct {
		tag   tag.Tag
		value interface{}
	}{
		{tag.TransferSyntaxUID, []string{explicitVRLittleEndian}},
		{tag.MediaStorageSOPInstanceUID, []string{sopUID}},
		{tag.SeriesInstanceUID, []string{seriesUID}},
		{tag.SeriesDescription, []string{DerivedSeriesDescription}},
		{tag.SeriesNumber, []string{fmt.Sprintf("%d", DerivedSeriesNumber)}},
		{tag.SOPInstanceUID, []string{sopUID}},
		{tag.InstanceNumber, []string{fmt.Sprintf("%d", instance)}},
		{tag.Rows, []int{rows}},
		{tag.Columns, []int{cols}},
		{tag.SamplesPerPixel, []int{1}},
		{tag.PhotometricInterpretation, []string{"MONOCHROME2"}},
		{tag.BitsAllocated, []int{16}},
		{tag.BitsStored, []int{12}},
		{tag.HighBit, []int{11}},
		{tag.PixelRepresentation, []int{0}},
		{tag.RescaleIntercept, []string{"0"}},
		{tag.RescaleSlope, []string{"1"}},
		{tag.WindowCenter, []string{"2047"}},
		{tag.WindowWidth, []string{"4095"}},
	}
	for _, o := range overrides {
		elements, err = setElement(elements, o.tag, o.value)
		if err != nil {
			return fmt.Errorf("%w: building slice %d: %v", domain.ErrConversion, instance, err)
		}
	}

	nativeFrame := frame.NewNativeFrame[uint16](16, rows, cols, rows*cols, 1)
	copy(nativeFrame.RawData, slicePixels(vol, z, lo, hi))
	pixelEl, err := dicom.NewElement(tag.PixelData, dicom.PixelDataInfo{
		Frames: []*frame.Frame{{Encapsulated: false, NativeData: nativeFrame}},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConversion, err)
	}
	elements = append(elements, pixelEl)

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConversion, err)
	}
	if err := dicom.Write(f, dicom.Dataset{Elements: elements}); err != nil {
		f.Close()
		return fmt.Errorf("%w: writing %s: %v", domain.ErrConversion, outPath, err)
	}
	return f.Close()
}

// setElement replaces the element with tag t, or appends it when the
// reference did not carry one.
func setElement(elements []*dicom.Element, t tag.Tag, value interface{}) ([]*dicom.Element, error) {
	el, err := dicom.NewElement(t, value)
	if err != nil {
		return nil, err
	}
	for i := range elements {
		if elements[i].Tag == t {
			elements[i] = el
			return elements, nil
		}
	}
	return append(elements, el), nil
}

// newUID generates a UID under the UUID-derived 2.25 root.
func newUID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	n := new(big.Int).SetBytes(buf[:])
	return "2.25." + n.String(), nil
}
