// Package testutil provides helpers for building synthetic DICOM
// series in tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// SeriesSpec describes a synthetic series for WriteSeries.
type SeriesSpec struct {
	SeriesInstanceUID string
	StudyInstanceUID  string
	Description       string
	Modality          string
	SeriesNumber      int
	Instances         int
	Rows              int
	Columns           int
	// Extra maps DICOM keyword to string value for additional tags.
	Extra map[string]string
}

func mustNewElement(t tag.Tag, value interface{}) *dicom.Element {
	el, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("new element %v: %v", t, err))
	}
	return el
}

// WriteSeries writes spec.Instances synthetic MR instances under dir
// and returns the file paths in instance order.
func WriteSeries(t *testing.T, dir string, spec SeriesSpec) []string {
	t.Helper()

	if spec.Modality == "" {
		spec.Modality = "MR"
	}
	if spec.Instances == 0 {
		spec.Instances = 1
	}
	if spec.Rows == 0 {
		spec.Rows = 8
	}
	if spec.Columns == 0 {
		spec.Columns = 8
	}
	if spec.StudyInstanceUID == "" {
		spec.StudyInstanceUID = "1.2.840.99999.1"
	}
	if spec.SeriesNumber == 0 {
		spec.SeriesNumber = 1
	}

	paths := make([]string, 0, spec.Instances)
	for i := 1; i <= spec.Instances; i++ {
		elements := []*dicom.Element{
			mustNewElement(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
			mustNewElement(tag.PatientName, []string{"Test^Patient"}),
			mustNewElement(tag.PatientID, []string{"TEST001"}),
			mustNewElement(tag.StudyInstanceUID, []string{spec.StudyInstanceUID}),
			mustNewElement(tag.SeriesInstanceUID, []string{spec.SeriesInstanceUID}),
			mustNewElement(tag.SeriesDescription, []string{spec.Description}),
			mustNewElement(tag.SeriesNumber, []string{fmt.Sprintf("%d", spec.SeriesNumber)}),
			mustNewElement(tag.Modality, []string{spec.Modality}),
			mustNewElement(tag.SOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.4"}),
			mustNewElement(tag.SOPInstanceUID, []string{fmt.Sprintf("%s.%d", spec.SeriesInstanceUID, i)}),
			mustNewElement(tag.InstanceNumber, []string{fmt.Sprintf("%d", i)}),
			mustNewElement(tag.Rows, []int{spec.Rows}),
			mustNewElement(tag.Columns, []int{spec.Columns}),
			mustNewElement(tag.BitsAllocated, []int{16}),
			mustNewElement(tag.BitsStored, []int{16}),
			mustNewElement(tag.HighBit, []int{15}),
			mustNewElement(tag.PixelRepresentation, []int{0}),
			mustNewElement(tag.SamplesPerPixel, []int{1}),
			mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
		}
		for keyword, value := range spec.Extra {
			info, err := tag.FindByName(keyword)
			if err != nil {
				t.Fatalf("unknown tag keyword %q: %v", keyword, err)
			}
			elements = append(elements, mustNewElement(info.Tag, []string{value}))
		}

		pixelsPerFrame := spec.Rows * spec.Columns
		nativeFrame := frame.NewNativeFrame[uint16](16, spec.Rows, spec.Columns, pixelsPerFrame, 1)
		for p := 0; p < pixelsPerFrame; p++ {
			nativeFrame.RawData[p] = uint16((p + i) % 4096)
		}
		elements = append(elements, mustNewElement(tag.PixelData, dicom.PixelDataInfo{
			Frames: []*frame.Frame{{Encapsulated: false, NativeData: nativeFrame}},
		}))

		path := filepath.Join(dir, fmt.Sprintf("%s_%04d.dcm", spec.SeriesInstanceUID, i))
		writeDataset(t, path, dicom.Dataset{Elements: elements})
		paths = append(paths, path)
	}
	return paths
}

func writeDataset(t *testing.T, path string, ds dicom.Dataset) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := dicom.Write(f, ds); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteFile writes content to name under dir and returns the path.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
