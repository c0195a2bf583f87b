package writeback

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/Project-Laminate/flairstar/internal/domain"
	"github.com/Project-Laminate/flairstar/internal/testutil"
)

// buildNIfTI writes a float32 NIfTI-1 volume with voxels from fill.
func buildNIfTI(t *testing.T, path string, nx, ny, nz int, fill func(x, y, z int) float32, compress bool) {
	t.Helper()

	hdr := make([]byte, 352)
	binary.LittleEndian.PutUint32(hdr[0:4], 348)
	dims := []int16{3, int16(nx), int16(ny), int16(nz), 1, 1, 1, 1}
	for i, d := range dims {
		binary.LittleEndian.PutUint16(hdr[40+2*i:], uint16(d))
	}
	binary.LittleEndian.PutUint16(hdr[70:], dtFloat32)
	binary.LittleEndian.PutUint16(hdr[72:], 32)
	binary.LittleEndian.PutUint32(hdr[108:], math.Float32bits(352))
	binary.LittleEndian.PutUint32(hdr[112:], math.Float32bits(1)) // scl_slope
	binary.LittleEndian.PutUint32(hdr[116:], math.Float32bits(0)) // scl_inter
	copy(hdr[344:], "n+1\x00")

	var body bytes.Buffer
	body.Write(hdr)
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				var b [4]byte
				binary.LittleEndian.PutUint32(b[:], math.Float32bits(fill(x, y, z)))
				body.Write(b[:])
			}
		}
	}

	raw := body.Bytes()
	if compress {
		var gzBuf bytes.Buffer
		gw := gzip.NewWriter(&gzBuf)
		if _, err := gw.Write(raw); err != nil {
			t.Fatalf("gzip: %v", err)
		}
		if err := gw.Close(); err != nil {
			t.Fatalf("gzip close: %v", err)
		}
		raw = gzBuf.Bytes()
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestReadVolume(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "gzip"
		}
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "vol.nii.gz")
			buildNIfTI(t, path, 3, 4, 2, func(x, y, z int) float32 {
				return float32(x + 10*y + 100*z)
			}, compress)

			vol, err := ReadVolume(path)
			if err != nil {
				t.Fatalf("ReadVolume() error = %v", err)
			}
			if vol.NX != 3 || vol.NY != 4 || vol.NZ != 2 {
				t.Fatalf("dimensions = %dx%dx%d, want 3x4x2", vol.NX, vol.NY, vol.NZ)
			}
			if got := vol.At(2, 3, 1); got != 132 {
				t.Errorf("At(2,3,1) = %v, want 132", got)
			}
			if got := vol.At(0, 0, 0); got != 0 {
				t.Errorf("At(0,0,0) = %v, want 0", got)
			}
		})
	}
}

func TestReadVolumeRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-nifti.nii")
	if err := os.WriteFile(path, []byte("definitely not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadVolume(path); err == nil {
		t.Error("ReadVolume() error = nil, want parse failure")
	}
}

func TestReadVolumeTruncated(t *testing.T) {
	full := filepath.Join(t.TempDir(), "vol.nii")
	buildNIfTI(t, full, 3, 4, 2, func(x, y, z int) float32 { return 1 }, false)
	raw, err := os.ReadFile(full)
	if err != nil {
		t.Fatal(err)
	}

	for name, size := range map[string]int{
		"header only":  348,
		"partial body": 352 + 7,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "trunc.nii")
			if err := os.WriteFile(path, raw[:size], 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := ReadVolume(path); !errors.Is(err, domain.ErrConversion) {
				t.Errorf("ReadVolume() error = %v, want ErrConversion", err)
			}
		})
	}
}

func TestSlicePixelsRotation(t *testing.T) {
	// Single-slice 2x3 volume with unique values per voxel.
	vol := &Volume{NX: 2, NY: 3, NZ: 1, data: []float64{
		// y=0      y=1       y=2
		0, 1 /**/, 2, 3 /**/, 4, 5,
	}}
	lo, hi := vol.extent()

	pix := slicePixels(vol, 0, lo, hi)
	// Output rows run along y reversed, columns along x reversed, so
	// pixel (i, j) holds voxel (NX-1-j, NY-1-i) scaled to 0..4095.
	scale := func(v float64) uint16 { return uint16(v / 5 * 4095) }
	want := []uint16{
		scale(vol.At(1, 2, 0)), scale(vol.At(0, 2, 0)),
		scale(vol.At(1, 1, 0)), scale(vol.At(0, 1, 0)),
		scale(vol.At(1, 0, 0)), scale(vol.At(0, 0, 0)),
	}
	if len(pix) != len(want) {
		t.Fatalf("len(pix) = %d, want %d", len(pix), len(want))
	}
	for i := range want {
		if pix[i] != want[i] {
			t.Errorf("pix[%d] = %d, want %d", i, pix[i], want[i])
		}
	}
	if pix[5] != 0 {
		t.Errorf("minimum voxel should normalize to 0, got %d", pix[5])
	}
	if pix[0] != 4095 {
		t.Errorf("maximum voxel should normalize to 4095, got %d", pix[0])
	}
}

func TestSlicePixelsFlatVolume(t *testing.T) {
	vol := &Volume{NX: 2, NY: 2, NZ: 1, data: []float64{7, 7, 7, 7}}
	lo, hi := vol.extent()
	for i, p := range slicePixels(vol, 0, lo, hi) {
		if p != 0 {
			t.Errorf("pix[%d] = %d, want 0 for a constant volume", i, p)
		}
	}
}

func TestToDICOM(t *testing.T) {
	dir := t.TempDir()
	refDir := filepath.Join(dir, "ref")
	if err := os.MkdirAll(refDir, 0o755); err != nil {
		t.Fatal(err)
	}
	refPaths := testutil.WriteSeries(t, refDir, testutil.SeriesSpec{
		SeriesInstanceUID: "1.2.3.100",
		Description:       "SWI_Images",
		Instances:         2,
		Rows:              4,
		Columns:           4,
	})

	niftiPath := filepath.Join(dir, "product.nii.gz")
	buildNIfTI(t, niftiPath, 4, 4, 2, func(x, y, z int) float32 {
		return float32(x + y + z)
	}, true)

	outDir := filepath.Join(dir, "out")
	res, err := ToDICOM(niftiPath, domain.SeriesDescriptor{
		SeriesInstanceUID: "1.2.3.100",
		FilePaths:         refPaths,
	}, outDir)
	if err != nil {
		t.Fatalf("ToDICOM() error = %v", err)
	}

	if res.SeriesInstanceUID == "" || res.SeriesInstanceUID == "1.2.3.100" {
		t.Errorf("SeriesInstanceUID = %q, want a fresh UID", res.SeriesInstanceUID)
	}
	if !strings.HasPrefix(res.SeriesInstanceUID, "2.25.") {
		t.Errorf("SeriesInstanceUID = %q, want 2.25. prefix", res.SeriesInstanceUID)
	}
	if len(res.Files) != 2 {
		t.Fatalf("wrote %d files, want 2", len(res.Files))
	}

	for idx, path := range res.Files {
		wantName := fmt.Sprintf("%s_%04d.dcm", res.SeriesInstanceUID, idx+1)
		if filepath.Base(path) != wantName {
			t.Errorf("file name = %q, want %q", filepath.Base(path), wantName)
		}

		ds, err := dicom.ParseFile(path, nil)
		if err != nil {
			t.Fatalf("parsing output %s: %v", path, err)
		}
		checks := map[tag.Tag]string{
			tag.SeriesInstanceUID: res.SeriesInstanceUID,
			tag.SeriesDescription: "FLAIR Star",
			tag.SeriesNumber:      "1000",
			tag.Modality:          "MR",
			tag.WindowCenter:      "2047",
			tag.WindowWidth:       "4095",
		}
		for tt, want := range checks {
			el, err := ds.FindElementByTag(tt)
			if err != nil {
				t.Fatalf("output missing tag %v", tt)
			}
			if got := firstString(t, el); got != want {
				t.Errorf("tag %v = %q, want %q", tt, got, want)
			}
		}

		el, err := ds.FindElementByTag(tag.BitsStored)
		if err != nil {
			t.Fatal("output missing BitsStored")
		}
		if got := el.Value.GetValue().([]int)[0]; got != 12 {
			t.Errorf("BitsStored = %d, want 12", got)
		}
	}

	// SOP instance UIDs are fresh and distinct per slice.
	uids := make(map[string]bool)
	for _, path := range res.Files {
		ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
		if err != nil {
			t.Fatal(err)
		}
		el, err := ds.FindElementByTag(tag.SOPInstanceUID)
		if err != nil {
			t.Fatal("output missing SOPInstanceUID")
		}
		uid := firstString(t, el)
		if uids[uid] {
			t.Errorf("duplicate SOPInstanceUID %q", uid)
		}
		uids[uid] = true
	}
}

func TestToDICOMMoreSlicesThanReferences(t *testing.T) {
	dir := t.TempDir()
	refPaths := testutil.WriteSeries(t, dir, testutil.SeriesSpec{
		SeriesInstanceUID: "1.2.3.101",
		Description:       "SWI",
		Instances:         1,
		Rows:              4,
		Columns:           4,
	})

	niftiPath := filepath.Join(dir, "vol.nii")
	buildNIfTI(t, niftiPath, 4, 4, 3, func(x, y, z int) float32 {
		return float32(x * y * (z + 1))
	}, false)

	res, err := ToDICOM(niftiPath, domain.SeriesDescriptor{
		SeriesInstanceUID: "1.2.3.101",
		FilePaths:         refPaths,
	}, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("ToDICOM() error = %v", err)
	}
	if len(res.Files) != 1 {
		t.Errorf("wrote %d files, want 1 (bounded by reference)", len(res.Files))
	}
}

func TestToDICOMEmptyReference(t *testing.T) {
	dir := t.TempDir()
	niftiPath := filepath.Join(dir, "vol.nii")
	buildNIfTI(t, niftiPath, 2, 2, 1, func(x, y, z int) float32 { return 1 }, false)

	_, err := ToDICOM(niftiPath, domain.SeriesDescriptor{SeriesInstanceUID: "1.2"}, dir)
	if !errors.Is(err, domain.ErrConversion) {
		t.Errorf("ToDICOM() error = %v, want ErrConversion", err)
	}
}

func firstString(t *testing.T, el *dicom.Element) string {
	t.Helper()
	vals, ok := el.Value.GetValue().([]string)
	if !ok || len(vals) == 0 {
		t.Fatalf("element %v has no string value", el.Tag)
	}
	return strings.TrimSpace(vals[0])
}
