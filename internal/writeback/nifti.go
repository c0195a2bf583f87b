package writeback

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/Project-Laminate/flairstar/internal/domain"
)

// NIfTI-1 datatype codes.
const (
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat32 = 16
	dtFloat64 = 64
	dtUint16  = 512
)

const niftiHeaderSize = 348

// Volume is a 3-D NIfTI image in voxel order, x fastest.
type Volume struct {
	NX, NY, NZ int
	data       []float64
}

// At returns the voxel value at NIfTI coordinates (x, y, z).
func (v *Volume) At(x, y, z int) float64 {
	return v.data[x+y*v.NX+z*v.NX*v.NY]
}

// ReadVolume reads a .nii or .nii.gz file. Only the first volume of a
// multi-volume image is loaded.
func ReadVolume(path string) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConversion, err)
	}
	defer f.Close()

	var r io.Reader = f
	head := make([]byte, 2)
	if _, err := io.ReadFull(f, head); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrConversion, path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if head[0] == 0x1f && head[1] == 0x8b {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrConversion, path, err)
		}
		defer gz.Close()
		r = gz
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrConversion, path, err)
	}
	vol, err := parseNIfTI(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrConversion, path, err)
	}
	return vol, nil
}

func parseNIfTI(raw []byte) (*Volume, error) {
	if len(raw) < niftiHeaderSize {
		return nil, fmt.Errorf("truncated header: %d bytes", len(raw))
	}

	var order binary.ByteOrder = binary.LittleEndian
	if order.Uint32(raw[0:4]) != niftiHeaderSize {
		order = binary.BigEndian
		if order.Uint32(raw[0:4]) != niftiHeaderSize {
			return nil, fmt.Errorf("not a NIfTI-1 file")
		}
	}
	if magic := string(raw[344:347]); magic != "n+1" && magic != "ni1" {
		return nil, fmt.Errorf("bad magic %q", magic)
	}

	var dim [8]int16
	for i := range dim {
		dim[i] = int16(order.Uint16(raw[40+2*i : 42+2*i]))
	}
	if dim[0] < 3 {
		return nil, fmt.Errorf("expected a 3-D image, got %d dimensions", dim[0])
	}
	nx, ny, nz := int(dim[1]), int(dim[2]), int(dim[3])
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%dx%d", nx, ny, nz)
	}

	datatype := int16(order.Uint16(raw[70:72]))
	voxOffset := int(math.Float32frombits(order.Uint32(raw[108:112])))
	slope := math.Float32frombits(order.Uint32(raw[112:116]))
	inter := math.Float32frombits(order.Uint32(raw[116:120]))
	if voxOffset < niftiHeaderSize {
		voxOffset = niftiHeaderSize + 4
	}

	count := nx * ny * nz
	if voxOffset > len(raw) {
		return nil, fmt.Errorf("truncated voxel data: offset %d past end of %d-byte file", voxOffset, len(raw))
	}
	body := raw[voxOffset:]
	data := make([]float64, count)

	read := func(size int, at func(i int) float64) error {
		if len(body) < count*size {
			return fmt.Errorf("truncated voxel data: have %d bytes, need %d", len(body), count*size)
		}
		for i := 0; i < count; i++ {
			data[i] = at(i)
		}
		return nil
	}

	var err error
	switch datatype {
	case dtUint8:
		err = read(1, func(i int) float64 { return float64(body[i]) })
	case dtInt16:
		err = read(2, func(i int) float64 { return float64(int16(order.Uint16(body[2*i:]))) })
	case dtUint16:
		err = read(2, func(i int) float64 { return float64(order.Uint16(body[2*i:])) })
	case dtInt32:
		err = read(4, func(i int) float64 { return float64(int32(order.Uint32(body[4*i:]))) })
	case dtFloat32:
		err = read(4, func(i int) float64 { return float64(math.Float32frombits(order.Uint32(body[4*i:]))) })
	case dtFloat64:
		err = read(8, func(i int) float64 { return math.Float64frombits(order.Uint64(body[8*i:])) })
	default:
		err = fmt.Errorf("unsupported datatype %d", datatype)
	}
	if err != nil {
		return nil, err
	}

	if slope != 0 && (slope != 1 || inter != 0) {
		for i := range data {
			data[i] = data[i]*float64(slope) + float64(inter)
		}
	}

	return &Volume{NX: nx, NY: ny, NZ: nz, data: data}, nil
}
