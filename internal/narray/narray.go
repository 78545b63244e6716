// Package narray provides the small dense-array types the pipeline passes
// between stages, plus NumPy (.npy) readers and writers for the sorter
// interchange format.
package narray

import (
	"fmt"
	"os"

	"github.com/sbinet/npyio"
)

// Dense is a row-major float64 array of arbitrary rank.
type Dense struct {
	Shape []int
	Data  []float64
}

// NewDense allocates a zeroed array with the given shape.
func NewDense(shape ...int) *Dense {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return &Dense{Shape: append([]int(nil), shape...), Data: make([]float64, n)}
}

// Len returns the total number of elements.
func (d *Dense) Len() int { return len(d.Data) }

// At2 returns element (i, j) of a rank-2 array.
func (d *Dense) At2(i, j int) float64 {
	return d.Data[i*d.Shape[1]+j]
}

// Set2 sets element (i, j) of a rank-2 array.
func (d *Dense) Set2(i, j int, v float64) {
	d.Data[i*d.Shape[1]+j] = v
}

// At3 returns element (i, j, k) of a rank-3 array.
func (d *Dense) At3(i, j, k int) float64 {
	return d.Data[(i*d.Shape[1]+j)*d.Shape[2]+k]
}

// Set3 sets element (i, j, k) of a rank-3 array.
func (d *Dense) Set3(i, j, k int, v float64) {
	d.Data[(i*d.Shape[1]+j)*d.Shape[2]+k] = v
}

// Row2 returns row i of a rank-2 array as a shared slice.
func (d *Dense) Row2(i int) []float64 {
	w := d.Shape[1]
	return d.Data[i*w : (i+1)*w]
}

// IntDense is a row-major int64 array of arbitrary rank.
type IntDense struct {
	Shape []int
	Data  []int64
}

// At2 returns element (i, j) of a rank-2 array.
func (d *IntDense) At2(i, j int) int64 {
	return d.Data[i*d.Shape[1]+j]
}

// Row2 returns row i of a rank-2 array as a shared slice.
func (d *IntDense) Row2(i int) []int64 {
	w := d.Shape[1]
	return d.Data[i*w : (i+1)*w]
}

// ReadNpy reads a .npy file of any supported numeric dtype into a float64
// Dense. Fortran-ordered files are rejected.
func ReadNpy(path string) (*Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("npy header %s: %w", path, err)
	}
	if r.Header.Descr.Fortran {
		return nil, fmt.Errorf("npy %s: fortran order not supported", path)
	}
	shape := append([]int(nil), r.Header.Descr.Shape...)
	if len(shape) == 0 {
		shape = []int{1}
	}

	data, err := readAsFloat64(r)
	if err != nil {
		return nil, fmt.Errorf("npy read %s: %w", path, err)
	}
	return &Dense{Shape: shape, Data: data}, nil
}

// ReadNpyInt reads a .npy file of integer dtype into an int64 IntDense.
func ReadNpyInt(path string) (*IntDense, error) {
	d, err := ReadNpy(path)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(d.Data))
	for i, v := range d.Data {
		out[i] = int64(v)
	}
	return &IntDense{Shape: d.Shape, Data: out}, nil
}

func readAsFloat64(r *npyio.Reader) ([]float64, error) {
	switch r.Header.Descr.Type {
	case "<f8", "|f8", ">f8":
		var data []float64
		if err := r.Read(&data); err != nil {
			return nil, err
		}
		return data, nil
	case "<f4", "|f4", ">f4":
		var data []float32
		if err := r.Read(&data); err != nil {
			return nil, err
		}
		return widen32(data), nil
	case "<i8", "|i8", ">i8":
		var data []int64
		if err := r.Read(&data); err != nil {
			return nil, err
		}
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	case "<i4", "|i4", ">i4":
		var data []int32
		if err := r.Read(&data); err != nil {
			return nil, err
		}
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	case "<u8", "|u8", ">u8":
		var data []uint64
		if err := r.Read(&data); err != nil {
			return nil, err
		}
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	case "<u4", "|u4", ">u4":
		var data []uint32
		if err := r.Read(&data); err != nil {
			return nil, err
		}
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported npy dtype %q", r.Header.Descr.Type)
	}
}

func widen32(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// WriteNpy writes a float64 slice to path as a 1-D .npy array.
func WriteNpy(path string, data []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := npyio.Write(f, data); err != nil {
		return fmt.Errorf("npy write %s: %w", path, err)
	}
	return f.Close()
}

// WriteNpyInt writes an int64 slice to path as a 1-D .npy array.
func WriteNpyInt(path string, data []int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := npyio.Write(f, data); err != nil {
		return fmt.Errorf("npy write %s: %w", path, err)
	}
	return f.Close()
}
