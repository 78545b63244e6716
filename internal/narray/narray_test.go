package narray

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sbinet/npyio"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.npy")

	in := []float64{0.5, 1.25, -3, 42}
	if err := WriteNpy(path, in); err != nil {
		t.Fatalf("WriteNpy: %v", err)
	}
	d, err := ReadNpy(path)
	if err != nil {
		t.Fatalf("ReadNpy: %v", err)
	}
	if d.Len() != len(in) {
		t.Fatalf("len = %d, want %d", d.Len(), len(in))
	}
	for i, v := range in {
		if d.Data[i] != v {
			t.Fatalf("data[%d] = %v, want %v", i, d.Data[i], v)
		}
	}
}

func TestReadNpyFloat32(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f32.npy")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := npyio.Write(f, []float32{1.5, 2.5}); err != nil {
		t.Fatalf("npyio write: %v", err)
	}
	f.Close()

	d, err := ReadNpy(path)
	if err != nil {
		t.Fatalf("ReadNpy: %v", err)
	}
	if d.Data[0] != 1.5 || d.Data[1] != 2.5 {
		t.Fatalf("data = %v", d.Data)
	}
}

func TestReadNpyInt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "i.npy")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := npyio.Write(f, []int64{3, -7, 11}); err != nil {
		t.Fatalf("npyio write: %v", err)
	}
	f.Close()

	d, err := ReadNpyInt(path)
	if err != nil {
		t.Fatalf("ReadNpyInt: %v", err)
	}
	if d.Data[0] != 3 || d.Data[1] != -7 || d.Data[2] != 11 {
		t.Fatalf("data = %v", d.Data)
	}
}

func TestWriteNpyShapedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shaped.npy")

	data := []float64{1, 2, 3, 4, 5, 6}
	if err := WriteNpyShaped(path, []int{2, 3}, data); err != nil {
		t.Fatalf("WriteNpyShaped: %v", err)
	}
	d, err := ReadNpy(path)
	if err != nil {
		t.Fatalf("ReadNpy: %v", err)
	}
	if len(d.Shape) != 2 || d.Shape[0] != 2 || d.Shape[1] != 3 {
		t.Fatalf("shape = %v", d.Shape)
	}
	if d.At2(1, 2) != 6 {
		t.Fatalf("At2(1,2) = %v", d.At2(1, 2))
	}
}

func TestWriteNpyShapedSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	err := WriteNpyShaped(filepath.Join(dir, "bad.npy"), []int{2, 2}, []float64{1, 2, 3})
	if err == nil {
		t.Fatalf("expected shape mismatch error")
	}
}

func TestDenseIndexing(t *testing.T) {
	d := NewDense(2, 3)
	d.Set2(1, 2, 9)
	if d.At2(1, 2) != 9 {
		t.Fatalf("At2(1,2) = %v", d.At2(1, 2))
	}
	if got := d.Row2(1); got[2] != 9 {
		t.Fatalf("Row2(1) = %v", got)
	}

	e := NewDense(2, 3, 4)
	e.Set3(1, 2, 3, 5)
	if e.At3(1, 2, 3) != 5 {
		t.Fatalf("At3 = %v", e.At3(1, 2, 3))
	}
}
