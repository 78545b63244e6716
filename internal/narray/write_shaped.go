package narray

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

// WriteNpyShaped writes a float64 array with an explicit shape. npyio's
// Write only emits 1-D slices, so the header is assembled here.
func WriteNpyShaped(path string, shape []int, data []float64) error {
	n := 1
	for _, s := range shape {
		n *= s
	}
	if n != len(data) {
		return fmt.Errorf("npy write %s: shape %v does not match %d elements", path, shape, len(data))
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, data); err != nil {
		return err
	}
	return writeNpyRaw(path, "<f8", shape, buf.Bytes())
}

// WriteNpyIntShaped writes an int64 array with an explicit shape.
func WriteNpyIntShaped(path string, shape []int, data []int64) error {
	n := 1
	for _, s := range shape {
		n *= s
	}
	if n != len(data) {
		return fmt.Errorf("npy write %s: shape %v does not match %d elements", path, shape, len(data))
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, data); err != nil {
		return err
	}
	return writeNpyRaw(path, "<i8", shape, buf.Bytes())
}

func writeNpyRaw(path, descr string, shape []int, payload []byte) error {
	shapeStr := "("
	for _, s := range shape {
		shapeStr += fmt.Sprintf("%d, ", s)
	}
	shapeStr += ")"

	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, shapeStr)
	// Pad so magic+version+len+header is a multiple of 64, newline-terminated.
	total := 6 + 2 + 2 + len(header) + 1
	pad := (64 - total%64) % 64
	header += string(bytes.Repeat([]byte{' '}, pad)) + "\n"

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write([]byte("\x93NUMPY\x01\x00")); err != nil {
		return err
	}
	var hlen [2]byte
	binary.LittleEndian.PutUint16(hlen[:], uint16(len(header)))
	if _, err := f.Write(hlen[:]); err != nil {
		return err
	}
	if _, err := f.Write([]byte(header)); err != nil {
		return err
	}
	if _, err := f.Write(payload); err != nil {
		return err
	}
	return f.Close()
}
