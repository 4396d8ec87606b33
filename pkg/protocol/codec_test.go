package protocol

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"
)

func TestUvarintRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value uint64
		bytes int // expected encoded length
	}{
		{"zero", 0, 1},
		{"one", 1, 1},
		{"max_1byte", 127, 1},
		{"min_2byte", 128, 2},
		{"max_2byte", 16383, 2},
		{"min_3byte", 16384, 3},
		{"medium", 1000000, 3},
		{"large", 1 << 28, 5},
		{"max_uint32", math.MaxUint32, 5},
		{"max_uint64", math.MaxUint64, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEncoder()
			e.WriteUvarint(tc.value)

			if e.Len() != tc.bytes {
				t.Errorf("WriteUvarint(%d) = %d bytes, want %d", tc.value, e.Len(), tc.bytes)
			}

			d := NewDecoder(e.Bytes())
			decoded, err := d.ReadUvarint()
			if err != nil {
				t.Fatalf("ReadUvarint: %v", err)
			}
			if decoded != tc.value {
				t.Errorf("ReadUvarint = %d, want %d", decoded, tc.value)
			}
			if !d.EOF() {
				t.Errorf("decoder not at EOF, %d bytes remaining", d.Remaining())
			}
		})
	}
}

func TestReadUvarintErrors(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{"empty", nil, io.ErrUnexpectedEOF},
		{"incomplete", []byte{0x80}, io.ErrUnexpectedEOF},
		{"overflow", bytes.Repeat([]byte{0xFF}, 11), ErrVarintOverflow},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDecoder(tc.buf).ReadUvarint()
			if !errors.Is(err, tc.want) {
				t.Errorf("ReadUvarint error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLenBytesRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"small", []byte("hello")},
		{"binary", []byte{0x00, 0xFF, 0x80, 0x7F}},
		{"large", bytes.Repeat([]byte{0xAB}, 5000)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEncoder()
			e.WriteLenBytes(tc.data)

			got, err := NewDecoder(e.Bytes()).ReadLenBytes()
			if err != nil {
				t.Fatalf("ReadLenBytes: %v", err)
			}
			if !bytes.Equal(got, tc.data) {
				t.Errorf("ReadLenBytes = %v, want %v", got, tc.data)
			}
		})
	}
}

func TestReadLenBytesRejectsOversizedPrefix(t *testing.T) {
	e := NewEncoder()
	e.WriteUvarint(MaxAllocation + 1)

	_, err := NewDecoder(e.Bytes()).ReadLenBytes()
	if !errors.Is(err, ErrAllocationTooLarge) {
		t.Errorf("ReadLenBytes error = %v, want %v", err, ErrAllocationTooLarge)
	}
}

func TestReadLenBytesTruncatedPayload(t *testing.T) {
	e := NewEncoder()
	e.WriteUvarint(10)
	e.WriteBytes([]byte("short"))

	_, err := NewDecoder(e.Bytes()).ReadLenBytes()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadLenBytes error = %v, want %v", err, io.ErrUnexpectedEOF)
	}
}

func TestReadCountRejectsHugeCollections(t *testing.T) {
	e := NewEncoder()
	e.WriteUvarint(MaxCollectionCount + 1)

	_, err := NewDecoder(e.Bytes()).ReadCount()
	if !errors.Is(err, ErrCollectionTooLarge) {
		t.Errorf("ReadCount error = %v, want %v", err, ErrCollectionTooLarge)
	}
}

func TestStringRoundTrip(t *testing.T) {
	e := NewEncoder()
	e.WriteString("room-42")
	e.WriteString("")

	d := NewDecoder(e.Bytes())
	first, err := d.ReadString()
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if first != "room-42" {
		t.Errorf("ReadString = %q, want %q", first, "room-42")
	}
	second, err := d.ReadString()
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if second != "" {
		t.Errorf("ReadString = %q, want empty", second)
	}
}

func TestEncoderReset(t *testing.T) {
	e := NewEncoder()
	e.WriteUvarint(12345)
	e.Reset()
	if e.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", e.Len())
	}
}
