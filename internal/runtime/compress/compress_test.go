package compress

import (
	"bytes"
	"testing"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	original := bytes.Repeat([]byte(`{"hello":"world"}`), 50)

	compressed, err := Compress(original, 0)
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	if !IsCompressed(compressed) {
		t.Fatal("expected output to carry the compression marker")
	}
	if bytes.Equal(compressed, original) {
		t.Fatal("expected compressed output to differ from input")
	}

	decompressed, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("decompress failed: %v", err)
	}
	if !bytes.Equal(decompressed, original) {
		t.Fatal("expected round-trip to reproduce original bytes")
	}
}

func TestCompressPassesThroughSmallPayloads(t *testing.T) {
	original := []byte(`{"n":1}`)

	out, err := Compress(original, 1024)
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	if !bytes.Equal(out, original) {
		t.Fatal("expected small payload to pass through uncompressed")
	}
	if IsCompressed(out) {
		t.Fatal("expected uncompressed output to not carry the marker")
	}
}

func TestDecompressTolerantOfPlainInput(t *testing.T) {
	plain := []byte(`{"n":1}`)
	out, err := Decompress(plain)
	if err != nil {
		t.Fatalf("decompress of plain input failed: %v", err)
	}
	if !bytes.Equal(out, plain) {
		t.Fatal("expected plain input to pass through unchanged")
	}
}
