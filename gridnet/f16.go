package gridnet

import "github.com/x448/float16"

// f16LookupTable maps every half precision bit pattern to its float32
// value, so decoding a weights file costs one array read per weight
var f16LookupTable [65536]float32

func init() {
	for bits := range f16LookupTable {
		f16LookupTable[bits] = float16.Frombits(uint16(bits)).Float32()
	}
}

// f16BitsToFloat32 expands half precision weight bits to float32 as Go
// has no support for FP16
func f16BitsToFloat32(bits []uint16) []float32 {

	float32Buf := make([]float32, len(bits))

	for i, val := range bits {
		float32Buf[i] = f16LookupTable[val]
	}

	return float32Buf
}

// float32ToF16Bits compresses float32 weights to half precision bits
func float32ToF16Bits(vals []float32) []uint16 {

	bits := make([]uint16, len(vals))

	for i, val := range vals {
		bits[i] = float16.Fromfloat32(val).Bits()
	}

	return bits
}
