package search

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/panoptikon-go/panoptikon/internal/storage"
)

// npy is the tiny subset of the .npy format (magic, version, header dict,
// packed data) the search facade needs to decode a client's embedding
// payload (spec.md §4.9, §6 "Embedding wire encoding"). Grounded on
// original_source's api/routers/search.py (deserialize_array/
// extract_embeddings), which hands base64-decoded npy bytes to numpy's
// np.load; we only ever need the float32 case numpy produces for these
// models, so unlike numpy we reject anything else rather than generalize.
var npyMagic = []byte{0x93, 'N', 'U', 'M', 'P', 'Y'}

var shapeRe = regexp.MustCompile(`'shape':\s*\(([^)]*)\)`)
var descrRe = regexp.MustCompile(`'descr':\s*'([^']*)'`)

// DecodeEmbeddingPayload turns a client-supplied base64 npy payload into the
// store's native little-endian float32 blob (spec.md §4.9): base64-decode,
// parse the npy header and raw bytes (accepting rank-1 or rank-2, taking the
// first row of a rank-2 array per spec.md §6), then reserialize via
// storage.SerializeEmbedding so it is byte-identical to what the writer
// stores for this setter's embeddings.
func DecodeEmbeddingPayload(base64Payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(base64Payload)
	if err != nil {
		return nil, fmt.Errorf("search: invalid base64 embedding payload: %w", err)
	}
	vec, err := firstRowFloat32(raw)
	if err != nil {
		return nil, fmt.Errorf("search: invalid embedding payload: %w", err)
	}
	blob, err := storage.SerializeEmbedding(vec)
	if err != nil {
		return nil, fmt.Errorf("search: failed to serialize embedding: %w", err)
	}
	return blob, nil
}

// firstRowFloat32 parses an npy buffer and returns a single float32 vector:
// the whole array if rank-1, or its first row if rank-2.
func firstRowFloat32(buf []byte) ([]float32, error) {
	if len(buf) < 10 || string(buf[:6]) != string(npyMagic) {
		return nil, fmt.Errorf("missing npy magic header")
	}
	major := buf[6]

	var headerLen int
	var dataStart int
	switch major {
	case 1:
		if len(buf) < 10 {
			return nil, fmt.Errorf("truncated npy v1 header")
		}
		headerLen = int(binary.LittleEndian.Uint16(buf[8:10]))
		dataStart = 10 + headerLen
	case 2, 3:
		if len(buf) < 12 {
			return nil, fmt.Errorf("truncated npy v2/v3 header")
		}
		headerLen = int(binary.LittleEndian.Uint32(buf[8:12]))
		dataStart = 12 + headerLen
	default:
		return nil, fmt.Errorf("unsupported npy version %d", major)
	}
	if dataStart > len(buf) {
		return nil, fmt.Errorf("npy header longer than payload")
	}
	header := string(buf[dataStart-headerLen : dataStart])

	descrMatch := descrRe.FindStringSubmatch(header)
	if descrMatch == nil {
		return nil, fmt.Errorf("npy header missing descr")
	}
	descr := descrMatch[1]
	if descr != "<f4" && descr != "=f4" && descr != "f4" {
		return nil, fmt.Errorf("unsupported npy dtype %q, expected float32", descr)
	}

	shapeMatch := shapeRe.FindStringSubmatch(header)
	if shapeMatch == nil {
		return nil, fmt.Errorf("npy header missing shape")
	}
	dims, err := parseShape(shapeMatch[1])
	if err != nil {
		return nil, err
	}

	data := buf[dataStart:]
	const f32Size = 4
	if len(data)%f32Size != 0 {
		return nil, fmt.Errorf("npy data length %d is not a multiple of float32 size", len(data))
	}

	switch len(dims) {
	case 1:
		return readFloat32s(data, dims[0])
	case 2:
		if dims[0] == 0 {
			return nil, fmt.Errorf("empty rank-2 embedding array")
		}
		rowLen := dims[1]
		row := data[:rowLen*f32Size]
		return readFloat32s(row, rowLen)
	default:
		return nil, fmt.Errorf("unsupported embedding array rank %d, expected 1 or 2", len(dims))
	}
}

func parseShape(raw string) ([]int, error) {
	var dims []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid shape component %q: %w", part, err)
		}
		dims = append(dims, n)
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("empty shape")
	}
	return dims, nil
}

func readFloat32s(data []byte, n int) ([]float32, error) {
	if len(data) < n*4 {
		return nil, fmt.Errorf("npy data too short for %d float32 elements", n)
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}
