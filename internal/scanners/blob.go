package scanners

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"unicode"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	xunicode "golang.org/x/text/encoding/unicode"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// readBlob reads at most limit bytes of path. Compressed blobs are
// decompressed up to the same limit; if decompression fails the raw bytes
// are returned. truncated reports whether the limit cut the data.
func readBlob(path string, limit int64) (data []byte, truncated bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	raw, truncated, err := readLimited(f, limit)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}

	if out, cut, ok := decompress(raw, limit); ok {
		return out, truncated || cut, nil
	}
	return raw, truncated, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

func decompress(raw []byte, limit int64) ([]byte, bool, bool) {
	switch {
	case bytes.HasPrefix(raw, gzipMagic):
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, false, false
		}
		defer zr.Close()
		out, cut, err := readLimited(zr, limit)
		if err != nil && len(out) == 0 {
			return nil, false, false
		}
		return out, cut, true

	case bytes.HasPrefix(raw, zstdMagic):
		zr, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, false, false
		}
		defer zr.Close()
		out, cut, err := readLimited(zr, limit)
		if err != nil && len(out) == 0 {
			return nil, false, false
		}
		return out, cut, true
	}
	return nil, false, false
}

// foldUTF8 lowercases b without changing any byte offset. Runes whose
// lowercase form has a different encoded length are kept as they are.
// Invalid bytes become 0x00 so they can never be part of a match.
func foldUTF8(b []byte) []byte {
	out := make([]byte, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		if c < utf8.RuneSelf {
			if 'A' <= c && c <= 'Z' {
				c += 'a' - 'A'
			}
			out[i] = c
			i++
			continue
		}
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			out[i] = 0
			i++
			continue
		}
		lower := unicode.ToLower(r)
		if lower != r && utf8.RuneLen(lower) == size {
			utf8.EncodeRune(out[i:], lower)
		} else {
			copy(out[i:i+size], b[i:i+size])
		}
		i += size
	}
	return out
}

// foldASCII lowercases ASCII letters only. Used for UTF-16 searches, where
// multi-byte sequences are not UTF-8.
func foldASCII(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return out
}

var utf16le = xunicode.UTF16(xunicode.LittleEndian, xunicode.IgnoreBOM)

func encodeUTF16LE(s string) []byte {
	b, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil
	}
	return b
}

func decodeUTF16LE(b []byte) string {
	if len(b)%2 == 1 {
		b = b[:len(b)-1]
	}
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}

// sanitize decodes b permissively: invalid sequences become U+FFFD and
// non-printable runes become spaces. The result is trimmed.
func sanitize(b []byte) string {
	var sb bytes.Buffer
	sb.Grow(len(b))
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			sb.WriteRune(utf8.RuneError)
		case !unicode.IsPrint(r):
			sb.WriteByte(' ')
		default:
			sb.WriteRune(r)
		}
		i += size
	}
	return string(bytes.TrimSpace(sb.Bytes()))
}

// contextWindow returns the sanitized text within radius bytes of [start,end),
// widened to rune boundaries and trimmed to the blob.
func contextWindow(b []byte, start, end, radius int) string {
	lo := max(start-radius, 0)
	hi := min(end+radius, len(b))
	for lo > 0 && lo > start-radius-utf8.UTFMax && !utf8.RuneStart(b[lo]) {
		lo--
	}
	for hi < len(b) && hi < end+radius+utf8.UTFMax && !utf8.RuneStart(b[hi]) {
		hi++
	}
	return sanitize(b[lo:hi])
}

// contextWindowUTF16 is contextWindow for a UTF-16LE match. The window keeps
// the match's code-unit alignment.
func contextWindowUTF16(b []byte, start, end, radius int) string {
	radius &^= 1
	lo := max(start-radius, start%2)
	hi := min(end+radius, len(b))
	return sanitize([]byte(decodeUTF16LE(b[lo:hi])))
}

// quotedStrings extracts every double-quoted string value from a JSON-like
// document without requiring it to be well formed. Escapes are decoded when
// possible and kept verbatim otherwise. Values are joined by newlines.
func quotedStrings(doc []byte) []byte {
	var out bytes.Buffer
	for i := 0; i < len(doc); i++ {
		if doc[i] != '"' {
			continue
		}
		j := i + 1
		for j < len(doc) && doc[j] != '"' {
			if doc[j] == '\\' {
				j++
			}
			j++
		}
		if j >= len(doc) {
			break
		}
		lit := doc[i : j+1]
		if s, err := strconv.Unquote(string(lit)); err == nil {
			out.WriteString(s)
		} else {
			out.Write(lit[1 : len(lit)-1])
		}
		out.WriteByte('\n')
		i = j
	}
	return out.Bytes()
}
