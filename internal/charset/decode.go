// Package charset decodes legacy character sets found in email bodies
// into UTF-8.
package charset

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// Reader wraps an email body part with charset decoding. The signature
// matches what MIME parsers expect from a charset reader hook. Unknown
// charsets never fail the parse: the content passes through as-is, and
// invalid UTF-8 falls back to Latin-1.
func Reader(name string, input io.Reader) (io.Reader, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "us-ascii"
	}

	switch name {
	case "utf-8", "utf8", "ascii", "us-ascii":
		return validatedUTF8(input)
	case "latin1", "latin-1", "iso-8859-1":
		return transform.NewReader(input, charmap.ISO8859_1.NewDecoder()), nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		// Unknown charset: pass through rather than fail the message.
		return input, nil
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// validatedUTF8 reads the content and re-decodes it as Latin-1 when it is
// not valid UTF-8, so declared-ASCII bodies with stray high bytes still
// come out as usable text.
func validatedUTF8(input io.Reader) (io.Reader, error) {
	content, err := io.ReadAll(input)
	if err != nil {
		return nil, err
	}
	if utf8.Valid(content) {
		return bytes.NewReader(content), nil
	}
	decoded, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), content)
	if err != nil {
		return bytes.NewReader(content), nil
	}
	return bytes.NewReader(decoded), nil
}
