package executor

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// lookupEncoding resolves a WHATWG encoding label such as "GBK" or
// "Shift_JIS". UTF-8 and the empty name resolve to nil, meaning passthrough.
func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEncoding, name)
	}
	return enc, nil
}

// encodeArgs re-encodes argv byte for byte into the named encoding
func encodeArgs(argv []string, name string) ([]string, error) {
	enc, err := lookupEncoding(name)
	if err != nil || enc == nil {
		return argv, err
	}
	encoder := enc.NewEncoder()
	out := make([]string, len(argv))
	for i, arg := range argv {
		s, err := encoder.String(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to encode argument %q as %s: %w", arg, name, err)
		}
		out[i] = s
	}
	return out, nil
}

func decode(data []byte, enc encoding.Encoding) (string, error) {
	if enc == nil {
		return string(data), nil
	}
	b, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode output: %w", err)
	}
	return string(b), nil
}
