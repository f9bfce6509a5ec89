package lax

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

const upperHex = "0123456789ABCDEF"

// quote percent-encodes every byte outside the unreserved set, leaving "/"
// alone so paths stay readable.
func quote(args ...any) (any, error) {
	if err := arity("quote", args, 1, 1); err != nil {
		return nil, err
	}
	s := toString(args[0])
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || c == '/' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&15])
	}
	return b.String(), nil
}

func isUnreserved(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

// unquote decodes percent escapes. Malformed input comes back unchanged.
func unquote(args ...any) (any, error) {
	if err := arity("unquote", args, 1, 1); err != nil {
		return nil, err
	}
	s := toString(args[0])
	out, err := url.PathUnescape(s)
	if err != nil {
		return s, nil
	}
	return out, nil
}

// jsonEncode serializes with ", " and ": " separators and sorted keys.
// Non-ASCII text is written as is. Unencodable values yield "".
func jsonEncode(args ...any) (any, error) {
	if err := arity("json_encode", args, 1, 1); err != nil {
		return nil, err
	}
	var b strings.Builder
	if !writeJSON(&b, args[0]) {
		return "", nil
	}
	return b.String(), nil
}

func writeJSON(b *strings.Builder, v any) bool {
	switch x := normalize(v).(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(x))
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case float64:
		switch s := formatFloat(x); s {
		case "nan":
			b.WriteString("NaN")
		case "inf":
			b.WriteString("Infinity")
		case "-inf":
			b.WriteString("-Infinity")
		default:
			b.WriteString(s)
		}
	case string:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(x); err != nil {
			return false
		}
		b.Write(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	case []any:
		b.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			if !writeJSON(b, item) {
				return false
			}
		}
		b.WriteByte(']')
	case map[string]any:
		return writeJSONObject(b, x)
	case *LoopState:
		return writeJSONObject(b, x.fields())
	default:
		return false
	}
	return true
}

func writeJSONObject(b *strings.Builder, m map[string]any) bool {
	b.WriteByte('{')
	for i, k := range sortedKeys(m) {
		if i > 0 {
			b.WriteString(", ")
		}
		writeJSON(b, k)
		b.WriteString(": ")
		if !writeJSON(b, m[k]) {
			return false
		}
	}
	b.WriteByte('}')
	return true
}

// jsonDecode parses JSON into template values. Integers stay integers.
// Invalid input yields nil.
func jsonDecode(args ...any) (any, error) {
	if err := arity("json_decode", args, 1, 1); err != nil {
		return nil, err
	}
	dec := json.NewDecoder(strings.NewReader(toString(args[0])))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, nil
	}
	if dec.More() {
		return nil, nil
	}
	return fromJSON(v), nil
}

func fromJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = fromJSON(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = fromJSON(x[k])
		}
		return x
	}
	return v
}
