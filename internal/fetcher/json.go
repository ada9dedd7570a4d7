package fetcher

import (
	"bytes"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
)

// ParseJSON validates data and returns its gjson root. Some upstreams wrap
// JSON in a JSONP callback; the wrapper is stripped first.
func ParseJSON(data []byte) (gjson.Result, error) {
	data = stripJSONP(data)
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, eris.New("json: invalid document")
	}
	return gjson.ParseBytes(data), nil
}

// stripJSONP turns `cb({...});` into `{...}`. Plain JSON is returned as is.
func stripJSONP(data []byte) []byte {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] == '{' || trimmed[0] == '[' {
		return trimmed
	}
	lp := bytes.IndexByte(trimmed, '(')
	rp := bytes.LastIndexByte(trimmed, ')')
	if lp < 0 || rp <= lp {
		return trimmed
	}
	return bytes.TrimSpace(trimmed[lp+1 : rp])
}
