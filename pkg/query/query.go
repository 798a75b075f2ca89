// Package query builds flat, order-preserving URL query strings.
package query

import (
	"net/url"
	"strings"
)

// Param is a single key/value pair. An empty Value means the parameter is
// undefined and is left out of the encoded query.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered parameter mapping. Keys keep the position of their
// first Set.
type Params []Param

// Set assigns value to key, replacing an existing entry in place or
// appending a new one.
func (p *Params) Set(key, value string) {
	for i := range *p {
		if (*p)[i].Key == key {
			(*p)[i].Value = value
			return
		}
	}
	*p = append(*p, Param{Key: key, Value: value})
}

// Get returns the value for key and whether it is defined.
func (p Params) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, kv.Value != ""
		}
	}
	return "", false
}

// Keys returns the keys of defined parameters in construction order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for _, kv := range p {
		if kv.Value != "" {
			keys = append(keys, kv.Key)
		}
	}
	return keys
}

// Map returns the defined parameters as a map, e.g. for diagnostics payloads.
func (p Params) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(p))
	for _, kv := range p {
		if kv.Value != "" {
			out[kv.Key] = kv.Value
		}
	}
	return out
}

// Encode serializes the defined parameters as key=value pairs joined by '&'.
func (p Params) Encode() string {
	var sb strings.Builder
	for _, kv := range p {
		if kv.Value == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(kv.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(kv.Value))
	}
	return sb.String()
}
