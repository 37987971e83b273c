package contract

import "net/url"

// FromRawQuery flattens a raw query string into name -> first value.
// Later duplicates are dropped silently. Percent-decoding is the only
// transformation applied; pairs that fail to decode are skipped.
func FromRawQuery(raw string) map[string]string {
	values, _ := url.ParseQuery(raw)
	params := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	return params
}

// FromMap copies a pre-split key/value map, the shape delivered by older
// gateway versions. Single value per key is assumed upstream.
func FromMap(m map[string]string) map[string]string {
	params := make(map[string]string, len(m))
	for k, v := range m {
		params[k] = v
	}
	return params
}
