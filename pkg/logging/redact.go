package logging

import "regexp"

// MaskKey keeps the first four characters of key and hides the rest.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}

// Redactor masks string values of the named JSON fields.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor returns a Redactor for the given JSON field names.
func NewRedactor(fields ...string) *Redactor {
	r := &Redactor{}
	for _, f := range fields {
		if f == "" {
			continue
		}
		r.patterns = append(r.patterns, regexp.MustCompile(`("`+regexp.QuoteMeta(f)+`"\s*:\s*")([^"\\]*(?:\\.[^"\\]*)*)(")`))
	}
	return r
}

// Redact returns data with every matching field value masked.
func (r *Redactor) Redact(data []byte) []byte {
	if r == nil {
		return data
	}
	out := data
	for _, re := range r.patterns {
		out = re.ReplaceAllFunc(out, func(m []byte) []byte {
			parts := re.FindSubmatch(m)
			return []byte(string(parts[1]) + MaskKey(string(parts[2])) + string(parts[3]))
		})
	}
	return out
}
