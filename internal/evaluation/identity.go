package evaluation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"
)

// IdentityLength is the number of hex characters kept from the digest.
const IdentityLength = 32

// Identity derives the job id from the request. The title is trimmed; the
// canonical form is compact ASCII-only JSON with sorted keys, hashed with sha256.
func Identity(req Request) string {
	payload := canonicalJSON(map[string]string{
		"job_title": strings.TrimSpace(req.JobTitle),
		"cv_id":     req.CVID,
		"report_id": req.ReportID,
	})

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:IdentityLength]
}

func canonicalJSON(fields map[string]string) []byte {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		writeASCIIString(&b, k)
		b.WriteByte(':')
		writeASCIIString(&b, fields[k])
	}
	b.WriteByte('}')

	return []byte(b.String())
}

// writeASCIIString quotes s, escaping everything outside printable ASCII as \uXXXX.
func writeASCIIString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			switch {
			case r < 0x20 || (r > 0x7f && r <= 0xffff):
				fmt.Fprintf(b, `\u%04x`, r)
			case r > 0xffff:
				hi, lo := utf16.EncodeRune(r)
				fmt.Fprintf(b, `\u%04x\u%04x`, hi, lo)
			default:
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}
