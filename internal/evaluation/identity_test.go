package evaluation

import "testing"

func TestIdentityMatchesCanonicalDigest(t *testing.T) {
	tests := []struct {
		name   string
		req    Request
		expect string
	}{
		{
			name: "ascii title is trimmed",
			req: Request{
				JobTitle: "  Backend Engineer ",
				CVID:     "0123456789abcdef0123456789abcdef",
				ReportID: "fedcba9876543210fedcba9876543210",
			},
			expect: "ed710aa9d331ddbbe3e586ac378c76da",
		},
		{
			name:   "non ascii and astral characters are escaped",
			req:    Request{JobTitle: "Ingénieur <Go> & “AI” 🚀", CVID: "cv1", ReportID: "rep1"},
			expect: "ab9d26d44735b543b44847c54ecb2a03",
		},
		{
			name:   "control characters and quotes",
			req:    Request{JobTitle: "tab\there \"q\" \\ \x01", CVID: "a", ReportID: "b"},
			expect: "6480c72d1ebec00b1e202177353561e2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Identity(tt.req)
			if got != tt.expect {
				t.Fatalf("expected %s, got %s", tt.expect, got)
			}
			if len(got) != IdentityLength {
				t.Fatalf("expected %d characters, got %d", IdentityLength, len(got))
			}
		})
	}
}

func TestIdentityDistinguishesReferences(t *testing.T) {
	base := Request{JobTitle: "Backend Engineer", CVID: "cv", ReportID: "report"}

	if Identity(base) != Identity(Request{JobTitle: "\tBackend Engineer\n", CVID: "cv", ReportID: "report"}) {
		t.Fatalf("surrounding whitespace in the title must not change the identity")
	}

	swapped := Request{JobTitle: "Backend Engineer", CVID: "report", ReportID: "cv"}
	if Identity(base) == Identity(swapped) {
		t.Fatalf("swapping documents must change the identity")
	}

	if Identity(base) == Identity(Request{JobTitle: "backend engineer", CVID: "cv", ReportID: "report"}) {
		t.Fatalf("title case is significant")
	}
}
