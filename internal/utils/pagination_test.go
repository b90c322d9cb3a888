package utils

import "testing"

func TestParsePage(t *testing.T) {
	cases := []struct {
		name         string
		page, limit  string
		wantP, wantL int
	}{
		{"missing", "", "", 1, 10},
		{"explicit", "3", "25", 3, 25},
		{"leading zeros", "007", "010", 7, 10},
		{"zero", "0", "0", 1, 1},
		{"negative page, huge limit", "-2", "500", 1, 100},
		{"garbage", "two", "ten", 1, 10},
		{"padded", " 2", "5 ", 1, 10},
		{"overflow", "99999999999999999999", "", 1, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, l := ParsePage(tc.page, tc.limit, 10, 100)
			if p != tc.wantP || l != tc.wantL {
				t.Fatalf("ParsePage(%q, %q) = %d, %d; want %d, %d", tc.page, tc.limit, p, l, tc.wantP, tc.wantL)
			}
		})
	}
}

func TestPageQuery(t *testing.T) {
	q := PageQuery(4, 20)
	if q.Encode() != "limit=20&page=4" {
		t.Fatalf("encoded = %q", q.Encode())
	}
}
