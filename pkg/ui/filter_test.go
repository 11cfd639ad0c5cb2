package ui

import "testing"

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		match   []uint32
		reject  []uint32
		wantErr bool
	}{
		{name: "empty", in: "", match: []uint32{0, 0x7FF, 0x1FFFFFFF}},
		{name: "single", in: "7E8", match: []uint32{0x7E8}, reject: []uint32{0x7E0}},
		{name: "prefixed", in: "0x7e0", match: []uint32{0x7E0}, reject: []uint32{0x7E8}},
		{name: "list", in: "100, 200 300", match: []uint32{0x100, 0x200, 0x300}, reject: []uint32{0x101}},
		{name: "range", in: "100-1FF", match: []uint32{0x100, 0x180, 0x1FF}, reject: []uint32{0xFF, 0x200}},
		{name: "extended", in: "18DAF110", match: []uint32{0x18DAF110}},
		{name: "reversed range", in: "200-100", wantErr: true},
		{name: "not hex", in: "7G8", wantErr: true},
		{name: "too wide", in: "20000000", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFilter(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFilter(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			for _, id := range tt.match {
				if !f.Match(id) {
					t.Errorf("%s should match 0x%X", f, id)
				}
			}
			for _, id := range tt.reject {
				if f.Match(id) {
					t.Errorf("%s should not match 0x%X", f, id)
				}
			}
		})
	}
}

func TestFilterString(t *testing.T) {
	var f Filter
	if f.String() != "all" {
		t.Errorf("zero filter = %q", f.String())
	}
	f, _ = ParseFilter(" 7E8 ")
	if f.String() != "7E8" {
		t.Errorf("filter = %q", f.String())
	}
}
