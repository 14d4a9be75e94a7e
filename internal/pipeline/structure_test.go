package pipeline

import "testing"

func TestParseStructure(t *testing.T) {
	tests := []struct {
		in      string
		name    string
		fields  map[string]string
		wantErr bool
	}{
		{"controls,video_bitrate=1000000", "controls", map[string]string{"video_bitrate": "1000000"}, false},
		{"controls,video_bitrate=(int)500, h264_i_frame_qp=20;", "controls", map[string]string{"video_bitrate": "500", "h264_i_frame_qp": "20"}, false},
		{"controls", "controls", map[string]string{}, false},
		{"", "", nil, true},
		{"a=b", "", nil, true},
		{"controls,novalue", "", nil, true},
		{"controls,=5", "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			st, err := ParseStructure(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStructure(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if st.Name() != tt.name {
				t.Errorf("Name() = %q, want %q", st.Name(), tt.name)
			}
			if st.Len() != len(tt.fields) {
				t.Errorf("Len() = %d, want %d", st.Len(), len(tt.fields))
			}
			for k, want := range tt.fields {
				if got, ok := st.Get(k); !ok || got != want {
					t.Errorf("Get(%q) = %q,%v, want %q", k, got, ok, want)
				}
			}
		})
	}
}

func TestStructureMergePreservesOtherFields(t *testing.T) {
	st, err := ParseStructure("controls,h264_profile=4,video_bitrate=1000")
	if err != nil {
		t.Fatal(err)
	}

	update := NewStructure("controls")
	update.SetInt("video_bitrate", 2000)
	update.SetInt("h264_i_frame_qp", 30)
	st.Merge(update)

	want := "controls,h264_profile=4,video_bitrate=2000,h264_i_frame_qp=30"
	if got := st.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestStructureCloneIsIndependent(t *testing.T) {
	st := NewStructure("controls")
	st.SetInt("video_bitrate", 1)

	c := st.Clone()
	c.SetInt("video_bitrate", 2)

	if v, _ := st.GetInt("video_bitrate"); v != 1 {
		t.Errorf("original changed to %d", v)
	}
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		in   any
		want int
		ok   bool
	}{
		{5, 5, true},
		{int64(7), 7, true},
		{" 12 ", 12, true},
		{"abc", 0, false},
		{true, 0, false},
	}

	for _, tt := range tests {
		got, ok := AsInt(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("AsInt(%v) = %d,%v, want %d,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAsStructure(t *testing.T) {
	if st, ok := AsStructure("controls,a=1"); !ok || st.Name() != "controls" {
		t.Errorf("AsStructure(string) = %v,%v", st, ok)
	}
	if _, ok := AsStructure(5); ok {
		t.Error("AsStructure(int) should fail")
	}
	var nilStruct *Structure
	if _, ok := AsStructure(nilStruct); ok {
		t.Error("AsStructure(nil) should fail")
	}
}
