package gcsuploader

import "testing"

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri            string
		bucket, object string
		wantErr        bool
	}{
		{"gs://bkt/receipts/b1/a.jpg", "bkt", "receipts/b1/a.jpg", false},
		{"gs://bkt/a.jpg", "bkt", "a.jpg", false},
		{"gs://bkt", "", "", true},
		{"gs://bkt/", "", "", true},
		{"https://bkt/a.jpg", "", "", true},
	}
	for _, tt := range tests {
		b, o, err := ParseGCSURI(tt.uri)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseGCSURI(%q) err = %v, wantErr %v", tt.uri, err, tt.wantErr)
			continue
		}
		if b != tt.bucket || o != tt.object {
			t.Errorf("ParseGCSURI(%q) = %q, %q; want %q, %q", tt.uri, b, o, tt.bucket, tt.object)
		}
	}
}

func TestExtractFilenameFromGCSURI(t *testing.T) {
	tests := map[string]string{
		"gs://bucket/folder/file.jpg": "file.jpg",
		"gs://bucket/file.png":        "file.png",
		"gs://bucket":                 "bucket",
	}
	for in, want := range tests {
		if got := ExtractFilenameFromGCSURI(in); got != want {
			t.Errorf("ExtractFilenameFromGCSURI(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestObjectName(t *testing.T) {
	tests := []struct {
		batch, file, want string
	}{
		{"b1", "IMG_1.jpg", "receipts/b1/IMG_1.jpg"},
		{"b1", "../../etc/passwd", "receipts/b1/.._.._etc_passwd"},
		{"b1", "", "receipts/b1/image"},
		{"b1", "..", "receipts/b1/image"},
	}
	for _, tt := range tests {
		if got := ObjectName(tt.batch, tt.file); got != tt.want {
			t.Errorf("ObjectName(%q, %q) = %q, want %q", tt.batch, tt.file, got, tt.want)
		}
	}
}
