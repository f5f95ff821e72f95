package archive

import "testing"

func TestObjectName(t *testing.T) {
	tests := []struct {
		name      string
		prefix    string
		messageID string
		filename  string
		want      string
	}{
		{"plain", "attachments", "18f2a", "FACTURA.pdf", "attachments/18f2a/FACTURA.pdf"},
		{"spaces and accents", "attachments/", "18f2a", "Cotización Junio.pdf", "attachments/18f2a/Cotización_Junio.pdf"},
		{"path traversal", "a", "m", "../../etc/passwd", "a/m/passwd"},
		{"windows path", "a", "m", `C:\docs\carta.pdf`, "a/m/carta.pdf"},
		{"empty filename", "a", "m", "", "a/m/attachment.pdf"},
		{"no prefix", "", "m", "x.pdf", "m/x.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ObjectName(tt.prefix, tt.messageID, tt.filename); got != tt.want {
				t.Errorf("ObjectName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://bucket/path/to/file.pdf", "bucket", "path/to/file.pdf", false},
		{"gs://bucket/file.pdf", "bucket", "file.pdf", false},
		{"gs://bucket", "", "", true},
		{"gs://bucket/", "", "", true},
		{"/local/file.pdf", "", "", true},
	}
	for _, tt := range tests {
		bucket, object, err := ParseURI(tt.uri)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			continue
		}
		if bucket != tt.wantBucket || object != tt.wantObject {
			t.Errorf("ParseURI(%q) = %q, %q", tt.uri, bucket, object)
		}
	}
}

func TestFilenameFromURI(t *testing.T) {
	tests := map[string]string{
		"gs://bucket/folder/file.pdf": "file.pdf",
		"gs://bucket/file.pdf":        "file.pdf",
		"gs://bucket":                 "bucket",
	}
	for in, want := range tests {
		if got := FilenameFromURI(in); got != want {
			t.Errorf("FilenameFromURI(%q) = %q, want %q", in, got, want)
		}
	}
	if !IsURI("gs://b/o") || IsURI("b/o") {
		t.Error("IsURI() misclassified input")
	}
}
