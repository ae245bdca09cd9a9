package report

import "testing"

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{"s3://my-bucket/path/to/report.txt", "my-bucket", "path/to/report.txt", false},
		{"s3://my-bucket/key", "my-bucket", "key", false},
		{"not-an-s3-uri", "", "", true},
		{"s3://bucket-only", "", "", true},
		{"s3:///missing-bucket", "", "", true},
		{"s3://bucket/", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, key, err := ParseS3URI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseS3URI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if bucket != tt.wantBucket || key != tt.wantKey {
				t.Errorf("ParseS3URI(%q) = (%q, %q), want (%q, %q)", tt.uri, bucket, key, tt.wantBucket, tt.wantKey)
			}
		})
	}
}
