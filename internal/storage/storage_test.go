package storage

import "testing"

func TestKeyDerivation(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{
			name: "processed key",
			got:  ProcessedKey("processed/", "raw/health_batch.csv"),
			want: "processed/health_batch.csv",
		},
		{
			name: "rejected key",
			got:  RejectedKey("rejected/", "raw/health_batch.csv"),
			want: "rejected/health_batch_rejected.csv",
		},
		{
			name: "manifest key",
			got:  ManifestKey("processed/", "raw/health_batch.csv"),
			want: "processed/health_batch_manifest.json",
		},
		{
			name: "manifest key from processed key",
			got:  ManifestKeyForProcessed("processed/health_batch.csv"),
			want: "processed/health_batch_manifest.json",
		},
		{
			name: "analysis key",
			got:  AnalysisKey("analyzed/", "processed/health_batch.csv"),
			want: "analyzed/health_batch_analysis.json",
		},
		{
			name: "nested raw key flattens to base name",
			got:  ProcessedKey("processed/", "raw/2026/03/health_batch.csv"),
			want: "processed/health_batch.csv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
