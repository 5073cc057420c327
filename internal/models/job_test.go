package models

import (
	"testing"

	"github.com/google/uuid"
)

func TestDedupeKeyDistinguishesImageFetchVariants(t *testing.T) {
	mediaID := uuid.Must(uuid.NewV7())
	remote := JobPayload{
		Kind: KindImageFetch,
		ImageFetch: &ImageFetchPayload{
			MediaID:    mediaID,
			MediaType:  "movie",
			ImageType:  ImagePoster,
			OrderIndex: 0,
			Source:     ImageFetchSource{Kind: ImageSourceTMDB},
		},
	}
	local := remote
	localSource := remote.ImageFetch.Source
	localSource.Kind = ImageSourceEpisodeThumbnail
	localPayload := *remote.ImageFetch
	localPayload.Source = localSource
	local.ImageFetch = &localPayload

	if remote.DedupeKey() == local.DedupeKey() {
		t.Errorf("expected distinct dedupe keys for remote vs local image sources, both got %q", remote.DedupeKey())
	}
}

func TestDefaultPriorityMatchesPipelineHandoffs(t *testing.T) {
	cases := []struct {
		kind JobKind
		want JobPriority
	}{
		{KindFolderScan, P2},
		{KindMediaAnalyze, P2},
		{KindMetadataEnrich, P2},
		{KindIndexUpsert, P1},
	}
	for _, c := range cases {
		p := JobPayload{Kind: c.kind}
		if got := p.DefaultPriority(); got != c.want {
			t.Errorf("DefaultPriority(%s) = %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestImageTypePriorityOrdersPosterAboveBackdropAboveProfile(t *testing.T) {
	if ImagePoster.Priority() >= ImageBackdrop.Priority() {
		t.Error("expected poster to outrank backdrop")
	}
	if ImageBackdrop.Priority() >= ImageProfile.Priority() {
		t.Error("expected backdrop to outrank profile")
	}
}

func TestMediaFingerprintHashReprIsStableAcrossEqualValues(t *testing.T) {
	dev := uint64(42)
	f1 := MediaFingerprint{DeviceID: &dev, Size: 100}
	f2 := MediaFingerprint{DeviceID: &dev, Size: 100}
	if f1.HashRepr() != f2.HashRepr() {
		t.Errorf("expected equal fingerprints to hash identically: %q vs %q", f1.HashRepr(), f2.HashRepr())
	}
}
