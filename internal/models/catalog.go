package models

import (
	"time"

	"github.com/google/uuid"
)

// LibraryKind is restricted to the two media domains the orchestrator
// understands; spec.md §3 defines the Library entity's kind as exactly
// Movies or Series.
type LibraryKind string

const (
	LibraryMovies LibraryKind = "movies"
	LibrarySeries LibraryKind = "series"
)

func (k LibraryKind) Valid() bool {
	return k == LibraryMovies || k == LibrarySeries
}

// Library is the configuration container a scan operates against.
type Library struct {
	ID           uuid.UUID
	Name         string
	Kind         LibraryKind
	Roots        []string
	ScanInterval time.Duration
	Enabled      bool
	LastScanAt   *time.Time
	NextScanAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProcessingStatus tracks whether a discovered file still needs
// metadata/tmdb/image work. MediaRepository's unprocessed/failed lookups
// read it; FolderScan does not consult it and always walks the full folder.
type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingComplete   ProcessingStatus = "complete"
	ProcessingFailed     ProcessingStatus = "failed"
)

// ParsedInfo is the output of filename/path parsing (title/year/season/
// episode extraction), grounded in the teacher's scanner/parser.go.
type ParsedInfo struct {
	Title      string
	Year       *int
	Season     *int
	Episode    *int
	Edition    string
	Resolution string
	Source     string
}

// TechnicalMetadata is probed from the file itself (ffprobe).
type TechnicalMetadata struct {
	DurationSeconds float64
	VideoCodec      string
	AudioCodec      string
	Width           int
	Height          int
	BitrateKbps     int
}

// ExternalMetadata is the result of a successful MetadataEnrich match.
type ExternalMetadata struct {
	Provider      string
	CandidateID   string
	Title         string
	OriginalTitle string
	Overview      string
	ReleaseDate   string
	Year          *int
	PosterPath    string
	BackdropPath  string
	VoteAverage   float64
	VoteCount     int
	Popularity    float64
}

// MediaRecord is the catalog entry produced by a folder scan once analyzed,
// optionally enriched and indexed.
type MediaRecord struct {
	ID                 uuid.UUID
	LibraryID          uuid.UUID
	FilePath           string
	FilePathNorm       string
	Fingerprint        MediaFingerprint
	Parsed             ParsedInfo
	Technical          *TechnicalMetadata
	External           *ExternalMetadata
	SeasonNumber       *int
	EpisodeNumber      *int
	ParentID           *uuid.UUID
	Status             ProcessingStatus
	RetryCount         int
	NextRetryAt        *time.Time
	DateAdded          time.Time
	DateModified       time.Time
}

// SegmentKey identifies one transcoded chunk of a media file, keyed by
// (MediaID/JobID, SegmentNumber) per the segment cache (C10).
type SegmentKey struct {
	JobID         uuid.UUID
	SegmentNumber int
}

type SegmentStatus string

const (
	SegmentPending    SegmentStatus = "pending"
	SegmentGenerating SegmentStatus = "generating"
	SegmentCompleted  SegmentStatus = "completed"
	SegmentFailed     SegmentStatus = "failed"
)

// HardwareEncoderKind enumerates the catalog of hardware encoders the
// selector (C11) can choose between, in descending preference order.
type HardwareEncoderKind string

const (
	EncoderNVENC         HardwareEncoderKind = "nvenc"
	EncoderQSV           HardwareEncoderKind = "qsv"
	EncoderVAAPI         HardwareEncoderKind = "vaapi"
	EncoderVideoToolbox  HardwareEncoderKind = "videotoolbox"
	EncoderAMF           HardwareEncoderKind = "amf"
	EncoderSoftware      HardwareEncoderKind = "software"
)

// PreferenceOrder is the fixed fallback chain used when selecting a
// hardware encoder, matching ferrex's hardware.rs detection order.
var PreferenceOrder = []HardwareEncoderKind{
	EncoderNVENC, EncoderQSV, EncoderVAAPI, EncoderVideoToolbox, EncoderAMF, EncoderSoftware,
}

// HWAccel returns the ffmpeg -hwaccel value for this encoder kind.
func (k HardwareEncoderKind) HWAccel() string {
	switch k {
	case EncoderVAAPI:
		return "vaapi"
	case EncoderNVENC:
		return "cuda"
	case EncoderQSV:
		return "qsv"
	case EncoderVideoToolbox:
		return "videotoolbox"
	case EncoderAMF:
		return "d3d11va"
	default:
		return ""
	}
}

type HardwareEncoder struct {
	Kind             HardwareEncoderKind
	Name             string
	SupportedCodecs  []string
	MaxStreams       int
	Available        bool
}
