// Package models holds the data model shared by the scan orchestrator:
// jobs, libraries, and media records.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobKind identifies the unit of work a job performs.
type JobKind string

const (
	KindFolderScan     JobKind = "folder_scan"
	KindMediaAnalyze   JobKind = "media_analyze"
	KindMetadataEnrich JobKind = "metadata_enrich"
	KindIndexUpsert    JobKind = "index_upsert"
	KindImageFetch     JobKind = "image_fetch"
)

// Short returns the compact string used in dedupe keys and asynq task types.
func (k JobKind) Short() string {
	switch k {
	case KindFolderScan:
		return "scan"
	case KindMediaAnalyze:
		return "analyze"
	case KindMetadataEnrich:
		return "metadata"
	case KindIndexUpsert:
		return "index"
	case KindImageFetch:
		return "image"
	default:
		return string(k)
	}
}

// JobState is the lifecycle state of a job record.
type JobState string

const (
	StateReady     JobState = "ready"
	StateDeferred  JobState = "deferred"
	StateLeased    JobState = "leased"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateDeadLetter JobState = "dead_letter"
)

// JobPriority ranks admission and scheduling weight. Lower numeric value wins.
type JobPriority int

const (
	P0 JobPriority = 0
	P1 JobPriority = 1
	P2 JobPriority = 2
	P3 JobPriority = 3
)

// Weight returns the weighted round-robin share for this priority bucket.
func (p JobPriority) Weight() int {
	switch p {
	case P0:
		return 8
	case P1:
		return 4
	case P2:
		return 2
	case P3:
		return 1
	default:
		return 1
	}
}

// Elevate returns the higher (numerically smaller) of two priorities.
func (p JobPriority) Elevate(other JobPriority) JobPriority {
	if other < p {
		return other
	}
	return p
}

func (p JobPriority) String() string {
	switch p {
	case P0:
		return "p0"
	case P1:
		return "p1"
	case P2:
		return "p2"
	case P3:
		return "p3"
	default:
		return fmt.Sprintf("p%d", int(p))
	}
}

// ScanReason records why a FolderScan/MediaAnalyze job was enqueued, carried
// over from the ferrex source for diagnostics and watcher-overflow tagging.
type ScanReason string

const (
	ReasonHotChange        ScanReason = "hot_change"
	ReasonUserRequested    ScanReason = "user_requested"
	ReasonBulkSeed         ScanReason = "bulk_seed"
	ReasonMaintenanceSweep ScanReason = "maintenance_sweep"
	ReasonWatcherOverflow  ScanReason = "watcher_overflow"
)

// MediaFingerprint is the stable file identity used to build dedupe keys and
// detect duplicate/moved files. device_id/inode are best-effort (absent on
// filesystems that don't expose them); size+mtime+weak_hash back-fill.
type MediaFingerprint struct {
	DeviceID *uint64
	Inode    *uint64
	Size     int64
	ModTime  time.Time
	WeakHash *uint64
}

// HashRepr produces the canonical string representation used inside dedupe
// keys, matching ferrex's MediaFingerprint::hash_repr.
func (f MediaFingerprint) HashRepr() string {
	dev := uint64(0)
	if f.DeviceID != nil {
		dev = *f.DeviceID
	}
	ino := uint64(0)
	if f.Inode != nil {
		ino = *f.Inode
	}
	wh := uint64(0)
	if f.WeakHash != nil {
		wh = *f.WeakHash
	}
	return fmt.Sprintf("%d:%d:%d:%d:%d", dev, ino, f.Size, f.ModTime.UnixNano(), wh)
}

// ImageFetchSource distinguishes a remote provider fetch from a locally
// generated thumbnail. Only one of the two field sets is meaningful,
// selected by Kind.
type ImageFetchSourceKind string

const (
	ImageSourceTMDB              ImageFetchSourceKind = "tmdb"
	ImageSourceEpisodeThumbnail  ImageFetchSourceKind = "episode_thumbnail"
)

type ImageFetchSource struct {
	Kind ImageFetchSourceKind

	// ImageSourceTMDB
	TMDBPath string

	// ImageSourceEpisodeThumbnail
	MediaFileID uuid.UUID
	ImageKey    string
	SourcePath  string
	DurationSec int
}

// ImageType and its Priority method drive the priority mapping used by
// JobPayload priority derivation (Poster=P0, Backdrop=P1, Profile=P2).
type ImageType string

const (
	ImagePoster   ImageType = "poster"
	ImageBackdrop ImageType = "backdrop"
	ImageProfile  ImageType = "profile"
)

func (t ImageType) Priority() JobPriority {
	switch t {
	case ImagePoster:
		return P0
	case ImageBackdrop:
		return P1
	case ImageProfile:
		return P2
	default:
		return P2
	}
}

// JobPayload is a tagged union over the five job kinds. Only the field set
// matching Kind is populated; this mirrors the sum type in ferrex's job.rs
// without Go generics ceremony.
type JobPayload struct {
	Kind JobKind

	// KindFolderScan
	FolderScan *FolderScanPayload

	// KindMediaAnalyze
	MediaAnalyze *MediaAnalyzePayload

	// KindMetadataEnrich
	MetadataEnrich *MetadataEnrichPayload

	// KindIndexUpsert
	IndexUpsert *IndexUpsertPayload

	// KindImageFetch
	ImageFetch *ImageFetchPayload
}

type FolderScanPayload struct {
	LibraryID      uuid.UUID
	FolderPath     string
	FolderPathNorm string
	Reason         ScanReason
	Incremental    bool
}

type MediaAnalyzePayload struct {
	LibraryID    uuid.UUID
	FilePath     string
	Fingerprint  MediaFingerprint
	Reason       ScanReason
}

// MetadataEnrichPayload carries the parsed/technical state MediaAnalyze
// produced forward to the provider-lookup stage, since the catalog row
// itself isn't written until IndexUpsert runs.
type MetadataEnrichPayload struct {
	LibraryID   uuid.UUID
	MediaID     uuid.UUID
	FilePath    string
	Fingerprint MediaFingerprint
	Parsed      ParsedInfo
	Technical   *TechnicalMetadata
	CandidateID string
	Query       string
	Year        *int
}

// IndexUpsertPayload carries everything MetadataEnrich gathered (parsed
// info, technical metadata, and the winning external match if any) so the
// IndexUpsert worker can perform the single idempotent catalog write.
type IndexUpsertPayload struct {
	LibraryID   uuid.UUID
	MediaID     uuid.UUID
	FilePath    string
	Fingerprint MediaFingerprint
	Parsed      ParsedInfo
	Technical   *TechnicalMetadata
	External    *ExternalMetadata
}

type ImageFetchPayload struct {
	LibraryID   uuid.UUID
	MediaID     uuid.UUID
	MediaType   string
	ImageType   ImageType
	OrderIndex  int
	Source      ImageFetchSource
}

// LibraryID returns the owning library for payloads that carry one.
func (p JobPayload) LibraryID() (uuid.UUID, bool) {
	switch p.Kind {
	case KindFolderScan:
		return p.FolderScan.LibraryID, true
	case KindMediaAnalyze:
		return p.MediaAnalyze.LibraryID, true
	case KindMetadataEnrich:
		return p.MetadataEnrich.LibraryID, true
	case KindIndexUpsert:
		return p.IndexUpsert.LibraryID, true
	case KindImageFetch:
		return p.ImageFetch.LibraryID, true
	}
	return uuid.UUID{}, false
}

// DedupeKey returns the canonical identity string used for admission-time
// coalescing. Formats mirror ferrex's DedupeKey::Display exactly.
func (p JobPayload) DedupeKey() string {
	switch p.Kind {
	case KindFolderScan:
		return fmt.Sprintf("scan:%s:%s", p.FolderScan.LibraryID, p.FolderScan.FolderPathNorm)
	case KindMediaAnalyze:
		return fmt.Sprintf("analyze:%s", p.MediaAnalyze.Fingerprint.HashRepr())
	case KindMetadataEnrich:
		return fmt.Sprintf("metadata:%s", p.MetadataEnrich.CandidateID)
	case KindIndexUpsert:
		return fmt.Sprintf("index:%s:%s", p.IndexUpsert.LibraryID, normalizePath(p.IndexUpsert.FilePath))
	case KindImageFetch:
		f := p.ImageFetch
		variant := "remote"
		if f.Source.Kind == ImageSourceEpisodeThumbnail {
			variant = "local"
		}
		return fmt.Sprintf("image:%s:%s:%s:%d:%s", f.MediaType, f.MediaID, f.ImageType, f.OrderIndex, variant)
	}
	return ""
}

// DefaultPriority returns the priority a payload is admitted at when a
// caller doesn't set EnqueueRequest.Priority explicitly — e.g. an
// externally-triggered request rather than one emitted mid-pipeline by a
// worker. The internal pipeline (folderscan.go/mediaanalyze.go/
// metadataenrich.go) always sets Priority explicitly at each emission site
// per the fixed hand-off priorities, so this is a fallback, not the source
// of truth for chained jobs.
func (p JobPayload) DefaultPriority() JobPriority {
	switch p.Kind {
	case KindFolderScan:
		return P2
	case KindMediaAnalyze:
		return P2
	case KindMetadataEnrich:
		return P2
	case KindIndexUpsert:
		return P1
	case KindImageFetch:
		return p.ImageFetch.ImageType.Priority()
	}
	return P3
}

func normalizePath(p string) string {
	return p
}

// Job is the durable record backing the admission/lease state machine (C2/C3).
type Job struct {
	ID             uuid.UUID
	Kind           JobKind
	Payload        JobPayload
	DedupeKey      string
	State          JobState
	Priority       JobPriority
	Attempts       int
	MaxAttempts    int
	AvailableAt    time.Time
	LeaseOwner     string
	LeaseExpiresAt *time.Time
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EnqueueRequest is the input to the admission operation (C2 admit).
type EnqueueRequest struct {
	Payload  JobPayload
	Priority JobPriority
	// AvailableAt allows deferring a job into the future (e.g. backoff).
	AvailableAt time.Time
}

func (r EnqueueRequest) DedupeKey() string {
	return r.Payload.DedupeKey()
}

// JobHandle is returned from admission: either a freshly accepted job or an
// existing one that absorbed the new request via priority/availability merge.
type JobHandle struct {
	Job    Job
	Merged bool
}

func Accepted(j Job) JobHandle {
	return JobHandle{Job: j, Merged: false}
}

func MergedInto(j Job) JobHandle {
	return JobHandle{Job: j, Merged: true}
}
