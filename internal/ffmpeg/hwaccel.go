package ffmpeg

import (
	"log"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/brightloom/reelvault/internal/models"
)

// encoderProbe pairs a catalog entry's ffmpeg encoder name with the CLI
// codec family it maps to, used only during detection.
type encoderProbe struct {
	kind        models.HardwareEncoderKind
	ffmpegName  string
	codecs      []string
	platform    string // "" = any, else runtime.GOOS value required
}

// candidateEncoders lists every hardware encoder the selector knows how to
// probe, in the preference order spec.md/hardware.rs define: NVENC, QSV,
// VAAPI, VideoToolbox, AMF.
var candidateEncoders = []encoderProbe{
	{models.EncoderNVENC, "h264_nvenc", []string{"h264", "hevc"}, ""},
	{models.EncoderQSV, "h264_qsv", []string{"h264", "hevc"}, ""},
	{models.EncoderVAAPI, "h264_vaapi", []string{"h264", "hevc"}, ""},
	{models.EncoderVideoToolbox, "h264_videotoolbox", []string{"h264", "hevc"}, "darwin"},
	{models.EncoderAMF, "h264_amf", []string{"h264", "hevc"}, "windows"},
}

// defaultMaxStreams is the per-encoder concurrent-session bound used when a
// more precise device query isn't available; open question in spec.md §9
// resolves sessions as NOT serialized but bounded per-encoder.
const defaultMaxStreams = 3

// Selector probes the hardware encoder catalog once and hands out
// per-encoder semaphore slots so the segment generator can run multiple
// concurrent hardware sessions without oversubscribing a single GPU.
type Selector struct {
	ffmpegPath string

	mu       sync.Mutex
	probed   bool
	catalog  []models.HardwareEncoder
	sems     map[models.HardwareEncoderKind]chan struct{}
}

func NewSelector(ffmpegPath string) *Selector {
	return &Selector{ffmpegPath: ffmpegPath, sems: make(map[models.HardwareEncoderKind]chan struct{})}
}

// Catalog returns the detected encoder list (probing once, lazily).
func (s *Selector) Catalog() []models.HardwareEncoder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.probed {
		s.catalog = s.detect()
		for _, e := range s.catalog {
			if e.Available {
				s.sems[e.Kind] = make(chan struct{}, e.MaxStreams)
			}
		}
		s.probed = true
	}
	return s.catalog
}

// Select returns the first available encoder in preference order that
// supports the requested codec, or the software fallback if none qualify.
func (s *Selector) Select(codec string) models.HardwareEncoder {
	catalog := s.Catalog()
	byKind := make(map[models.HardwareEncoderKind]models.HardwareEncoder, len(catalog))
	for _, e := range catalog {
		byKind[e.Kind] = e
	}
	for _, kind := range models.PreferenceOrder {
		e, ok := byKind[kind]
		if !ok || !e.Available {
			continue
		}
		if kind == models.EncoderSoftware {
			return e
		}
		if supportsCodec(e, codec) {
			return e
		}
	}
	return models.HardwareEncoder{Kind: models.EncoderSoftware, Name: "libx264", Available: true, MaxStreams: 1 << 20}
}

func supportsCodec(e models.HardwareEncoder, codec string) bool {
	for _, c := range e.SupportedCodecs {
		if c == codec {
			return true
		}
	}
	return false
}

// AcquireSession blocks until a concurrent-session slot opens for the given
// encoder kind, returning a release func. Software encoding is unbounded.
func (s *Selector) AcquireSession(kind models.HardwareEncoderKind) (release func()) {
	s.mu.Lock()
	sem, ok := s.sems[kind]
	s.mu.Unlock()
	if !ok {
		return func() {}
	}
	sem <- struct{}{}
	return func() { <-sem }
}

func (s *Selector) detect() []models.HardwareEncoder {
	out := make([]models.HardwareEncoder, 0, len(candidateEncoders)+1)

	cmd := exec.Command(s.ffmpegPath, "-hide_banner", "-encoders")
	output, _ := cmd.Output()
	encoderList := string(output)

	for _, probe := range candidateEncoders {
		if probe.platform != "" && probe.platform != runtime.GOOS {
			continue
		}
		available := strings.Contains(encoderList, probe.ffmpegName) && s.testEncoder(probe.ffmpegName)
		if available {
			log.Printf("[hwaccel] detected encoder: %s", probe.ffmpegName)
		}
		out = append(out, models.HardwareEncoder{
			Kind:            probe.kind,
			Name:            probe.ffmpegName,
			SupportedCodecs: probe.codecs,
			MaxStreams:      defaultMaxStreams,
			Available:       available,
		})
	}

	out = append(out, models.HardwareEncoder{
		Kind:            models.EncoderSoftware,
		Name:            "libx264",
		SupportedCodecs: []string{"h264"},
		MaxStreams:      1 << 20,
		Available:       true,
	})
	return out
}

// testEncoder verifies a hardware encoder by actually encoding a single
// synthetic test frame rather than trusting ffmpeg's compiled-in encoder
// list, since a compiled encoder can still fail at runtime if the device
// node isn't present.
func (s *Selector) testEncoder(encoder string) bool {
	args := []string{"-hide_banner", "-v", "error"}

	switch {
	case strings.Contains(encoder, "qsv"):
		args = append(args, "-init_hw_device", "qsv=hw:/dev/dri/renderD128")
	case strings.Contains(encoder, "vaapi"):
		args = append(args, "-init_hw_device", "vaapi=/dev/dri/renderD128")
	}

	args = append(args, "-f", "lavfi", "-i", "color=black:s=64x64:d=0.1:r=1", "-frames:v", "1", "-an")

	if strings.Contains(encoder, "vaapi") {
		args = append(args, "-vf", "format=nv12,hwupload")
	}

	args = append(args, "-c:v", encoder, "-f", "null", "-")

	cmd := exec.Command(s.ffmpegPath, args...)
	if err := cmd.Run(); err != nil {
		log.Printf("[hwaccel] encoder test failed for %s: %v", encoder, err)
		return false
	}
	return true
}

// HWAccelArgs returns the -hwaccel pre-input args for a selected encoder,
// empty for software.
func HWAccelArgs(e models.HardwareEncoder) []string {
	accel := e.Kind.HWAccel()
	if accel == "" {
		return nil
	}
	return []string{"-hwaccel", accel}
}
