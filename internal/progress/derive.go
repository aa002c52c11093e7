package progress

import "github.com/hszk-dev/framelens/internal/domain/model"

// Summary aggregates frame states over indices 0..FrameCount-1.
type Summary struct {
	Total      int
	Done       int
	Processing int
	Pending    int

	DonePercent       float64
	ProcessingPercent float64
	PendingPercent    float64

	AllDone    bool
	InProgress bool
}

// Summarize counts frames by state. Indices outside 0..FrameCount-1 are ignored.
func Summarize(p model.Progress) Summary {
	s := Summary{Total: p.FrameCount}
	for i := 0; i < p.FrameCount; i++ {
		switch p.Frame(i).Status {
		case model.FrameDone:
			s.Done++
		case model.FrameProcessing:
			s.Processing++
		default:
			s.Pending++
		}
	}

	total := float64(max(p.FrameCount, 1))
	s.DonePercent = float64(s.Done) / total * 100
	s.ProcessingPercent = float64(s.Processing) / total * 100
	s.PendingPercent = float64(s.Pending) / total * 100

	s.AllDone = p.FrameCount > 0 && s.Done == p.FrameCount
	s.InProgress = s.Processing > 0 || (!s.AllDone && s.Done > 0)
	return s
}

// PreviewFrameURL picks the frame used as the preview image.
// The reported first frame wins; otherwise the lowest index that is done or
// processing and already has a URL. Empty when nothing is available yet.
func PreviewFrameURL(p model.Progress) string {
	if p.FirstFrameURL != "" {
		return p.FirstFrameURL
	}
	for i := 0; i < p.FrameCount; i++ {
		fs := p.Frame(i)
		if fs.URL != "" && (fs.Status == model.FrameDone || fs.Status == model.FrameProcessing) {
			return fs.URL
		}
	}
	return ""
}

// Thumbnail is one slot of the frame strip.
type Thumbnail struct {
	Index       int
	URL         string
	Status      model.FrameState
	Placeholder bool
}

// Thumbnails returns one slot per frame index. Slots without a URL are placeholders.
func Thumbnails(p model.Progress) []Thumbnail {
	out := make([]Thumbnail, 0, p.FrameCount)
	for i := 0; i < p.FrameCount; i++ {
		fs := p.Frame(i)
		out = append(out, Thumbnail{
			Index:       i,
			URL:         fs.URL,
			Status:      fs.Status,
			Placeholder: fs.URL == "",
		})
	}
	return out
}

// Ready reports whether the frame view can be shown instead of the
// "extracting frames" placeholder.
func Ready(p model.Progress) bool {
	return !p.Loading && !p.Extracting && p.FrameCount > 0
}
