package model

import (
	"fmt"
	"path"
)

// FramePath returns the asset path of a frame thumbnail.
// Files are numbered from 1 and zero-padded: index 0 is frame_00001.jpg.
func FramePath(videoID string, idx int) string {
	return path.Join("/frames", videoID, fmt.Sprintf("frame_%05d.jpg", idx+1))
}

// VideoPath returns the asset path of the uploaded video file.
func VideoPath(videoID string) string {
	return path.Join("/videos", videoID, "video.mp4")
}
