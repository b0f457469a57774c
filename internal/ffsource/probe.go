// Package ffsource decodes and encodes video files through the ffmpeg
// binary, exchanging packed RGB24 frames over pipes. It backs the offline
// video mode of the CLI; live streams use GStreamer instead.
package ffsource

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Info describes the first video stream of a file.
type Info struct {
	Width  int
	Height int
	// FPS is the average frame rate, 0 when unknown.
	FPS float64
	// Frames is the frame count reported by the container, 0 when unknown.
	Frames int
	// Duration is in seconds, 0 when unknown.
	Duration float64
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		NbFrames     string `json:"nb_frames"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe on path.
func Probe(path string) (Info, error) {
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe error: %w", err)
	}
	return ParseProbe(out)
}

// ParseProbe extracts Info from ffprobe JSON output.
func ParseProbe(data string) (Info, error) {
	var probe probeOutput
	if err := json.Unmarshal([]byte(data), &probe); err != nil {
		return Info{}, fmt.Errorf("json unmarshal error: %w", err)
	}

	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		if s.Width < 1 || s.Height < 1 {
			return Info{}, fmt.Errorf("video stream has invalid size %dx%d", s.Width, s.Height)
		}
		info := Info{
			Width:  s.Width,
			Height: s.Height,
			FPS:    parseRate(s.AvgFrameRate),
		}
		if n, err := strconv.Atoi(s.NbFrames); err == nil {
			info.Frames = n
		}
		dur := s.Duration
		if dur == "" {
			dur = probe.Format.Duration
		}
		if d, err := strconv.ParseFloat(dur, 64); err == nil {
			info.Duration = d
		}
		if info.Frames == 0 && info.FPS > 0 && info.Duration > 0 {
			info.Frames = int(info.FPS*info.Duration + 0.5)
		}
		return info, nil
	}

	return Info{}, fmt.Errorf("no video stream found")
}

// parseRate parses an ffprobe rational such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// ScaledSize fits width x height into maxWidth keeping the aspect ratio.
// Both results are even, as most encoders require. maxWidth <= 0 only
// rounds down to even.
func ScaledSize(width, height, maxWidth int) (int, int) {
	if maxWidth > 0 && width > maxWidth {
		height = (height*maxWidth + width/2) / width
		width = maxWidth
	}
	width &^= 1
	height &^= 1
	return max(width, 2), max(height, 2)
}
