package video

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
)

// FrameSource yields decoded frames in presentation order. Next returns
// io.EOF after the last frame.
type FrameSource interface {
	Next() (image.Image, error)
	Close() error
}

// ffmpegSource decodes a video by piping raw RGB frames out of ffmpeg.
type ffmpegSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	width  int
	height int
	buf    []byte
}

// OpenFrames starts decoding path. info supplies the frame size.
func (t Tools) OpenFrames(ctx context.Context, path string, info *Info) (FrameSource, error) {
	cmd := exec.CommandContext(ctx, t.FFmpeg,
		"-v", "error", "-i", path,
		"-map", "0:v:0", "-vsync", "0",
		"-f", "rawvideo", "-pix_fmt", "rgb24", "-")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", t.FFmpeg, err)
	}
	return &ffmpegSource{
		cmd:    cmd,
		stdout: stdout,
		reader: bufio.NewReaderSize(stdout, 1<<20),
		width:  info.Width,
		height: info.Height,
		buf:    make([]byte, info.Width*info.Height*3),
	}, nil
}

func (s *ffmpegSource) Next() (image.Image, error) {
	if _, err := io.ReadFull(s.reader, s.buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	for i, j := 0, 0; i < len(s.buf); i, j = i+3, j+4 {
		img.Pix[j] = s.buf[i]
		img.Pix[j+1] = s.buf[i+1]
		img.Pix[j+2] = s.buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}

func (s *ffmpegSource) Close() error {
	_, _ = io.Copy(io.Discard, s.stdout)
	return s.cmd.Wait()
}
