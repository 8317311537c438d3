package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/servo-cam/server/internal/detection"
)

// maxFrameSize bounds one NDJSON line; pose frames with many people run to
// tens of kilobytes.
const maxFrameSize = 4 << 20

// wireFrame is one detector frame as written by the detector process.
type wireFrame struct {
	Objects []wireObject `json:"objects"`
}

type wireObject struct {
	Score     float64     `json:"score"`
	Class     string      `json:"class"`
	Box       []float64   `json:"box"`
	Center    []float64   `json:"center,omitempty"`
	Keypoints [][]float64 `json:"keypoints,omitempty"`
}

func (w wireObject) object() (detection.Object, error) {
	if len(w.Box) != 4 {
		return detection.Object{}, fmt.Errorf("box needs 4 values, got %d", len(w.Box))
	}
	obj := detection.Object{
		Score: w.Score,
		Class: w.Class,
		Box:   detection.Box{X: w.Box[0], Y: w.Box[1], W: w.Box[2], H: w.Box[3]},
	}
	switch len(w.Center) {
	case 0:
	case 2:
		obj.Center = &detection.Point{X: w.Center[0], Y: w.Center[1]}
	default:
		return detection.Object{}, fmt.Errorf("center needs 2 values, got %d", len(w.Center))
	}
	for i, kp := range w.Keypoints {
		switch len(kp) {
		case 2:
			obj.Keypoints = append(obj.Keypoints, detection.Keypoint{X: kp[0], Y: kp[1], Score: 1})
		case 3:
			obj.Keypoints = append(obj.Keypoints, detection.Keypoint{X: kp[0], Y: kp[1], Score: kp[2]})
		default:
			return detection.Object{}, fmt.Errorf("keypoint %d needs 2 or 3 values, got %d", i, len(kp))
		}
	}
	return obj, nil
}

// ParseFrame decodes one NDJSON line.
func ParseFrame(line []byte) ([]detection.Object, error) {
	var f wireFrame
	if err := json.Unmarshal(line, &f); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	objs := make([]detection.Object, 0, len(f.Objects))
	for i, w := range f.Objects {
		obj, err := w.object()
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// ReadFrames sends every decodable frame in r to out until r is exhausted
// or ctx is done. Blank lines are skipped; malformed frames are reported to
// onError and skipped.
func ReadFrames(ctx context.Context, r io.Reader, out chan<- []detection.Object, onError func(line int, err error)) error {
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64<<10), maxFrameSize)
	n := 0
	for scan.Scan() {
		n++
		line := bytes.TrimSpace(scan.Bytes())
		if len(line) == 0 {
			continue
		}
		objs, err := ParseFrame(line)
		if err != nil {
			if onError != nil {
				onError(n, err)
			}
			continue
		}
		select {
		case out <- objs:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scan.Err()
}
