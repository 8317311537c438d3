package serialmux

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Format selects how a command is framed on the wire.
type Format int

const (
	// FormatRaw writes the bare command followed by a newline.
	FormatRaw Format = iota
	// FormatJSON wraps the command in a small JSON envelope.
	FormatJSON
)

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "raw"
}

// ParseFormat accepts "raw" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "raw":
		return FormatRaw, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatRaw, fmt.Errorf("unknown serial format %q", s)
}

// StatusCommand asks the controller to report its state.
const StatusCommand = "0"

// DefaultStatusInterval is how often StatusCommand is sent.
const DefaultStatusInterval = 3 * time.Second

type envelope struct {
	Kind  string `json:"k"`
	Value string `json:"v"`
	Time  int64  `json:"t"`
}

// Frame encodes one command, terminated by a newline.
func Frame(f Format, command string, at time.Time) []byte {
	command = strings.TrimRight(command, "\r\n")
	if f == FormatJSON {
		b, err := json.Marshal(envelope{Kind: "cmd", Value: command, Time: at.UnixMilli()})
		if err == nil {
			return append(b, '\n')
		}
	}
	return []byte(command + "\n")
}
