package main

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"tailscale.com/tsweb"

	"github.com/servo-cam/server/internal/action"
	"github.com/servo-cam/server/internal/detection"
	"github.com/servo-cam/server/internal/httputil"
	"github.com/servo-cam/server/internal/targeting"
	"github.com/servo-cam/server/internal/tracker"
)

// controller exposes the tracker's manual controls and last output on the
// debug server.
type controller struct {
	trk *tracker.Tracker

	mu   sync.Mutex
	last tracker.Output
}

func newController(trk *tracker.Tracker) *controller {
	return &controller{trk: trk}
}

// observe keeps out for the status endpoint.
func (c *controller) observe(out tracker.Output) {
	c.mu.Lock()
	c.last = out
	c.mu.Unlock()
}

type snapshot struct {
	Tick        uint64          `json:"tick"`
	Mode        string          `json:"mode"`
	Command     string          `json:"command"`
	AngleX      int             `json:"angle_x"`
	AngleY      int             `json:"angle_y"`
	Count       int             `json:"count"`
	HasTarget   bool            `json:"has_target"`
	Identity    int             `json:"identity"`
	Match       string          `json:"match"`
	Status      map[string]bool `json:"status"`
	ManualSpeed int             `json:"manual_speed"`
}

func (c *controller) snapshot() snapshot {
	c.mu.Lock()
	out := c.last
	c.mu.Unlock()

	st := c.trk.Status()
	s := snapshot{
		Tick:        out.Tick,
		Mode:        c.trk.Mode().String(),
		Command:     out.Command,
		AngleX:      out.Angles.X,
		AngleY:      out.Angles.Y,
		Count:       out.Count,
		HasTarget:   out.HasTarget,
		Identity:    out.Identity,
		Match:       out.Match.String(),
		Status:      make(map[string]bool, len(targeting.States)),
		ManualSpeed: c.trk.ManualSpeed(),
	}
	for _, state := range targeting.States {
		s.Status[state.String()] = st.Get(state)
	}
	return s
}

// apply runs one named control against the tracker.
func (c *controller) apply(name, value string) error {
	name = strings.ToLower(name)
	switch name {
	case "mode":
		c.trk.SetMode(targeting.ParseMode(value))
	case "point":
		c.trk.SetPoint(detection.ParsePointName(value))
	case "single":
		on, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("single wants a boolean: %w", err)
		}
		c.trk.SetSingle(on)
	case "lock":
		c.trk.Lock()
	case "unlock":
		c.trk.Unlock()
	case "next":
		c.trk.Next()
	case "prev":
		c.trk.Prev()
	case "reset":
		c.trk.Reset(true)
	case "action-on":
		c.trk.EnableAction()
	case "action-off":
		c.trk.DisableAction()
	case "press", "release":
		ctl, ok := tracker.ParseControl(value)
		if !ok {
			return fmt.Errorf("unknown control %q", value)
		}
		if name == "press" {
			c.trk.Press(ctl)
		} else {
			c.trk.Release(ctl)
		}
	case "toggle", "begin", "end", "fire":
		n, ok := action.ParseName(value)
		if !ok {
			return fmt.Errorf("unknown output %q", value)
		}
		switch name {
		case "toggle":
			c.trk.ToggleOutput(n)
		case "begin":
			c.trk.BeginOutput(n)
		case "end":
			c.trk.EndOutput(n)
		default:
			c.trk.FireOutput(n)
		}
	case "click":
		var x, y float64
		if _, err := fmt.Sscanf(value, "%g,%g", &x, &y); err != nil {
			return fmt.Errorf("click wants x,y: %w", err)
		}
		c.trk.Click(detection.Point{X: x, Y: y})
	default:
		return fmt.Errorf("unknown control action %q", name)
	}
	return nil
}

func (c *controller) attachRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("tracker", "tracker status", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, c.snapshot())
	})

	debug.HandleSilentFunc("tracker-control", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		name := strings.TrimSpace(r.FormValue("action"))
		if name == "" {
			httputil.BadRequest(w, "Missing action")
			return
		}
		if err := c.apply(name, strings.TrimSpace(r.FormValue("value"))); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		io.WriteString(w, "ok\n")
	})
}
