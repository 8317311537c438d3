package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/servo-cam/server/internal/action"
	"github.com/servo-cam/server/internal/command"
	"github.com/servo-cam/server/internal/detection"
	"github.com/servo-cam/server/internal/identity"
	"github.com/servo-cam/server/internal/patrol"
	"github.com/servo-cam/server/internal/serialmux"
	"github.com/servo-cam/server/internal/servo"
	"github.com/servo-cam/server/internal/targeting"
	"github.com/servo-cam/server/internal/tracker"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/servocam.defaults.json"

// ErrUnsupportedFormat is returned by Load for files that are neither JSON
// nor YAML.
var ErrUnsupportedFormat = errors.New("unsupported config format")

const maxFileSize = 1 * 1024 * 1024

// Config is the root configuration. Every field is optional; the Get*
// methods and builders fall back to defaults for anything unset, so partial
// files are safe.
type Config struct {
	Servo     ServoConfig                 `json:"servo" yaml:"servo"`
	Targeting TargetingConfig             `json:"targeting" yaml:"targeting"`
	Target    TargetConfig                `json:"target" yaml:"target"`
	Identity  IdentityConfig              `json:"identity" yaml:"identity"`
	Patrol    PatrolConfig                `json:"patrol" yaml:"patrol"`
	Action    ActionConfig                `json:"action" yaml:"action"`
	Filter    map[string]FilterRuleConfig `json:"filter,omitempty" yaml:"filter,omitempty"`
	Area      map[string]AreaConfig       `json:"area,omitempty" yaml:"area,omitempty"`
	Serial    SerialConfig                `json:"serial" yaml:"serial"`
	Remote    RemoteConfig                `json:"remote" yaml:"remote"`
	DB        DBConfig                    `json:"db" yaml:"db"`
	Logging   LoggingConfig               `json:"logging" yaml:"logging"`
	Manual    ManualConfig                `json:"manual" yaml:"manual"`
}

// AxisConfig overrides one servo axis.
type AxisConfig struct {
	Enabled    *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Start      *int     `json:"start,omitempty" yaml:"start,omitempty"`
	Min        *int     `json:"min,omitempty" yaml:"min,omitempty"`
	Max        *int     `json:"max,omitempty" yaml:"max,omitempty"`
	LimitMin   *int     `json:"limit_min,omitempty" yaml:"limit_min,omitempty"`
	LimitMax   *int     `json:"limit_max,omitempty" yaml:"limit_max,omitempty"`
	Step       *int     `json:"step,omitempty" yaml:"step,omitempty"`
	Multiplier *float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
	FOV        *float64 `json:"fov,omitempty" yaml:"fov,omitempty"`
}

type ServoConfig struct {
	X        AxisConfig `json:"x" yaml:"x"`
	Y        AxisConfig `json:"y" yaml:"y"`
	MapFOV   *bool      `json:"map_fov,omitempty" yaml:"map_fov,omitempty"`
	UseLimit *bool      `json:"use_limit,omitempty" yaml:"use_limit,omitempty"`
	// Source is "camera" or "video".
	Source *string `json:"source,omitempty" yaml:"source,omitempty"`
	// Disabled builds commands without sending them.
	Disabled *bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// MeanConfig configures mean smoothing of one tracked point.
type MeanConfig struct {
	Enabled *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Step    *float64 `json:"step,omitempty" yaml:"step,omitempty"`
	Depth   *int     `json:"depth,omitempty" yaml:"depth,omitempty"`
}

type TargetingConfig struct {
	DelayMultiplier  *float64   `json:"delay_multiplier,omitempty" yaml:"delay_multiplier,omitempty"`
	SpeedMultiplier  *float64   `json:"speed_multiplier,omitempty" yaml:"speed_multiplier,omitempty"`
	SmoothMultiplier *float64   `json:"smooth_multiplier,omitempty" yaml:"smooth_multiplier,omitempty"`
	SmoothFollow     *bool      `json:"smooth_follow,omitempty" yaml:"smooth_follow,omitempty"`
	SmoothCamera     *bool      `json:"smooth_camera,omitempty" yaml:"smooth_camera,omitempty"`
	Brake            *bool      `json:"brake,omitempty" yaml:"brake,omitempty"`
	CenterLock       *bool      `json:"center_lock,omitempty" yaml:"center_lock,omitempty"`
	MeanTarget       MeanConfig `json:"mean_target" yaml:"mean_target"`
	MeanNow          MeanConfig `json:"mean_now" yaml:"mean_now"`
	MeanCam          MeanConfig `json:"mean_cam" yaml:"mean_cam"`
	// Point is AUTO, HEAD, NECK, BODY or LEGS.
	Point *string `json:"point,omitempty" yaml:"point,omitempty"`
	// Mode is OFF, IDLE, FOLLOW or PATROL.
	Mode *string `json:"mode,omitempty" yaml:"mode,omitempty"`
	// Locator is "center" for box-only detectors or "pose" for COCO-17
	// keypoint detectors.
	Locator *string `json:"locator,omitempty" yaml:"locator,omitempty"`
}

type TargetConfig struct {
	TargetMinTime *int  `json:"target_min_time,omitempty" yaml:"target_min_time,omitempty"`
	LostMinTime   *int  `json:"lost_min_time,omitempty" yaml:"lost_min_time,omitempty"`
	OnTargetMax   *int  `json:"on_target_max,omitempty" yaml:"on_target_max,omitempty"`
	Single        *bool `json:"single,omitempty" yaml:"single,omitempty"`
	Locked        *bool `json:"locked,omitempty" yaml:"locked,omitempty"`
}

type IdentityConfig struct {
	BoxMaxAge *string  `json:"box_max_age,omitempty" yaml:"box_max_age,omitempty"` // duration string like "10s"
	MinScore  *float64 `json:"min_score,omitempty" yaml:"min_score,omitempty"`
}

type PatrolConfig struct {
	Step    *float64 `json:"step,omitempty" yaml:"step,omitempty"`
	Timeout *string  `json:"timeout,omitempty" yaml:"timeout,omitempty"` // duration string like "500ms"
}

type ActionConfig struct {
	Enabled *bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Mode    *string `json:"mode,omitempty" yaml:"mode,omitempty"`
	Name    *string `json:"name,omitempty" yaml:"name,omitempty"`
	Length  *int    `json:"length,omitempty" yaml:"length,omitempty"`
	Switch  *int    `json:"switch,omitempty" yaml:"switch,omitempty"`
}

// FilterRuleConfig is the rule for one purpose, keyed by purpose name.
type FilterRuleConfig struct {
	MinScore *float64 `json:"min_score,omitempty" yaml:"min_score,omitempty"`
	Classes  []string `json:"classes,omitempty" yaml:"classes,omitempty"`
}

// AreaConfig is the area for one purpose, keyed by purpose name. Box is
// [x, y, w, h] in normalized screen units.
type AreaConfig struct {
	Enabled *bool     `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	World   *bool     `json:"world,omitempty" yaml:"world,omitempty"`
	Box     []float64 `json:"box,omitempty" yaml:"box,omitempty"`
}

type SerialConfig struct {
	Enabled  *bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Port     *string `json:"port,omitempty" yaml:"port,omitempty"`
	Baud     *int    `json:"baud,omitempty" yaml:"baud,omitempty"`
	DataBits *int    `json:"data_bits,omitempty" yaml:"data_bits,omitempty"`
	StopBits *int    `json:"stop_bits,omitempty" yaml:"stop_bits,omitempty"`
	Parity   *string `json:"parity,omitempty" yaml:"parity,omitempty"`
	// Format is "raw" or "json".
	Format *string `json:"format,omitempty" yaml:"format,omitempty"`
	// StatusInterval is how often the status probe is sent; "0s" disables it.
	StatusInterval *string `json:"status_interval,omitempty" yaml:"status_interval,omitempty"`
}

type RemoteConfig struct {
	URL *string `json:"url,omitempty" yaml:"url,omitempty"`
}

type DBConfig struct {
	Path *string `json:"path,omitempty" yaml:"path,omitempty"`
}

type LoggingConfig struct {
	Level *string `json:"level,omitempty" yaml:"level,omitempty"`
}

type ManualConfig struct {
	Speed *int `json:"speed,omitempty" yaml:"speed,omitempty"`
}

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a JSON (.json) or YAML (.yaml, .yml) config file and validates
// it.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", cleanPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefault loads DefaultConfigPath, searching the current directory
// and its parents. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefault() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	limits := c.ServoLimits()
	if err := limits.Validate(); err != nil {
		return fmt.Errorf("servo: %w", err)
	}
	if s := c.Servo.Source; s != nil && *s != "camera" && *s != "video" {
		return fmt.Errorf("servo.source must be camera or video, got %q", *s)
	}

	for name, v := range map[string]*float64{
		"targeting.delay_multiplier":  c.Targeting.DelayMultiplier,
		"targeting.speed_multiplier":  c.Targeting.SpeedMultiplier,
		"targeting.smooth_multiplier": c.Targeting.SmoothMultiplier,
		"targeting.mean_target.step":  c.Targeting.MeanTarget.Step,
		"targeting.mean_now.step":     c.Targeting.MeanNow.Step,
		"targeting.mean_cam.step":     c.Targeting.MeanCam.Step,
		"patrol.step":                 c.Patrol.Step,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}
	for name, v := range map[string]*int{
		"targeting.mean_target.depth": c.Targeting.MeanTarget.Depth,
		"targeting.mean_now.depth":    c.Targeting.MeanNow.Depth,
		"targeting.mean_cam.depth":    c.Targeting.MeanCam.Depth,
		"target.target_min_time":      c.Target.TargetMinTime,
		"target.lost_min_time":        c.Target.LostMinTime,
		"target.on_target_max":        c.Target.OnTargetMax,
		"action.length":               c.Action.Length,
	} {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, *v)
		}
	}
	if v := c.Action.Switch; v != nil && *v < 0 {
		return fmt.Errorf("action.switch must be non-negative, got %d", *v)
	}

	if m := c.Targeting.Mode; m != nil && !strings.EqualFold(strings.TrimSpace(*m), targeting.ModeOff.String()) && targeting.ParseMode(*m) == targeting.ModeOff {
		return fmt.Errorf("invalid targeting.mode %q", *m)
	}
	if l := c.Targeting.Locator; l != nil && *l != "center" && *l != "pose" {
		return fmt.Errorf("targeting.locator must be center or pose, got %q", *l)
	}
	if n := c.Action.Name; n != nil {
		if _, ok := action.ParseName(*n); !ok {
			return fmt.Errorf("invalid action.name %q", *n)
		}
	}
	if m := c.Action.Mode; m != nil {
		switch strings.ToUpper(*m) {
		case "SINGLE", "SERIES", "CONTINUOUS", "TOGGLE":
		default:
			return fmt.Errorf("invalid action.mode %q", *m)
		}
	}

	for name, d := range map[string]*string{
		"identity.box_max_age":   c.Identity.BoxMaxAge,
		"patrol.timeout":         c.Patrol.Timeout,
		"serial.status_interval": c.Serial.StatusInterval,
	} {
		if d != nil && *d != "" {
			if _, err := time.ParseDuration(*d); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *d, err)
			}
		}
	}

	for name, r := range c.Filter {
		if _, ok := detection.ParsePurpose(name); !ok {
			return fmt.Errorf("filter: unknown purpose %q", name)
		}
		if r.MinScore != nil && (*r.MinScore < 0 || *r.MinScore > 1) {
			return fmt.Errorf("filter.%s.min_score must be between 0 and 1, got %f", name, *r.MinScore)
		}
	}
	for name, a := range c.Area {
		if _, ok := detection.ParsePurpose(name); !ok {
			return fmt.Errorf("area: unknown purpose %q", name)
		}
		if len(a.Box) != 0 && len(a.Box) != 4 {
			return fmt.Errorf("area.%s.box must be [x, y, w, h], got %d values", name, len(a.Box))
		}
	}

	if f := c.Serial.Format; f != nil && *f != "raw" && *f != "json" {
		return fmt.Errorf("serial.format must be raw or json, got %q", *f)
	}
	if _, err := c.SerialOptions().Normalize(); err != nil {
		return fmt.Errorf("serial: %w", err)
	}

	if l := c.Logging.Level; l != nil {
		switch strings.ToLower(*l) {
		case "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("invalid logging.level %q", *l)
		}
	}
	return nil
}

func or[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func duration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

func (a AxisConfig) apply(def servo.Axis) servo.Axis {
	return servo.Axis{
		Start:      or(a.Start, def.Start),
		Min:        or(a.Min, def.Min),
		Max:        or(a.Max, def.Max),
		LimitMin:   or(a.LimitMin, def.LimitMin),
		LimitMax:   or(a.LimitMax, def.LimitMax),
		Step:       or(a.Step, def.Step),
		Multiplier: or(a.Multiplier, def.Multiplier),
		FOV:        or(a.FOV, def.FOV),
	}
}

// ServoLimits builds the servo limits.
func (c *Config) ServoLimits() servo.Limits {
	def := servo.DefaultLimits()
	return servo.Limits{X: c.Servo.X.apply(def.X), Y: c.Servo.Y.apply(def.Y)}
}

// Geometry builds the servo geometry.
func (c *Config) Geometry() servo.Geometry {
	g := servo.Geometry{
		Limits:   c.ServoLimits(),
		MapFOV:   or(c.Servo.MapFOV, false),
		UseLimit: or(c.Servo.UseLimit, false),
	}
	if or(c.Servo.Source, "camera") == "video" {
		g.Source = servo.SourceVideo
	}
	return g
}

// CommandOptions builds the command builder options.
func (c *Config) CommandOptions() command.Options {
	return command.Options{
		EnableX:  or(c.Servo.X.Enabled, true),
		EnableY:  or(c.Servo.Y.Enabled, true),
		Disabled: or(c.Servo.Disabled, false),
	}
}

func (m MeanConfig) apply(def targeting.MeanParams) targeting.MeanParams {
	return targeting.MeanParams{
		Enabled: or(m.Enabled, def.Enabled),
		Step:    or(m.Step, def.Step),
		Depth:   or(m.Depth, def.Depth),
	}
}

// TargetingParams builds the aiming loop parameters.
func (c *Config) TargetingParams() targeting.Params {
	def := targeting.DefaultParams()
	t := c.Targeting
	return targeting.Params{
		DelayMultiplier:  or(t.DelayMultiplier, def.DelayMultiplier),
		SpeedMultiplier:  or(t.SpeedMultiplier, def.SpeedMultiplier),
		SmoothMultiplier: or(t.SmoothMultiplier, def.SmoothMultiplier),
		SmoothFollow:     or(t.SmoothFollow, def.SmoothFollow),
		SmoothCamera:     or(t.SmoothCamera, def.SmoothCamera),
		Brake:            or(t.Brake, def.Brake),
		CenterLock:       or(t.CenterLock, def.CenterLock),
		MeanTarget:       t.MeanTarget.apply(def.MeanTarget),
		MeanNow:          t.MeanNow.apply(def.MeanNow),
		MeanCam:          t.MeanCam.apply(def.MeanCam),
	}
}

// GetMode returns the start-up targeting mode, FOLLOW by default.
func (c *Config) GetMode() targeting.Mode {
	if c.Targeting.Mode == nil {
		return targeting.ModeFollow
	}
	return targeting.ParseMode(*c.Targeting.Mode)
}

// GetPoint returns the body part to aim at.
func (c *Config) GetPoint() detection.PointName {
	return detection.ParsePointName(or(c.Targeting.Point, "AUTO"))
}

// Locator builds the named-point locator.
func (c *Config) Locator() detection.Locator {
	if or(c.Targeting.Locator, "center") == "pose" {
		return detection.NewPoseLocator()
	}
	return detection.CenterLocator{}
}

// DwellParams builds the dwell timer lengths.
func (c *Config) DwellParams() targeting.DwellParams {
	def := targeting.DefaultDwellParams()
	return targeting.DwellParams{
		TargetMinTime: or(c.Target.TargetMinTime, def.TargetMinTime),
		LostMinTime:   or(c.Target.LostMinTime, def.LostMinTime),
		OnTargetMax:   or(c.Target.OnTargetMax, def.OnTargetMax),
	}
}

// IdentityConfig builds the identity tracker configuration.
func (c *Config) IdentityConfig() identity.Config {
	def := identity.DefaultConfig()
	return identity.Config{
		MaxAge:   duration(c.Identity.BoxMaxAge, def.MaxAge),
		MinScore: or(c.Identity.MinScore, def.MinScore),
	}
}

// PatrolParams builds the patrol sweep parameters.
func (c *Config) PatrolParams() patrol.Params {
	def := patrol.DefaultParams()
	return patrol.Params{
		Step:    or(c.Patrol.Step, def.Step),
		Timeout: duration(c.Patrol.Timeout, def.Timeout),
	}
}

// ActionParams builds the automatic action parameters.
func (c *Config) ActionParams() action.Params {
	p := action.DefaultParams()
	if c.Action.Name != nil {
		if n, ok := action.ParseName(*c.Action.Name); ok {
			p.Name = n
		}
	}
	if c.Action.Mode != nil {
		p.Mode = action.ParseMode(*c.Action.Mode)
	}
	p.Length = or(c.Action.Length, p.Length)
	p.Switch = or(c.Action.Switch, p.Switch)
	return p
}

// FilterRules builds the per-purpose detection rules.
func (c *Config) FilterRules() map[detection.Purpose]detection.Rule {
	rules := make(map[detection.Purpose]detection.Rule, len(c.Filter))
	for name, r := range c.Filter {
		p, ok := detection.ParsePurpose(name)
		if !ok {
			continue
		}
		rules[p] = detection.Rule{
			MinScore: or(r.MinScore, detection.DefaultMinScore),
			Classes:  r.Classes,
		}
	}
	return rules
}

// AreaSet builds the per-purpose areas.
func (c *Config) AreaSet() map[detection.Purpose]detection.Area {
	areas := make(map[detection.Purpose]detection.Area, len(c.Area))
	for name, a := range c.Area {
		p, ok := detection.ParsePurpose(name)
		if !ok {
			continue
		}
		area := detection.Area{
			Enabled: or(a.Enabled, false),
			World:   or(a.World, false),
		}
		if len(a.Box) == 4 {
			area.Box = detection.Box{X: a.Box[0], Y: a.Box[1], W: a.Box[2], H: a.Box[3]}
		}
		areas[p] = area
	}
	return areas
}

// TrackerOptions assembles everything the control loop needs.
func (c *Config) TrackerOptions() tracker.Options {
	return tracker.Options{
		Geometry:      c.Geometry(),
		Command:       c.CommandOptions(),
		Loop:          c.TargetingParams(),
		Dwell:         c.DwellParams(),
		Patrol:        c.PatrolParams(),
		Action:        c.ActionParams(),
		Identity:      c.IdentityConfig(),
		Rules:         c.FilterRules(),
		Areas:         c.AreaSet(),
		Locator:       c.Locator(),
		Point:         c.GetPoint(),
		Mode:          c.GetMode(),
		Single:        or(c.Target.Single, false),
		Locked:        or(c.Target.Locked, false),
		ActionEnabled: or(c.Action.Enabled, false),
		ManualSpeed:   c.GetManualSpeed(),
	}
}

// SerialOptions builds the serial port options.
func (c *Config) SerialOptions() serialmux.PortOptions {
	return serialmux.PortOptions{
		BaudRate: or(c.Serial.Baud, serialmux.DefaultBaudRate),
		DataBits: or(c.Serial.DataBits, 8),
		StopBits: or(c.Serial.StopBits, 1),
		Parity:   or(c.Serial.Parity, "N"),
	}
}

// GetSerialEnabled reports whether commands go to the serial port.
func (c *Config) GetSerialEnabled() bool { return or(c.Serial.Enabled, true) }

// GetSerialPort returns the serial device path.
func (c *Config) GetSerialPort() string { return or(c.Serial.Port, "/dev/ttyUSB0") }

// GetSerialFormat returns the serial framing.
func (c *Config) GetSerialFormat() serialmux.Format {
	if or(c.Serial.Format, "raw") == "json" {
		return serialmux.FormatJSON
	}
	return serialmux.FormatRaw
}

// GetStatusInterval returns how often the status probe is sent.
func (c *Config) GetStatusInterval() time.Duration {
	return duration(c.Serial.StatusInterval, serialmux.DefaultStatusInterval)
}

// GetRemoteURL returns the websocket endpoint, empty when unset.
func (c *Config) GetRemoteURL() string { return or(c.Remote.URL, "") }

// GetDBPath returns the telemetry database path.
func (c *Config) GetDBPath() string { return or(c.DB.Path, "servocam.db") }

// GetLogLevel returns the configured log level name.
func (c *Config) GetLogLevel() string { return or(c.Logging.Level, "info") }

// GetManualSpeed returns the manual step speed.
func (c *Config) GetManualSpeed() int { return or(c.Manual.Speed, tracker.DefaultManualSpeed) }
