package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file,
// relative to the repository root. The file mirrors the built-in getter
// defaults and is the starting point for operator overrides.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for processing parameters.
// All fields are optional; anything omitted from the JSON file falls back
// to the defaults returned by the Get* accessors, so partial configs are safe.
type TuningConfig struct {
	// Pipeline params
	FrameStep       *int    `json:"frame_step,omitempty"`
	MaxStoredFrames *int    `json:"max_stored_frames,omitempty"`
	WorkerCount     *int    `json:"worker_count,omitempty"`
	QueueSize       *int    `json:"queue_size,omitempty"`
	ProgressStep    *int    `json:"progress_step,omitempty"`
	AttachPause     *string `json:"attach_pause,omitempty"` // duration string like "100ms"

	// Speed band params. The band boundaries are fixed at 30 and 60 km/h;
	// these override only the detection values within each band.
	LowSpeedBand    *SpeedBandConfig `json:"low_speed_band,omitempty"`
	MediumSpeedBand *SpeedBandConfig `json:"medium_speed_band,omitempty"`
	HighSpeedBand   *SpeedBandConfig `json:"high_speed_band,omitempty"`

	// Tracker params
	TrackHistorySize    *int     `json:"track_history_size,omitempty"`
	MinDetectionFrames  *int     `json:"min_detection_frames,omitempty"`
	DetectionTimeWindow *float64 `json:"detection_time_window,omitempty"` // seconds

	// Live channel params
	HeartbeatInterval *string `json:"heartbeat_interval,omitempty"` // duration string like "30s"
	SendTimeout       *string `json:"send_timeout,omitempty"`       // duration string like "5s"

	// Upload params
	DefaultSpeedKMH *int `json:"default_speed_kmh,omitempty"`
}

// SpeedBandConfig overrides the detection values of one speed band. Omitted
// fields keep the built-in value for that band.
type SpeedBandConfig struct {
	ROIRatio   *float64 `json:"roi_ratio,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.FrameStep != nil && *c.FrameStep < 1 {
		return fmt.Errorf("frame_step must be >= 1, got %d", *c.FrameStep)
	}
	if c.MaxStoredFrames != nil && *c.MaxStoredFrames < 1 {
		return fmt.Errorf("max_stored_frames must be >= 1, got %d", *c.MaxStoredFrames)
	}
	if c.WorkerCount != nil && *c.WorkerCount < 1 {
		return fmt.Errorf("worker_count must be >= 1, got %d", *c.WorkerCount)
	}
	if c.QueueSize != nil && *c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be >= 1, got %d", *c.QueueSize)
	}
	if c.ProgressStep != nil && (*c.ProgressStep < 1 || *c.ProgressStep > 100) {
		return fmt.Errorf("progress_step must be between 1 and 100, got %d", *c.ProgressStep)
	}
	if c.TrackHistorySize != nil && *c.TrackHistorySize < 1 {
		return fmt.Errorf("track_history_size must be >= 1, got %d", *c.TrackHistorySize)
	}
	if c.MinDetectionFrames != nil && *c.MinDetectionFrames < 1 {
		return fmt.Errorf("min_detection_frames must be >= 1, got %d", *c.MinDetectionFrames)
	}
	if c.DetectionTimeWindow != nil && *c.DetectionTimeWindow <= 0 {
		return fmt.Errorf("detection_time_window must be positive, got %f", *c.DetectionTimeWindow)
	}
	if c.DefaultSpeedKMH != nil && *c.DefaultSpeedKMH < 0 {
		return fmt.Errorf("default_speed_kmh must be non-negative, got %d", *c.DefaultSpeedKMH)
	}
	if err := validateSpeedBand("low_speed_band", c.LowSpeedBand); err != nil {
		return err
	}
	if err := validateSpeedBand("medium_speed_band", c.MediumSpeedBand); err != nil {
		return err
	}
	if err := validateSpeedBand("high_speed_band", c.HighSpeedBand); err != nil {
		return err
	}

	// Validate duration strings can be parsed if set
	if c.AttachPause != nil && *c.AttachPause != "" {
		if _, err := time.ParseDuration(*c.AttachPause); err != nil {
			return fmt.Errorf("invalid attach_pause '%s': %w", *c.AttachPause, err)
		}
	}
	if c.HeartbeatInterval != nil && *c.HeartbeatInterval != "" {
		if _, err := time.ParseDuration(*c.HeartbeatInterval); err != nil {
			return fmt.Errorf("invalid heartbeat_interval '%s': %w", *c.HeartbeatInterval, err)
		}
	}
	if c.SendTimeout != nil && *c.SendTimeout != "" {
		if _, err := time.ParseDuration(*c.SendTimeout); err != nil {
			return fmt.Errorf("invalid send_timeout '%s': %w", *c.SendTimeout, err)
		}
	}

	return nil
}

func validateSpeedBand(name string, b *SpeedBandConfig) error {
	if b == nil {
		return nil
	}
	if b.ROIRatio != nil && (*b.ROIRatio <= 0 || *b.ROIRatio > 1) {
		return fmt.Errorf("%s.roi_ratio must be between 0 and 1, got %f", name, *b.ROIRatio)
	}
	if b.Confidence != nil && (*b.Confidence <= 0 || *b.Confidence >= 1) {
		return fmt.Errorf("%s.confidence must be between 0 and 1, got %f", name, *b.Confidence)
	}
	return nil
}

// GetFrameStep returns the frame_step value or the default.
func (c *TuningConfig) GetFrameStep() int {
	if c.FrameStep == nil {
		return 2 // default: analyze every 2nd frame
	}
	return *c.FrameStep
}

// GetMaxStoredFrames returns the max_stored_frames value or the default.
func (c *TuningConfig) GetMaxStoredFrames() int {
	if c.MaxStoredFrames == nil {
		return 1500 // default
	}
	return *c.MaxStoredFrames
}

// GetWorkerCount returns the worker_count value or the default.
func (c *TuningConfig) GetWorkerCount() int {
	if c.WorkerCount == nil {
		return 4 // default
	}
	return *c.WorkerCount
}

// GetQueueSize returns the queue_size value or the default.
func (c *TuningConfig) GetQueueSize() int {
	if c.QueueSize == nil {
		return 16 // default
	}
	return *c.QueueSize
}

// GetProgressStep returns the progress_step value or the default.
func (c *TuningConfig) GetProgressStep() int {
	if c.ProgressStep == nil {
		return 5 // default: push progress every 5 percent
	}
	return *c.ProgressStep
}

// GetAttachPause parses and returns the AttachPause as a time.Duration.
func (c *TuningConfig) GetAttachPause() time.Duration {
	if c.AttachPause == nil || *c.AttachPause == "" {
		return 100 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.AttachPause)
	if err != nil {
		return 100 * time.Millisecond // default on parse error
	}
	return d
}

// GetTrackHistorySize returns the track_history_size value or the default.
func (c *TuningConfig) GetTrackHistorySize() int {
	if c.TrackHistorySize == nil {
		return 20 // default
	}
	return *c.TrackHistorySize
}

// GetMinDetectionFrames returns the min_detection_frames value or the default.
func (c *TuningConfig) GetMinDetectionFrames() int {
	if c.MinDetectionFrames == nil {
		return 3 // default
	}
	return *c.MinDetectionFrames
}

// GetDetectionTimeWindow returns the detection_time_window value or the default.
func (c *TuningConfig) GetDetectionTimeWindow() float64 {
	if c.DetectionTimeWindow == nil {
		return 1.0 // default: one second
	}
	return *c.DetectionTimeWindow
}

// GetLowSpeedBand returns the ROI ratio and confidence threshold for the
// band below 30 km/h, applying defaults for unset values.
func (c *TuningConfig) GetLowSpeedBand() (roiRatio, confidence float64) {
	return bandValues(c.LowSpeedBand, 0.50, 0.35)
}

// GetMediumSpeedBand returns the ROI ratio and confidence threshold for the
// 30-59 km/h band, applying defaults for unset values.
func (c *TuningConfig) GetMediumSpeedBand() (roiRatio, confidence float64) {
	return bandValues(c.MediumSpeedBand, 0.65, 0.28)
}

// GetHighSpeedBand returns the ROI ratio and confidence threshold for the
// band at 60 km/h and above, applying defaults for unset values.
func (c *TuningConfig) GetHighSpeedBand() (roiRatio, confidence float64) {
	return bandValues(c.HighSpeedBand, 0.75, 0.22)
}

func bandValues(b *SpeedBandConfig, defROI, defConf float64) (float64, float64) {
	roi, conf := defROI, defConf
	if b != nil && b.ROIRatio != nil {
		roi = *b.ROIRatio
	}
	if b != nil && b.Confidence != nil {
		conf = *b.Confidence
	}
	return roi, conf
}

// GetHeartbeatInterval parses and returns the HeartbeatInterval as a time.Duration.
func (c *TuningConfig) GetHeartbeatInterval() time.Duration {
	if c.HeartbeatInterval == nil || *c.HeartbeatInterval == "" {
		return 30 * time.Second // default
	}
	d, err := time.ParseDuration(*c.HeartbeatInterval)
	if err != nil {
		return 30 * time.Second // default on parse error
	}
	return d
}

// GetSendTimeout parses and returns the SendTimeout as a time.Duration.
func (c *TuningConfig) GetSendTimeout() time.Duration {
	if c.SendTimeout == nil || *c.SendTimeout == "" {
		return 5 * time.Second // default
	}
	d, err := time.ParseDuration(*c.SendTimeout)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return d
}

// GetDefaultSpeedKMH returns the default_speed_kmh value or the default.
func (c *TuningConfig) GetDefaultSpeedKMH() int {
	if c.DefaultSpeedKMH == nil {
		return 30 // default vehicle speed when the form omits it
	}
	return *c.DefaultSpeedKMH
}
