package config

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"neuropeaks/internal/errors"
)

// envPrefix is the environment variable prefix for profile overrides.
const envPrefix = "NEUROPEAKS"

// Experiment kinds
const (
	KindVideo   = "video"
	KindWebsite = "website"
	KindImage   = "image"
)

// GazeColumns names the per-eye gaze columns of an export.
type GazeColumns struct {
	LeftX  string `mapstructure:"left_x"`
	LeftY  string `mapstructure:"left_y"`
	RightX string `mapstructure:"right_x"`
	RightY string `mapstructure:"right_y"`
}

// Columns lists the configured gaze columns.
func (g GazeColumns) Columns() []string {
	var out []string
	for _, c := range []string{g.LeftX, g.LeftY, g.RightX, g.RightY} {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Enabled reports whether all four gaze columns are configured.
func (g GazeColumns) Enabled() bool {
	return len(g.Columns()) == 4
}

// FillConfig selects a gap-filling heuristic for merged streams.
type FillConfig struct {
	Policy string `mapstructure:"policy"`
	Limit  int    `mapstructure:"limit"`
}

// Profile is the declared schema and pipeline settings of one experiment type.
type Profile struct {
	Name            string        `mapstructure:"name"`
	Kind            string        `mapstructure:"kind"`
	Columns         []string      `mapstructure:"columns"`  // extra non-signal columns to keep
	Signals         []string      `mapstructure:"signals"`  // required numeric columns, ranked for peaks
	Optional        []string      `mapstructure:"optional"` // numeric columns kept when present
	Required        []string      `mapstructure:"required"` // numeric columns every row needs, Signals when empty
	Gaze            GazeColumns   `mapstructure:"gaze"`
	BinWidth        time.Duration `mapstructure:"bin_width"`
	TopN            int           `mapstructure:"top_n"`
	Direction       string        `mapstructure:"direction"`
	Stimulus        string        `mapstructure:"stimulus"`
	AllStimuli      bool          `mapstructure:"all_stimuli"`
	Fill            FillConfig    `mapstructure:"fill"`
	ReferenceWidth  int           `mapstructure:"reference_width"`
	ReferenceHeight int           `mapstructure:"reference_height"`
}

// Validate checks a profile once, before any data is read.
func (p Profile) Validate() error {
	if p.Name == "" {
		return errors.ConfigInvalid("profile name is required")
	}
	switch p.Kind {
	case KindVideo, KindWebsite, KindImage:
	default:
		return errors.ConfigInvalid(fmt.Sprintf("profile %s: unknown kind %q", p.Name, p.Kind))
	}
	if len(p.Signals) == 0 {
		return errors.ConfigInvalid(fmt.Sprintf("profile %s: at least one signal is required", p.Name))
	}
	if p.BinWidth <= 0 {
		return errors.ConfigInvalid(fmt.Sprintf("profile %s: bin_width must be positive", p.Name))
	}
	if p.TopN < 1 {
		return errors.ConfigInvalid(fmt.Sprintf("profile %s: top_n must be at least 1", p.Name))
	}
	if p.ReferenceWidth <= 0 || p.ReferenceHeight <= 0 {
		return errors.ConfigInvalid(fmt.Sprintf("profile %s: reference resolution must be positive", p.Name))
	}
	if p.Kind == KindWebsite && !p.Gaze.Enabled() {
		return errors.ConfigInvalid(fmt.Sprintf("profile %s: website profiles need gaze columns", p.Name))
	}
	return nil
}

// Emotion columns reported by the facial expression module.
var EmotionSignals = []string{
	"Anger", "Contempt", "Disgust", "Fear", "Joy", "Sadness", "Surprise",
	"Engagement", "Valence", "Sentimentality", "Confusion", "Neutral",
}

// DefaultGaze is the eye tracker's column naming.
var DefaultGaze = GazeColumns{
	LeftX:  "ET_GazeLeftx",
	LeftY:  "ET_GazeLefty",
	RightX: "ET_GazeRightx",
	RightY: "ET_GazeRighty",
}

// DefaultProfiles returns the built-in experiment profiles.
func DefaultProfiles() map[string]Profile {
	base := func(name, kind string, signals []string) Profile {
		return Profile{
			Name:            name,
			Kind:            kind,
			Signals:         signals,
			BinWidth:        10 * time.Millisecond,
			TopN:            3,
			Direction:       "backward",
			ReferenceWidth:  1920,
			ReferenceHeight: 1080,
		}
	}

	emotion := base("emotion", KindVideo, append(append([]string{}, EmotionSignals...), "Attention"))
	gsr := base("gsr", KindVideo, []string{"Phasic Signal"})
	heart := base("heart_rate", KindVideo, []string{"Heart Rate PPG ALG"})

	gaze := base("gaze", KindWebsite, []string{"Anger", "Fear", "Joy", "Sadness", "Surprise", "Engagement", "Confusion", "Neutral"})
	gaze.Gaze = DefaultGaze
	// the eye tracker samples more often than facial coding
	gaze.Required = DefaultGaze.Columns()
	gaze.Direction = "nearest"
	gaze.Fill = FillConfig{Policy: "linear"}
	gaze.AllStimuli = true

	image := base("image", KindImage, EmotionSignals)
	image.Optional = []string{"GSR Raw", "GSR Interpolated", "Tonic Signal", "Phasic Signal"}
	image.Gaze = DefaultGaze
	image.Required = DefaultGaze.Columns()
	image.AllStimuli = true
	image.Columns = []string{"StimType", "Duration", "CollectionPhase", "SampleNumber", "ET_PupilLeft", "ET_PupilRight"}

	return map[string]Profile{
		emotion.Name: emotion,
		gsr.Name:     gsr,
		heart.Name:   heart,
		gaze.Name:    gaze,
		image.Name:   image,
	}
}

// newViper builds a Viper instance reading YAML with NEUROPEAKS_ env overrides.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetDefault("default_bin_width", "")
	v.SetDefault("default_top_n", 0)
	return v
}

// LoadProfiles returns the built-in profiles overlaid with those declared in
// the YAML file at path. An empty path yields the defaults, still subject to
// NEUROPEAKS_DEFAULT_BIN_WIDTH / NEUROPEAKS_DEFAULT_TOP_N overrides.
func LoadProfiles(path string) (map[string]Profile, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read profiles file %q", path)
		}
	}
	return finalizeProfiles(v)
}

// LoadProfilesFromReader is LoadProfiles for an in-memory YAML document.
func LoadProfilesFromReader(r io.Reader) (map[string]Profile, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, errors.Wrap(err, "failed to parse profiles")
	}
	return finalizeProfiles(v)
}

func finalizeProfiles(v *viper.Viper) (map[string]Profile, error) {
	var file struct {
		Profiles map[string]Profile `mapstructure:"profiles"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, errors.Wrap(err, "failed to decode profiles")
	}

	profiles := DefaultProfiles()
	for key, declared := range file.Profiles {
		if declared.Name == "" {
			declared.Name = key
		}
		if existing, ok := profiles[declared.Name]; ok {
			declared = mergeProfile(existing, declared)
		} else {
			declared = mergeProfile(Profile{
				BinWidth:        10 * time.Millisecond,
				TopN:            3,
				Direction:       "backward",
				ReferenceWidth:  1920,
				ReferenceHeight: 1080,
			}, declared)
		}
		profiles[declared.Name] = declared
	}

	binOverride := v.GetDuration("default_bin_width")
	topNOverride := v.GetInt("default_top_n")
	for name, p := range profiles {
		if binOverride > 0 {
			p.BinWidth = binOverride
		}
		if topNOverride > 0 {
			p.TopN = topNOverride
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		profiles[name] = p
	}
	return profiles, nil
}

// mergeProfile overlays the non-zero fields of override on base.
func mergeProfile(base, override Profile) Profile {
	out := base
	out.Name = override.Name
	if override.Kind != "" {
		out.Kind = override.Kind
	}
	if len(override.Columns) > 0 {
		out.Columns = override.Columns
	}
	if len(override.Signals) > 0 {
		out.Signals = override.Signals
	}
	if len(override.Optional) > 0 {
		out.Optional = override.Optional
	}
	if len(override.Required) > 0 {
		out.Required = override.Required
	}
	if override.Gaze.Enabled() {
		out.Gaze = override.Gaze
	}
	if override.BinWidth > 0 {
		out.BinWidth = override.BinWidth
	}
	if override.TopN > 0 {
		out.TopN = override.TopN
	}
	if override.Direction != "" {
		out.Direction = override.Direction
	}
	if override.Stimulus != "" {
		out.Stimulus = override.Stimulus
	}
	if override.AllStimuli {
		out.AllStimuli = true
	}
	if override.Fill.Policy != "" {
		out.Fill = override.Fill
	}
	if override.ReferenceWidth > 0 {
		out.ReferenceWidth = override.ReferenceWidth
	}
	if override.ReferenceHeight > 0 {
		out.ReferenceHeight = override.ReferenceHeight
	}
	return out
}

// ProfileNames returns the sorted profile names.
func ProfileNames(profiles map[string]Profile) []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
