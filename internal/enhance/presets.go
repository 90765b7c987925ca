package enhance

import (
	"fmt"
	"sort"
)

// Named presets mirroring the desktop optimizer's recommended settings.
const (
	PresetClean     = "clean"     // fast path for clean modern scans
	PresetAged      = "aged"      // old / low-contrast material
	PresetArtifacts = "artifacts" // scans with heavy JPEG artifacts
	PresetText      = "text"      // small black-and-white text
	PresetTrimOnly  = "trim"      // crop and margins only
)

var presets = map[string]Config{
	PresetClean: {
		TargetWidth:  1200,
		Quality:      84,
		Contrast:     1.15,
		Sharpen:      0.6,
		AutoContrast: true,
		TrimBorders:  true,
		PadPixels:    16,
	},
	PresetAged: {
		TargetWidth:  1200,
		Quality:      84,
		Contrast:     1.3,
		Sharpen:      0.5,
		Grayscale:    true,
		Denoise:      true,
		AutoContrast: true,
		TrimBorders:  true,
		PadPixels:    16,
	},
	PresetArtifacts: {
		TargetWidth:  1200,
		Quality:      88,
		Contrast:     1.1,
		Sharpen:      0.6,
		Denoise:      true,
		AutoContrast: true,
		TrimBorders:  true,
		PadPixels:    16,
	},
	PresetText: {
		TargetWidth:       1200,
		Quality:           84,
		Grayscale:         true,
		AdaptiveThreshold: true,
		TrimBorders:       true,
		PadPixels:         16,
	},
	PresetTrimOnly: {
		TargetWidth: 1200,
		Quality:     84,
		TrimBorders: true,
		PadPixels:   16,
	},
}

// Preset returns the configuration for a named preset.
func Preset(name string) (Config, error) {
	cfg, ok := presets[name]
	if !ok {
		return Config{}, fmt.Errorf("unknown preset %q", name)
	}
	return cfg, nil
}

// PresetNames lists the available preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
