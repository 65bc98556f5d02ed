package common

import (
	"fmt"

	"github.com/ternarybob/banner"
)

type bannerField struct {
	key   string
	value string
}

// bannerFields is what the startup banner reports about a resolved config
func bannerFields(cfg *Config) []bannerField {
	history := "disabled"
	if cfg.Storage.Badger.Enabled {
		history = cfg.Storage.Badger.Path + " (kept forever)"
		if days := cfg.Storage.Badger.RetentionDays; days > 0 {
			history = fmt.Sprintf("%s (%d day retention)", cfg.Storage.Badger.Path, days)
		}
	}
	return []bannerField{
		{"Listen", fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)},
		{"Environment", cfg.Environment},
		{"Content root", cfg.Content.Root},
		{"History", history},
		{"Sink ceiling", fmt.Sprintf("%d KiB per job", cfg.Jobs.SinkCeilingBytes/1024)},
		{"Idle jobs", "reaped after " + cfg.MaxIdleDuration().String()},
	}
}

// PrintBanner writes the startup box: name and version, then where Vigil
// listens and what it operates on
func PrintBanner(cfg *Config, version string) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorCyan).
		SetWidth(64)

	b.PrintTopLine()
	b.PrintCenteredText("VIGIL")
	b.PrintCenteredText("background job controller v" + version)
	b.PrintSeparatorLine()
	for _, f := range bannerFields(cfg) {
		b.PrintKeyValue(f.key, f.value, 14)
	}
	b.PrintBottomLine()
}
