package tuner

import "fmt"

// Strategy identifies how a site's guide UI is searched. The set is closed:
// adding a provider shape means adding a constant here and an arm to the
// registry construction.
type Strategy string

const (
	// StrategyNone marks single-channel sites where navigation alone tunes.
	StrategyNone Strategy = "none"
	// StrategyGuideGrid searches a scroll-virtualized alphabetical grid.
	StrategyGuideGrid Strategy = "guideGrid"
	// StrategyChannelRail discovers a sub-page and scrapes a lazy tile rail.
	StrategyChannelRail Strategy = "channelRail"
	// StrategyImageTile matches a channel logo by image-URL fragment.
	StrategyImageTile Strategy = "imageTile"
	// StrategyLabelLink matches an accessible label on a fully rendered list.
	StrategyLabelLink Strategy = "labelLink"
)

// ParseStrategy validates a raw string against the closed strategy set.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyNone, StrategyGuideGrid, StrategyChannelRail, StrategyImageTile, StrategyLabelLink:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("tuner: unknown strategy %q", s)
	}
}

// SiteProfile is the per-channel tuning configuration, immutable for the
// duration of one tune. Channel's meaning depends on the strategy: an
// image-URL fragment for imageTile, a display name or station code for the
// grid and label strategies, a rail tile label for channelRail.
type SiteProfile struct {
	Site           string   `json:"site"`
	Channel        string   `json:"channel"`
	Strategy       Strategy `json:"strategy"`
	GuideURL       string   `json:"guide_url,omitempty"`
	RevealSelector string   `json:"reveal_selector,omitempty"`
	PlaySelector   string   `json:"play_selector,omitempty"`
	RailSelector   string   `json:"rail_selector,omitempty"`
	DiscoverLabel  string   `json:"discover_label,omitempty"`
}

// Result is the sole return contract for every strategy and the coordinator.
// Reason is only meaningful when Success is false and must say what was
// searched and what was not found.
type Result struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

func succeed() Result { return Result{Success: true} }

func fail(format string, args ...any) Result {
	return Result{Success: false, Reason: fmt.Sprintf(format, args...)}
}
