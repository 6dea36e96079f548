package gateway

import "fmt"

// Tray is the text the desktop shell shows in its tray icon.
type Tray struct {
	Tooltip string `json:"tooltip"`
	Menu    string `json:"menu"`
}

// TrayStatus renders the tray tooltip and status menu item for s.
func TrayStatus(s Status) Tray {
	if !s.Running {
		return Tray{
			Tooltip: "ApiFlow - stopped",
			Menu:    "○ stopped",
		}
	}

	suffix := ""
	if s.Active > 0 {
		suffix = fmt.Sprintf(" · processing %d", s.Active)
	}
	return Tray{
		Tooltip: fmt.Sprintf("ApiFlow - running (%d)%s", s.ListenPort, suffix),
		Menu:    fmt.Sprintf("● running - port %d%s", s.ListenPort, suffix),
	}
}
