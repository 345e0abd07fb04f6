package workflow

import "github.com/jedib0t/go-pretty/v6/text"

// Presentation holds the styling for one status code. Unknown codes resolve
// to the neutral default: historical rows may carry codes that were since
// retired from the active lists, and rendering must never fail on them.
type Presentation struct {
	Background text.Color
	Foreground text.Color
	Border     text.Color
}

// Colors returns the combined cell styling.
func (p Presentation) Colors() text.Colors {
	return text.Colors{p.Background, p.Foreground}
}

var defaultPresentation = Presentation{
	Background: text.BgWhite,
	Foreground: text.FgBlack,
	Border:     text.FgWhite,
}

var presentations = map[string]Presentation{
	StatusNew:               {Background: text.BgBlue, Foreground: text.FgWhite, Border: text.FgBlue},
	StatusInfoPendingSyte:   {Background: text.BgYellow, Foreground: text.FgBlack, Border: text.FgYellow},
	StatusInfoPendingClient: {Background: text.BgHiYellow, Foreground: text.FgBlack, Border: text.FgHiYellow},
	StatusApplicationDone:   {Background: text.BgCyan, Foreground: text.FgBlack, Border: text.FgCyan},
	"scrutiny-raised":       {Background: text.BgRed, Foreground: text.FgWhite, Border: text.FgRed},
	"certificate-received":  {Background: text.BgGreen, Foreground: text.FgBlack, Border: text.FgGreen},
	"extension-granted":     {Background: text.BgGreen, Foreground: text.FgBlack, Border: text.FgGreen},
	"deregistered":          {Background: text.BgMagenta, Foreground: text.FgWhite, Border: text.FgMagenta},
	"abeyance-raised":       {Background: text.BgRed, Foreground: text.FgWhite, Border: text.FgRed},
	"reply-filed":           {Background: text.BgCyan, Foreground: text.FgBlack, Border: text.FgCyan},
	"hearing-scheduled":     {Background: text.BgHiRed, Foreground: text.FgWhite, Border: text.FgHiRed},
	"credentials-shared":    {Background: text.BgGreen, Foreground: text.FgBlack, Border: text.FgGreen},
	StatusClose:             {Background: text.BgHiBlack, Foreground: text.FgWhite, Border: text.FgHiBlack},
}

// PresentationFor resolves styling for a status code, case-insensitive.
// It is total: arbitrary input yields the default presentation.
func PresentationFor(code string) Presentation {
	for k, p := range presentations {
		if equalFold(k, code) {
			return p
		}
	}
	return defaultPresentation
}
