package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	Primary    = lipgloss.Color("#5F7FFF") // Blue
	Secondary  = lipgloss.Color("#06B6D4") // Cyan
	Success    = lipgloss.Color("#10B981") // Green
	Warning    = lipgloss.Color("#F59E0B") // Amber
	Error      = lipgloss.Color("#EF4444") // Red
	Muted      = lipgloss.Color("#6B7280") // Gray
	Background = lipgloss.Color("#10131A") // Dark
	Foreground = lipgloss.Color("#F9FAFB") // Light gray
	Border     = lipgloss.Color("#374151") // Gray border

	// Title bar
	TitleBar = lipgloss.NewStyle().
			Foreground(Foreground).
			Background(Primary).
			Padding(0, 1).
			Bold(true)

	// Help text
	Help = lipgloss.NewStyle().
		Foreground(Muted)

	HelpKey = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	// Muted text style
	MutedText = lipgloss.NewStyle().
			Foreground(Muted)

	// Secondary text style
	SecondaryText = lipgloss.NewStyle().
			Foreground(Secondary)

	// Warning message (rate limits)
	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning).
			Padding(0, 1)

	// Error message
	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true).
			Padding(0, 1)

	// Success message
	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true).
			Padding(0, 1)

	// Footer bar
	FooterBar = lipgloss.NewStyle().
			Foreground(Muted).
			Padding(0, 1)

	// Input field
	InputLabel = lipgloss.NewStyle().
			Foreground(Foreground).
			Bold(true)

	InputField = lipgloss.NewStyle().
			Foreground(Foreground).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Border).
			Padding(0, 1)

	InputFieldFocused = InputField.
				BorderForeground(Primary)

	// List styles
	ListItem = lipgloss.NewStyle().
			Foreground(Foreground).
			Padding(0, 2)

	ListItemSelected = lipgloss.NewStyle().
				Foreground(Foreground).
				Background(Primary).
				Padding(0, 2).
				Bold(true)

	ListItemDimmed = lipgloss.NewStyle().
			Foreground(Muted).
			Padding(0, 2)

	// Reader styles
	ReaderHeader = lipgloss.NewStyle().
			Foreground(Foreground).
			Background(Primary).
			Padding(0, 1).
			Bold(true)

	ReaderProgress = lipgloss.NewStyle().
			Foreground(Secondary)

	VolumeTitle = lipgloss.NewStyle().
			Foreground(Foreground).
			Bold(true).
			Align(lipgloss.Center)

	// Dialog/Modal styles
	Dialog = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Primary).
		Padding(1, 2)

	DialogTitle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true).
			MarginBottom(1)

	// Book info styles
	BookTitle = lipgloss.NewStyle().
			Foreground(Foreground).
			Bold(true)

	BookAuthor = lipgloss.NewStyle().
			Foreground(Secondary)
)

// ReaderTheme holds the content colors for one reading theme
type ReaderTheme struct {
	Text  lipgloss.Style
	Faint lipgloss.Style
}

// Theme returns the reader content styles for a named reading theme
// (day, night, sepia). Unknown names fall back to day.
func Theme(name string) ReaderTheme {
	switch name {
	case "night":
		return ReaderTheme{
			Text:  lipgloss.NewStyle().Foreground(lipgloss.Color("#D1D5DB")),
			Faint: lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
		}
	case "sepia":
		return ReaderTheme{
			Text:  lipgloss.NewStyle().Foreground(lipgloss.Color("#E8D8B8")),
			Faint: lipgloss.NewStyle().Foreground(lipgloss.Color("#A89878")),
		}
	default:
		return ReaderTheme{
			Text:  lipgloss.NewStyle().Foreground(Foreground),
			Faint: lipgloss.NewStyle().Foreground(Muted),
		}
	}
}

// TruncateText shortens s to max runes, appending an ellipsis
func TruncateText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}
