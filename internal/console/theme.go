package console

import (
	"github.com/charmbracelet/lipgloss"
)

// Colors is the console palette as it appears in the config file.
type Colors struct {
	Primary string `yaml:"primary"` // title, borders, progress start
	Success string `yaml:"success"`
	Error   string `yaml:"error"`
	Warning string `yaml:"warning"` // running tests, status line
	Muted   string `yaml:"muted"`
	Text    string `yaml:"text"`
	Border  string `yaml:"border"`
}

// DefaultColors returns the stock palette.
func DefaultColors() Colors {
	return Colors{
		Primary: "#7D56F4", // Purple
		Success: "#04B575", // Green
		Error:   "#FF5F56", // Red
		Warning: "#FFBD2E", // Yellow/Orange
		Muted:   "#626262", // Gray
		Text:    "#CCCCCC", // Light gray
		Border:  "#444444", // Dark gray
	}
}

// withDefaults fills empty entries from DefaultColors.
func (c Colors) withDefaults() Colors {
	d := DefaultColors()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&c.Primary, d.Primary)
	fill(&c.Success, d.Success)
	fill(&c.Error, d.Error)
	fill(&c.Warning, d.Warning)
	fill(&c.Muted, d.Muted)
	fill(&c.Text, d.Text)
	fill(&c.Border, d.Border)
	return c
}

// Theme holds pre-built lipgloss styles.
type Theme struct {
	Colors Colors

	Title   lipgloss.Style
	Splash  lipgloss.Style
	Panel   lipgloss.Style
	Header  lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	Status  lipgloss.Style
	Success lipgloss.Style
	Failure lipgloss.Style
	Running lipgloss.Style
}

// NewTheme compiles c into styles.
func NewTheme(c Colors) *Theme {
	c = c.withDefaults()
	primary := lipgloss.Color(c.Primary)
	return &Theme{
		Colors: c,
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primary).
			Padding(0, 1),
		Splash: lipgloss.NewStyle().
			Bold(true).
			Foreground(primary).
			Border(lipgloss.DoubleBorder()).
			BorderForeground(primary).
			Padding(1, 4),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(c.Border)).
			Padding(0, 1),
		Header:  lipgloss.NewStyle().Bold(true).Foreground(primary),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(c.Muted)),
		Value:   lipgloss.NewStyle().Foreground(lipgloss.Color(c.Text)),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color(c.Muted)),
		Status:  lipgloss.NewStyle().Foreground(lipgloss.Color(c.Warning)).Italic(true),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(c.Success)).Bold(true),
		Failure: lipgloss.NewStyle().Foreground(lipgloss.Color(c.Error)).Bold(true),
		Running: lipgloss.NewStyle().Foreground(lipgloss.Color(c.Warning)),
	}
}
