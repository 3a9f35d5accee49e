package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles for the chat program
type Styles struct {
	// Chat transcript
	UserMessage     lipgloss.Style
	ServiceMessage  lipgloss.Style
	QuestionMessage lipgloss.Style
	ErrorMessage    lipgloss.Style
	Timestamp       lipgloss.Style

	// Slide sidebar
	SidebarTitle lipgloss.Style
	SlideItem    lipgloss.Style
	SlideNumber  lipgloss.Style

	// Status bar
	StatusBar          lipgloss.Style
	StatusConnected    lipgloss.Style
	StatusReconnecting lipgloss.Style
	StatusDisconnected lipgloss.Style
	StatusPhase        lipgloss.Style
	StatusProgress     lipgloss.Style

	// Input
	InputBox lipgloss.Style
}

// DefaultStyles returns the default color scheme
func DefaultStyles() Styles {
	return Styles{
		UserMessage: lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true),
		ServiceMessage: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		QuestionMessage: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true),
		ErrorMessage: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		Timestamp: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		SidebarTitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")).
			Bold(true).
			Padding(0, 1),
		SlideItem: lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Padding(0, 1),
		SlideNumber: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		StatusBar: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
		StatusConnected: lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true),
		StatusReconnecting: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true),
		StatusDisconnected: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),
		StatusPhase: lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")),
		StatusProgress: lipgloss.NewStyle().
			Foreground(lipgloss.Color("45")),

		InputBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
	}
}
