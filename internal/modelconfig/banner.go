package modelconfig

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	bannerWidth     = 80
	timestampLayout = "2006/01/02 - 15:04:05"
)

var (
	bannerRuleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5f87af"))
	bannerTextStyle = lipgloss.NewStyle().Bold(true)
	bannerTimeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// Banner announces that commandName is about to run.
func (m *ModelConfig) Banner(commandName string) {
	m.writeBanner(fmt.Sprintf("Running model %s, run %d -- command %s -- device %s",
		m.name, m.runNumber, commandName, m.device))
}

// QuitBanner announces that the run finished.
func (m *ModelConfig) QuitBanner() {
	m.writeBanner("Done.")
}

func (m *ModelConfig) writeBanner(line string) {
	rule := bannerRuleStyle.Render(strings.Repeat("=", bannerWidth))
	fmt.Fprintln(m.out, rule)
	fmt.Fprintln(m.out, bannerTextStyle.Render(line))
	fmt.Fprintln(m.out, bannerTimeStyle.Render(m.now().Format(timestampLayout)))
	fmt.Fprintln(m.out, rule)
}
