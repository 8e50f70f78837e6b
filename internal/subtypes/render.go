package subtypes

import (
	"github.com/charmbracelet/lipgloss"
)

const (
	defaultColumnsConstant        = 3
	selectedMarkerConstant        = "[x]"
	unselectedMarkerConstant      = "[ ]"
	selectedColorConstant         = "42"
	unselectedColorConstant       = "240"
	cardContentSeparator          = " "
	cardHorizontalPaddingConstant = 1
)

var (
	selectedCardStyle = lipgloss.NewStyle().
				Border(lipgloss.ThickBorder()).
				BorderForeground(lipgloss.Color(selectedColorConstant)).
				Bold(true).
				Padding(0, cardHorizontalPaddingConstant)
	unselectedCardStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color(unselectedColorConstant)).
				Padding(0, cardHorizontalPaddingConstant)
)

// RenderCard renders one sub-type as a bordered card reflecting its selection state. The card
// is as wide as the widest card of the built-in catalog.
func RenderCard(subType SubType, selected bool) string {
	contentWidth := max(cardContentWidth(mixedUseCatalog), lipgloss.Width(cardContent(subType, selected)))
	return renderCard(subType, selected, contentWidth)
}

// RenderCards lays the catalog out as a grid of equally sized cards, columns per row.
func RenderCards(catalog []SubType, selection Selection, columns int) string {
	if columns <= 0 {
		columns = defaultColumnsConstant
	}
	contentWidth := cardContentWidth(catalog)

	rows := make([]string, 0, (len(catalog)+columns-1)/columns)
	for start := 0; start < len(catalog); start += columns {
		end := min(start+columns, len(catalog))
		cards := make([]string, 0, end-start)
		for _, subType := range catalog[start:end] {
			cards = append(cards, renderCard(subType, selection.Contains(subType.ID), contentWidth))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func renderCard(subType SubType, selected bool, contentWidth int) string {
	style := unselectedCardStyle
	if selected {
		style = selectedCardStyle
	}
	return style.Width(contentWidth + 2*cardHorizontalPaddingConstant).Render(cardContent(subType, selected))
}

func cardContent(subType SubType, selected bool) string {
	marker := unselectedMarkerConstant
	if selected {
		marker = selectedMarkerConstant
	}
	return marker + cardContentSeparator + subType.Icon + cardContentSeparator + subType.Label
}

// cardContentWidth measures the widest card body in catalog. Both markers have the same width.
func cardContentWidth(catalog []SubType) int {
	widest := 0
	for _, subType := range catalog {
		widest = max(widest, lipgloss.Width(cardContent(subType, false)))
	}
	return widest
}
