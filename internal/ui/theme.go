package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// CustomTheme overrides a handful of palette and sizing choices on top of
// Fyne's default theme, shared by the GUI server and client.
type CustomTheme struct {
	fyne.Theme
}

// NewCustomTheme wraps the default theme with filewire's palette.
func NewCustomTheme() *CustomTheme {
	return &CustomTheme{
		Theme: theme.DefaultTheme(),
	}
}

// Color returns the themed colors, falling back to the wrapped theme for
// anything not explicitly overridden.
func (t *CustomTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNamePrimary:
		return color.RGBA{R: 0, G: 102, B: 204, A: 255}
	case theme.ColorNameSuccess:
		return color.RGBA{R: 0, G: 153, B: 0, A: 255}
	case theme.ColorNameWarning:
		return color.RGBA{R: 255, G: 153, B: 0, A: 255}
	case theme.ColorNameError:
		return color.RGBA{R: 204, G: 0, B: 0, A: 255}
	case theme.ColorNameBackground:
		return color.RGBA{R: 248, G: 249, B: 250, A: 255}
	case theme.ColorNameForeground:
		return color.RGBA{R: 33, G: 37, B: 41, A: 255}
	default:
		return t.Theme.Color(name, variant)
	}
}

// Font defers entirely to the wrapped theme.
func (t *CustomTheme) Font(style fyne.TextStyle) fyne.Resource {
	return t.Theme.Font(style)
}

// Icon defers entirely to the wrapped theme.
func (t *CustomTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return t.Theme.Icon(name)
}

// Size overrides padding and border sizing for a slightly denser layout.
func (t *CustomTheme) Size(name fyne.ThemeSizeName) float32 {
	switch name {
	case theme.SizeNamePadding:
		return 8
	case theme.SizeNameScrollBar:
		return 12
	case theme.SizeNameScrollBarSmall:
		return 8
	case theme.SizeNameSeparatorThickness:
		return 1
	case theme.SizeNameInputBorder:
		return 1
	case theme.SizeNameInputRadius:
		return 4
	default:
		return t.Theme.Size(name)
	}
}
