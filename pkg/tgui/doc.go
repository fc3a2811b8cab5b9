// Package tgui renders chat cards: escaped HTML fragments, a line-based
// message builder and inline keyboards with compact callback data.
package tgui
