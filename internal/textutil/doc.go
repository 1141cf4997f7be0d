// Package textutil holds small string helpers shared by the CLI and the bot
// button parser: folding Persian and Arabic-Indic digits to ASCII, masking
// secrets for display, and a generic conditional.
package textutil
