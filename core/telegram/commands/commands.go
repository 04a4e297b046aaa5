// Package commands describes slash commands held by the registry.
package commands

import tele "gopkg.in/telebot.v4"

// Command is a slash command. Hidden commands are left out of the menu.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	Hidden      bool
	// Aliases are alternative names, with or without the leading slash.
	Aliases []string
}
