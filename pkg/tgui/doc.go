// Package tgui provides small Telegram UI helpers: inline keyboard
// builders, "namespace:action:payload" callback data and a message builder
// that escapes for ParseMode=HTML by default.
package tgui
