// Package tgui holds Telegram text helpers: HTML building with automatic
// escaping and splitting of long messages into sendable chunks.
package tgui
