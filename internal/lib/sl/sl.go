// Package sl содержит небольшие помощники для структурированного логирования через slog.
package sl

import "log/slog"

// Err оборачивает ошибку в slog.Attr с ключом "error",
// чтобы все места логирования выводили ошибки единообразно.
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}
