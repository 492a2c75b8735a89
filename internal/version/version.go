// Package version хранит сведения о сборке сервиса.
package version

import "fmt"

// Заполняются линковщиком:
//
//	-ldflags "-X .../internal/version.version=v1.2.3 -X .../internal/version.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает собранный бинарь.
type Build struct {
	Version string
	Commit  string
	Date    string
}

// Current возвращает сведения о текущей сборке.
func Current() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

// String форматирует сведения о сборке одной строкой для логов.
func (b Build) String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", b.Version, b.Commit, b.Date)
}
