// Package models содержит доменные структуры контроллера доступа:
// пользователей, записи доступа к платформам и результат определения доступа.
package models

// Platform идентификатор продукта линейки. Закрытый список,
// проверяется на каждом запросе до обращения к хранилищу.
type Platform string

// Продукты линейки.
const (
	PlatformRxGuard    Platform = "rxguard"
	PlatformPediCalc   Platform = "pedicalc"
	PlatformMedWatch   Platform = "medwatch"
	PlatformElderWatch Platform = "elderwatch"
	PlatformReguReady  Platform = "reguready"
	PlatformClinicalIQ Platform = "clinicaliq"
)

// Platforms полный список поддерживаемых платформ.
var Platforms = []Platform{
	PlatformRxGuard,
	PlatformPediCalc,
	PlatformMedWatch,
	PlatformElderWatch,
	PlatformReguReady,
	PlatformClinicalIQ,
}

// ValidPlatform сообщает, входит ли p в закрытый список платформ.
func ValidPlatform(p Platform) bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}
