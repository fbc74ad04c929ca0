package version

import "fmt"

// Заполняются через -ldflags "-X .../internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// ServiceName: имя сервиса в логах, health и Kafka client id.
const ServiceName = "shopcart"

// Info returns version information populated via -ldflags.
func Info() (v, c, d string) { return version, commit, date }

func GetVersion() string { return version }

func GetCommit() string { return commit }

func GetDate() string { return date }

// ClientID формирует идентификатор клиента для внешних систем.
func ClientID() string {
	return fmt.Sprintf("%s-%s", ServiceName, version)
}

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
