package device

import (
	"golang.org/x/sys/windows/registry"
)

// SystemRawID reads the MachineGuid written at Windows setup.
func SystemRawID(buf []byte) int {
	return copyRawID(buf, func() (string, error) {
		k, err := registry.OpenKey(registry.LOCAL_MACHINE, `SOFTWARE\Microsoft\Cryptography`, registry.QUERY_VALUE|registry.WOW64_64KEY)
		if err != nil {
			return "", err
		}
		defer k.Close()
		id, _, err := k.GetStringValue("MachineGuid")
		return id, err
	})
}
