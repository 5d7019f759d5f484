package domain

import "strings"

// HWIDSeparator joins the machine identity components.
const HWIDSeparator = "_"

// MachineIdentity carries the client-reported components of a hardware identity.
type MachineIdentity struct {
	ComputerName string
	UserName     string
	SerialNumber string
}

// HWID derives the hardware identity string.
// Components are joined in fixed order (computer, user, serial) without
// validation, so empty components still yield a well-formed value such as "__".
func (m MachineIdentity) HWID() string {
	return DeriveHWID(m.ComputerName, m.UserName, m.SerialNumber)
}

// DeriveHWID joins computer name, OS user name and serial number.
func DeriveHWID(computerName, userName, serialNumber string) string {
	return strings.Join([]string{computerName, userName, serialNumber}, HWIDSeparator)
}
