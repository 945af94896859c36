package device

import "strings"

// Identity holds the parsed *IDN? response. It is filled once at connect
// time and never changes while the link is up; everything quirk-related keys
// off it.
type Identity struct {
	Vendor   string `json:"vendor"`
	Model    string `json:"model"`
	Serial   string `json:"serial"`
	Firmware string `json:"firmware"`
	Raw      string `json:"raw"`
}

// ParseIdentity parses the comma-separated vendor,model,serial,firmware
// response. Instruments of this era are sloppy about field count, so missing
// fields come back as "Unknown" rather than an error.
func ParseIdentity(idn string) Identity {
	id := Identity{
		Vendor:   "Unknown",
		Model:    "Unknown",
		Serial:   "",
		Firmware: "Unknown",
		Raw:      strings.TrimSpace(idn),
	}

	parts := strings.Split(id.Raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if len(parts) > 0 && parts[0] != "" {
		id.Vendor = parts[0]
	}
	if len(parts) > 1 && parts[1] != "" {
		id.Model = parts[1]
	}
	if len(parts) > 2 {
		id.Serial = parts[2]
	}
	if len(parts) > 3 && parts[3] != "" {
		id.Firmware = parts[3]
	} else if len(parts) > 1 && parts[len(parts)-1] != "" {
		id.Firmware = parts[len(parts)-1]
	}

	return id
}

// IsSMY02 reports whether the instrument belongs to the SMY02 family. Some
// firmware puts the family name only in the full IDN string, so both the
// model field and the raw response are checked.
func (id Identity) IsSMY02() bool {
	return strings.Contains(strings.ToUpper(id.Model), "SMY02") ||
		strings.Contains(strings.ToUpper(id.Raw), "SMY02")
}

// Class returns the quirk-table key for this identity.
func (id Identity) Class() string {
	if id.IsSMY02() {
		return ClassSMY02
	}
	return ClassGeneric
}
