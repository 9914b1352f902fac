package models

// ProbeState is the terminal state of one host's probe pipeline.
type ProbeState string

const (
	ProbeCompleted   ProbeState = "COMPLETED"
	ProbeUnreachable ProbeState = "UNREACHABLE"
)

// OfflineError is the Error text recorded on every capability of a host that
// failed the reachability gate.
const OfflineError = "Computer offline or unreachable"

// Capability names used in logs and statistics.
const (
	CapabilityAntivirus      = "antivirus"
	CapabilityDiskEncryption = "disk_encryption"
	CapabilityPatchService   = "patch_service"
	CapabilityFirewall       = "firewall"
)

// ProbeStatus is the part of a capability result common to every probe.
// Error and the capability-specific fields are mutually exclusive: when
// Error is non-empty the capability fields stay at their zero value.
type ProbeStatus struct {
	Online   bool   `json:"Online"`
	Error    string `json:"Error,omitempty"`
	Protocol string `json:"Protocol,omitempty"`
}

// Failed reports whether the probe ended with an error.
func (s ProbeStatus) Failed() bool {
	return s.Error != ""
}

// Succeeded reports whether the host was online and the probe produced data.
func (s ProbeStatus) Succeeded() bool {
	return s.Online && s.Error == ""
}

// AntivirusStatus is the antivirus capability result.
type AntivirusStatus struct {
	ProbeStatus
	Installed                 bool   `json:"Installed"`
	ProductName               string `json:"ProductName,omitempty"`
	ProductState              int    `json:"ProductState,omitempty"`
	RealTimeProtectionEnabled bool   `json:"RealTimeProtectionEnabled"`
}

// VolumeEncryption is the protection state of one encryptable volume.
type VolumeEncryption struct {
	MountPoint           string  `json:"MountPoint"`
	ProtectionStatus     int     `json:"ProtectionStatus"`
	EncryptionPercentage float64 `json:"EncryptionPercentage"`
}

// DiskEncryptionStatus is the disk-encryption capability result.
type DiskEncryptionStatus struct {
	ProbeStatus
	Enabled bool               `json:"Enabled"`
	Volumes []VolumeEncryption `json:"Volumes,omitempty"`
}

// PatchServiceStatus is the update-service capability result. A pending
// update count is not obtainable remotely and is deliberately absent.
type PatchServiceStatus struct {
	ProbeStatus
	AutoUpdateEnabled bool   `json:"AutoUpdateEnabled"`
	ServiceState      string `json:"ServiceState,omitempty"`
}

// FirewallProfile is the state of one firewall profile.
type FirewallProfile struct {
	Name    string `json:"Name"`
	Enabled bool   `json:"Enabled"`
}

// FirewallStatus is the firewall capability result.
type FirewallStatus struct {
	ProbeStatus
	Enabled  bool              `json:"Enabled"`
	Profiles []FirewallProfile `json:"Profiles,omitempty"`
}

// HostPostureRecord is the outcome of probing one host during one run.
type HostPostureRecord struct {
	ComputerName   string               `json:"ComputerName"`
	Target         string               `json:"Target"`
	State          ProbeState           `json:"State"`
	Antivirus      AntivirusStatus      `json:"Antivirus"`
	DiskEncryption DiskEncryptionStatus `json:"BitLocker"`
	PatchService   PatchServiceStatus   `json:"WindowsUpdate"`
	Firewall       FirewallStatus       `json:"Firewall"`
	CompletedAt    Timestamp            `json:"CompletedAt"`
}

// UnreachablePosture returns the record for a host that failed the
// reachability gate: every capability offline with OfflineError.
func UnreachablePosture(computerName, target string, completedAt Timestamp) HostPostureRecord {
	offline := ProbeStatus{Online: false, Error: OfflineError}
	return HostPostureRecord{
		ComputerName:   computerName,
		Target:         target,
		State:          ProbeUnreachable,
		Antivirus:      AntivirusStatus{ProbeStatus: offline},
		DiskEncryption: DiskEncryptionStatus{ProbeStatus: offline},
		PatchService:   PatchServiceStatus{ProbeStatus: offline},
		Firewall:       FirewallStatus{ProbeStatus: offline},
		CompletedAt:    completedAt,
	}
}
