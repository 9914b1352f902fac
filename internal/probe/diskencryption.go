package probe

import (
	"context"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/psjson"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/winrm"
)

// protectionOn is the Win32_EncryptableVolume protection status for a
// protected volume.
const protectionOn = 1

// Each volume is queried separately; a volume whose methods throw is
// reported with an Error property and skipped on decode.
const diskEncryptionCIM = `$ErrorActionPreference = 'Stop'
$vols = Get-CimInstance -Namespace root/CIMV2/Security/MicrosoftVolumeEncryption -ClassName Win32_EncryptableVolume
$out = foreach ($v in $vols) {
  try {
    $p = Invoke-CimMethod -InputObject $v -MethodName GetProtectionStatus
    $c = Invoke-CimMethod -InputObject $v -MethodName GetConversionStatus
    [pscustomobject]@{ MountPoint = $v.DriveLetter; ProtectionStatus = [int]$p.ProtectionStatus; EncryptionPercentage = [double]$c.EncryptionPercentage }
  } catch {
    [pscustomobject]@{ MountPoint = $v.DriveLetter; Error = $_.Exception.Message }
  }
}
ConvertTo-Json -Compress -InputObject @($out)`

const diskEncryptionWMI = `$ErrorActionPreference = 'Stop'
$vols = Get-WmiObject -Namespace root\CIMV2\Security\MicrosoftVolumeEncryption -Class Win32_EncryptableVolume
$out = foreach ($v in $vols) {
  try {
    $p = $v.GetProtectionStatus()
    $c = $v.GetConversionStatus()
    [pscustomobject]@{ MountPoint = $v.DriveLetter; ProtectionStatus = [int]$p.ProtectionStatus; EncryptionPercentage = [double]$c.EncryptionPercentage }
  } catch {
    [pscustomobject]@{ MountPoint = $v.DriveLetter; Error = $_.Exception.Message }
  }
}
ConvertTo-Json -Compress -InputObject @($out)`

type volumeRow struct {
	MountPoint           string     `json:"MountPoint"`
	ProtectionStatus     psjson.Int `json:"ProtectionStatus"`
	EncryptionPercentage float64    `json:"EncryptionPercentage"`
	Error                string     `json:"Error"`
}

func probeDiskEncryption(ctx context.Context, exec winrm.Executor, host string) models.DiskEncryptionStatus {
	query := func(script string) func(context.Context) ([]models.VolumeEncryption, error) {
		return func(ctx context.Context) ([]models.VolumeEncryption, error) {
			out, err := exec.RunPowerShell(ctx, host, script)
			if err != nil {
				return nil, err
			}
			rows, err := psjson.DecodeList[volumeRow]([]byte(out))
			if err != nil {
				return nil, err
			}
			return decodeVolumes(rows), nil
		}
	}

	vols, proto, err := withFallback(ctx,
		method[[]models.VolumeEncryption]{ProtocolCIM, query(diskEncryptionCIM)},
		method[[]models.VolumeEncryption]{ProtocolWMI, query(diskEncryptionWMI)},
	)
	if err != nil {
		return models.DiskEncryptionStatus{ProbeStatus: models.ProbeStatus{Online: true, Error: err.Error()}}
	}

	status := models.DiskEncryptionStatus{
		ProbeStatus: models.ProbeStatus{Online: true, Protocol: proto},
		Volumes:     vols,
	}
	for _, v := range vols {
		if v.ProtectionStatus == protectionOn {
			status.Enabled = true
			break
		}
	}
	return status
}

// decodeVolumes drops volumes that failed to report.
func decodeVolumes(rows []volumeRow) []models.VolumeEncryption {
	vols := []models.VolumeEncryption{}
	for _, r := range rows {
		if r.Error != "" || !r.ProtectionStatus.Valid {
			continue
		}
		vols = append(vols, models.VolumeEncryption{
			MountPoint:           r.MountPoint,
			ProtectionStatus:     r.ProtectionStatus.Value,
			EncryptionPercentage: r.EncryptionPercentage,
		})
	}
	return vols
}
