package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/psjson"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/winrm"
)

// updateServiceName is the Windows Update service.
const updateServiceName = "wuauserv"

const patchServiceCIM = `$ErrorActionPreference = 'Stop'
Get-CimInstance -ClassName Win32_Service -Filter "Name='wuauserv'" | Select-Object Name, State, StartMode | ConvertTo-Json -Compress`

const patchServiceQuery = `$ErrorActionPreference = 'Stop'
Get-Service -Name wuauserv | Select-Object Name, @{n='State';e={$_.Status.ToString()}}, @{n='StartMode';e={$_.StartType.ToString()}} | ConvertTo-Json -Compress`

type serviceRow struct {
	Name      string `json:"Name"`
	State     string `json:"State"`
	StartMode string `json:"StartMode"`
}

func probePatchService(ctx context.Context, exec winrm.Executor, host string) models.PatchServiceStatus {
	query := func(script string) func(context.Context) (serviceRow, error) {
		return func(ctx context.Context) (serviceRow, error) {
			out, err := exec.RunPowerShell(ctx, host, script)
			if err != nil {
				return serviceRow{}, err
			}
			var row serviceRow
			if err := psjson.Decode([]byte(out), &row); err != nil {
				return serviceRow{}, fmt.Errorf("%s: %w", updateServiceName, err)
			}
			return row, nil
		}
	}

	row, proto, err := withFallback(ctx,
		method[serviceRow]{ProtocolCIM, query(patchServiceCIM)},
		method[serviceRow]{ProtocolServiceQuery, query(patchServiceQuery)},
	)
	if err != nil {
		return models.PatchServiceStatus{ProbeStatus: models.ProbeStatus{Online: true, Error: err.Error()}}
	}
	return models.PatchServiceStatus{
		ProbeStatus:       models.ProbeStatus{Online: true, Protocol: proto},
		AutoUpdateEnabled: strings.EqualFold(row.State, "Running"),
		ServiceState:      row.State,
	}
}
