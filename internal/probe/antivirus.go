package probe

import (
	"context"
	"strings"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/psjson"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/winrm"
)

// realTimeProtectionBit is the productState bit set when on-access scanning
// is active.
const realTimeProtectionBit = 0x1000

const antivirusCIM = `$ErrorActionPreference = 'Stop'
ConvertTo-Json -Compress -InputObject @(Get-CimInstance -Namespace root/SecurityCenter2 -ClassName AntiVirusProduct | Select-Object displayName, productState)`

const antivirusWMI = `$ErrorActionPreference = 'Stop'
ConvertTo-Json -Compress -InputObject @(Get-WmiObject -Namespace root\SecurityCenter2 -Class AntiVirusProduct | Select-Object displayName, productState)`

type avProduct struct {
	DisplayName  string     `json:"displayName"`
	ProductState psjson.Int `json:"productState"`
}

type avResult struct {
	installed bool
	name      string
	state     int
	realTime  bool
}

func probeAntivirus(ctx context.Context, exec winrm.Executor, host string) models.AntivirusStatus {
	query := func(script string) func(context.Context) (avResult, error) {
		return func(ctx context.Context) (avResult, error) {
			out, err := exec.RunPowerShell(ctx, host, script)
			if err != nil {
				return avResult{}, err
			}
			products, err := psjson.DecodeList[avProduct]([]byte(out))
			if err != nil {
				return avResult{}, err
			}
			return decodeAntivirus(products), nil
		}
	}

	res, proto, err := withFallback(ctx,
		method[avResult]{ProtocolCIM, query(antivirusCIM)},
		method[avResult]{ProtocolWMI, query(antivirusWMI)},
	)
	if err != nil {
		return models.AntivirusStatus{ProbeStatus: models.ProbeStatus{Online: true, Error: err.Error()}}
	}
	return models.AntivirusStatus{
		ProbeStatus:               models.ProbeStatus{Online: true, Protocol: proto},
		Installed:                 res.installed,
		ProductName:               res.name,
		ProductState:              res.state,
		RealTimeProtectionEnabled: res.realTime,
	}
}

// decodeAntivirus reduces the registered products to one result. The first
// product with real-time protection wins; otherwise the first product.
func decodeAntivirus(products []avProduct) avResult {
	if len(products) == 0 {
		return avResult{}
	}
	names := make([]string, 0, len(products))
	pick := -1
	for i, p := range products {
		names = append(names, p.DisplayName)
		if pick < 0 && p.ProductState.Value&realTimeProtectionBit != 0 {
			pick = i
		}
	}
	realTime := pick >= 0
	if pick < 0 {
		pick = 0
	}
	return avResult{
		installed: true,
		name:      strings.Join(names, ", "),
		state:     products[pick].ProductState.Value,
		realTime:  realTime,
	}
}
