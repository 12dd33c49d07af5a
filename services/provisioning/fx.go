package provisioning

import (
	"vpnstore/pkg/config"

	"go.uber.org/fx"
)

var Module = fx.Module("provisioning.gateway",
	fx.Provide(NewGatewayFromConfig),
)

func NewGatewayFromConfig(cfg *config.Config) *Gateway {
	return NewGateway(
		NewPanel("panel1", cfg.Panel1),
		NewPanel("panel2", cfg.Panel2),
	)
}
