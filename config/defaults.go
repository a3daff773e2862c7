package config

import (
	"routermon/types"
)

// DefaultAppConfig covers the factory setup: one router on the HiLink
// default address, login mode probed.
var DefaultAppConfig = AppConfig{
	Routers: []types.RouterConfig{
		{
			Name:      "LTE Router",
			Site:      "Home",
			Ip:        "192.168.8.1",
			LoginMode: types.LoginModeAuto,
		},
	},
	Credentials: Credentials{
		Username: "admin",
		Password: "admin",
	},
}
