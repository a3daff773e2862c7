package config

import (
	"routermon/types"
)

type AppConfig struct {
	Routers     []types.RouterConfig
	Credentials Credentials
}

type Credentials struct {
	Username string
	Password string
}
