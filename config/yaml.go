package config

import (
	"fmt"
	"gopkg.in/yaml.v3"
	"log"
	"os"
	"routermon/types"
)

func ReadConfigAndCredentials() *AppConfig {
	appConfig := &AppConfig{}
	readRouterManifest(appConfig)
	readCredentials(appConfig)
	log.Printf("Using router config: %+v\n", appConfig.Routers)
	return appConfig
}

func readRouterManifest(appConfig *AppConfig) {
	type routerFromFile struct {
		Name      string `yaml:"name"`
		Site      string `yaml:"site"`
		Ip        string `yaml:"ip"`
		LoginMode string `yaml:"loginMode"`
	}
	type routersConfigFile struct {
		Routers []routerFromFile `yaml:"routers"`
	}
	routersFromYaml := routersConfigFile{}
	readConfig("config/exampleRouterManifest.yaml", &routersFromYaml)
	appConfig.Routers = make([]types.RouterConfig, 0, len(routersFromYaml.Routers))
	for _, router := range routersFromYaml.Routers {
		appConfig.Routers = append(appConfig.Routers, types.RouterConfig{
			Name:      router.Name,
			Site:      router.Site,
			Ip:        router.Ip,
			LoginMode: types.LoginModeFor(router.LoginMode),
		})
	}
}

func readCredentials(config *AppConfig) {
	type usernameAndPassword struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	}
	type credentialsFromFile struct {
		Router usernameAndPassword `yaml:"router"`
	}
	credentials := credentialsFromFile{}
	readConfig("config/exampleCredentials.yaml", &credentials)
	config.Credentials.Username = credentials.Router.Username
	config.Credentials.Password = credentials.Router.Password
}

func readConfig[E any](filename string, into *E) {
	fileBytes, err := os.ReadFile(filename)
	if err != nil {
		panic(fmt.Errorf("could not read config file '%s': %w", filename, err))
	}
	err = yaml.Unmarshal(fileBytes, into)
	if err != nil {
		panic(fmt.Errorf("could not unmarshal config file yaml '%s': %w", filename, err))
	}
}
