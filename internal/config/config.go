package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

type Application struct {
	Host      string    `koanf:"host"`
	Port      int       `koanf:"port"`
	Google    Google    `koanf:"google"`
	Microsoft Microsoft `koanf:"microsoft"`
	Database  Database  `koanf:"db"`
	Redis     Redis     `koanf:"redis"`
	Calendar  Calendar  `koanf:"calendar"`
}

type Google struct {
	ClientId     string `koanf:"clientid"`
	ClientSecret string `koanf:"clientsecret"`
}

type Microsoft struct {
	ClientId     string `koanf:"clientid"`
	ClientSecret string `koanf:"clientsecret"`
	// Tenant is "common" for multi-tenant apps or a directory id.
	Tenant string `koanf:"tenant"`
}

type Database struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Pass     string `koanf:"pass"`
	Name     string `koanf:"name"`
	Schema   string `koanf:"schema"`
	MaxConns int32  `koanf:"maxconns"`
}

type Redis struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type Calendar struct {
	// FetchTimeout bounds a single provider call.
	FetchTimeout time.Duration `koanf:"fetchtimeout"`
	// CacheTTL of zero disables aggregation caching.
	CacheTTL             time.Duration `koanf:"cachettl"`
	MaxConcurrentFetches int           `koanf:"maxconcurrentfetches"`
	DefaultTimezone      string        `koanf:"defaulttimezone"`
}

func Defaults() Application {
	return Application{
		Host: "http://localhost:3000",
		Port: 8181,
		Microsoft: Microsoft{
			Tenant: "common",
		},
		Database: Database{
			Host:     "localhost",
			Port:     5432,
			User:     "flohub",
			Pass:     "",
			Name:     "flohub",
			Schema:   "flohub",
			MaxConns: 25,
		},
		Redis: Redis{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		Calendar: Calendar{
			FetchTimeout:         10 * time.Second,
			CacheTTL:             60 * time.Second,
			MaxConcurrentFetches: 8,
			DefaultTimezone:      "UTC",
		},
	}
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(Defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: "FLOHUB_",
		TransformFunc: func(k, v string) (string, any) {
			// FLOHUB_CALENDAR_CACHETTL -> calendar.cachettl
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, "FLOHUB_")), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	return app, nil
}
