package config

import "errors"

var (
	ErrConfigNotLoaded  = errors.New("config not loaded")
	ErrProviderNotFound = errors.New("provider not found")
	ErrKeyNotFound      = errors.New("api key not found")
)
