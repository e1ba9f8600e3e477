package config

import "errors"

var errUnsupported = errors.New("config: provider does not support raw byte reads")
