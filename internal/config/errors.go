package config

import "errors"

// ErrConfigExists is returned when writing a config file that already exists
// without permission to overwrite it.
var ErrConfigExists = errors.New("config file already exists")
