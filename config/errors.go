package config

import "errors"

var (
	ErrUnknownAdapter        = errors.New("config: --adapter must be \"ethereum\" or \"dummy\"")
	ErrKeystoreFileRequired  = errors.New("config: --keystoreFile is required for the ethereum adapter")
	ErrDummyIdentityRequired = errors.New("config: --dummyIdentity is required for the dummy adapter")
	ErrSentryURLRequired     = errors.New("config: --sentryUrl must not be empty")
)
