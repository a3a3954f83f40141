package etcdclient

import (
	"strings"
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/service/common/duration"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const (
	DefaultConnectTimeout    = 30 * time.Second
	DefaultKeepAliveTimeout  = 5 * time.Second
	DefaultKeepAliveInterval = 10 * time.Second
)

type Config struct {
	Endpoint          string            `configKey:"endpoint" configUsage:"Etcd endpoint."`
	Namespace         string            `configKey:"namespace" configUsage:"Etcd namespace." validate:"required"`
	Username          string            `configKey:"username" configUsage:"Etcd username."`
	Password          string            `configKey:"password" configUsage:"Etcd password." sensitive:"true"`
	ConnectTimeout    duration.Duration `configKey:"connectTimeout" configUsage:"Etcd connect timeout." validate:"required"`
	KeepAliveTimeout  duration.Duration `configKey:"keepAliveTimeout" configUsage:"Etcd keep alive timeout." validate:"required"`
	KeepAliveInterval duration.Duration `configKey:"keepAliveInterval" configUsage:"Etcd keep alive interval." validate:"required"`
}

func NewConfig() Config {
	return Config{
		Namespace:         "turbinia",
		ConnectTimeout:    duration.From(DefaultConnectTimeout),
		KeepAliveTimeout:  duration.From(DefaultKeepAliveTimeout),
		KeepAliveInterval: duration.From(DefaultKeepAliveInterval),
	}
}

// Enabled returns true if the endpoint is set, otherwise in-memory backends are used.
func (c Config) Enabled() bool {
	return strings.Trim(c.Endpoint, " /") != ""
}

func (c *Config) Normalize() {
	c.Endpoint = strings.Trim(c.Endpoint, " /")
	c.Namespace = strings.Trim(c.Namespace, " /") + "/"
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("etcd endpoint is not set")
	}
	if c.Namespace == "/" {
		return errors.New("etcd namespace is not set")
	}
	return nil
}
