package config

import (
	"net"
	"os"
	"sync"
)

// dockerEnvFile exists in every Docker container.
const dockerEnvFile = "/.dockerenv"

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker reports whether the process runs inside a Docker
// container. The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat(dockerEnvFile)
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps a loopback database host to host.docker.internal
// when running in a container. Other hosts are returned unchanged.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

func resolveHost(host string, inDocker bool) string {
	if inDocker && isLoopback(host) {
		return "host.docker.internal"
	}
	return host
}

// ListenAddress returns the host:port the HTTP server binds. A loopback
// bind_addr widens to all interfaces inside a container.
func (c *Config) ListenAddress() string {
	return listenAddress(c.BindAddr, c.Port, IsRunningInDocker())
}

func listenAddress(bindAddr, port string, inDocker bool) string {
	if inDocker && isLoopback(bindAddr) {
		bindAddr = "0.0.0.0"
	}
	return net.JoinHostPort(bindAddr, port)
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1"
}
