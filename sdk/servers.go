package orca

import (
	"context"
	"net/http"
	"time"
)

// ServerDescriptor is one sending endpoint owned by the acting user.
// EmailCount is a cumulative counter and only grows; IsBusy is
// advisory.
type ServerDescriptor struct {
	ServerID   string `json:"serverId"`
	ServerName string `json:"serverName"`
	ServerURL  string `json:"serverUrl"`
	ServerIP   string `json:"serverIp"`
	IsActive   bool   `json:"isActive"`
	IsBusy     bool   `json:"isBusy"`
	EmailCount int64  `json:"emailCount"`
}

// ServerList is the snapshot returned by ListServers. DefaultServerID,
// when set, names a server present in Servers.
type ServerList struct {
	Servers         []ServerDescriptor `json:"servers"`
	DefaultServerID string             `json:"defaultServerId,omitempty"`
}

// HostInfo is a display-only telemetry snapshot of the mediator host.
type HostInfo struct {
	Hostname      string    `json:"hostname"`
	Platform      string    `json:"platform"`
	UptimeSeconds uint64    `json:"uptime"`
	PrimaryIP     string    `json:"primaryIp"`
	Port          int       `json:"port"`
	EmailCount    int64     `json:"emailCount"`
	Timestamp     time.Time `json:"timestamp"`
}

// Health is a liveness snapshot. Non-authoritative for dispatch
// decisions.
type Health struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Uptime  string `json:"uptime"`
}

type serverListEnvelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    *ServerList `json:"data"`
}

type hostInfoEnvelope struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Data    *HostInfo `json:"data"`
}

// ListServers returns the sending servers available to the session's
// user, plus the user's default selection. The result is a snapshot,
// not a subscription.
func (c *Client) ListServers(ctx context.Context) (*ServerList, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}

	var envelope serverListEnvelope
	if err := c.request(ctx, http.MethodGet, "/api/user/servers", nil, &envelope); err != nil {
		return nil, mapJobError(err, "failed to retrieve server list")
	}
	return envelope.Data, nil
}

// ServerInfo returns host telemetry for the mediator. Display only.
func (c *Client) ServerInfo(ctx context.Context) (*HostInfo, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}

	var envelope hostInfoEnvelope
	if err := c.request(ctx, http.MethodGet, "/api/server-info", nil, &envelope); err != nil {
		return nil, mapJobError(err, "failed to retrieve server information")
	}
	return envelope.Data, nil
}

// CheckHealth probes the mediator. No authentication required.
func (c *Client) CheckHealth(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.request(ctx, http.MethodGet, "/api/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// CheckWorkerHealth probes the background dispatch worker.
func (c *Client) CheckWorkerHealth(ctx context.Context) (*Health, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}

	var h Health
	if err := c.request(ctx, http.MethodGet, "/api/worker/health", nil, &h); err != nil {
		return nil, mapJobError(err, "failed to connect to worker")
	}
	return &h, nil
}
