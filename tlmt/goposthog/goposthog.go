// Package goposthog ships telemetry events to posthog.
package goposthog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/gosom/maps-recommender/tlmt"
)

type service struct {
	client      posthog.Client
	anonymousID string
	machine     map[string]any
}

func New(apiKey, endpoint string) (tlmt.Telemetry, error) {
	client, err := posthog.NewWithConfig(apiKey, posthog.Config{
		Endpoint:  endpoint,
		Interval:  10 * time.Second,
		BatchSize: 10,
	})
	if err != nil {
		return nil, err
	}

	ans := service{
		client:      client,
		anonymousID: anonymousID(),
		machine:     machineProperties(),
	}

	return &ans, nil
}

func (s *service) Send(ctx context.Context, event tlmt.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	props := posthog.NewProperties()

	for k, v := range s.machine {
		props.Set(k, v)
	}

	for k, v := range event.Properties {
		props.Set(k, v)
	}

	id := event.AnonymousID
	if id == "" {
		id = s.anonymousID
	}

	return s.client.Enqueue(posthog.Capture{
		DistinctId: id,
		Event:      event.Name,
		Properties: props,
	})
}

func (s *service) Close() error {
	return s.client.Close()
}

// anonymousID hashes the host id so the raw value never leaves the machine.
func anonymousID() string {
	info, err := host.Info()
	if err != nil || info.HostID == "" {
		return uuid.NewString()
	}

	sum := sha256.Sum256([]byte(info.HostID))

	return hex.EncodeToString(sum[:])
}

func machineProperties() map[string]any {
	props := map[string]any{
		"os":   runtime.GOOS,
		"arch": runtime.GOARCH,
	}

	if n, err := cpu.Counts(true); err == nil {
		props["num_cpu"] = n
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		props["total_memory_mb"] = vm.Total / 1024 / 1024
	}

	if info, err := host.Info(); err == nil {
		props["platform"] = info.Platform
		props["platform_version"] = info.PlatformVersion
	}

	return props
}
