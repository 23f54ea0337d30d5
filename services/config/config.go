// Package config publishes a device's embedded configuration on the bus,
// one retained message per top-level key under {"config", key}.
package config

import (
	"context"
	"errors"

	"charlcd-go/bus"
	"charlcd-go/x/logx"

	"github.com/andreyvit/tinyjson"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
)

type ctxKey string

// CtxDeviceKey is the context key carrying the device ID.
const CtxDeviceKey ctxKey = "device"

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// Topic returns the retained topic for one config key.
func Topic(key string) bus.Topic { return bus.T(configPrefix, key) }

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// publishConfig reads the device config from embedded data and publishes it as retained messages.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return errors.New("missing device ID in context")
	}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return errors.New("no embedded config for device: " + device)
	}

	m, err := decodeObject(raw)
	if err != nil {
		return err
	}

	for k, v := range m {
		conn.Publish(conn.NewMessage(Topic(k), v, true))
	}
	logx.Debug(logx.ComponentService, "config published", "device", device, "keys", len(m))
	return nil
}

// decodeObject parses a whole JSON object. tinyjson panics on malformed
// input; that is turned into an error here.
func decodeObject(raw []byte) (m map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, errors.New("embedded config is not valid JSON")
		}
	}()
	r := tinyjson.Raw(raw)
	val := r.Value() // should be a map[string]any
	r.EnsureEOF()

	m, ok := val.(map[string]any)
	if !ok {
		return nil, errors.New("embedded config is not a JSON object")
	}
	return m, nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			logx.Error(logx.ComponentService, "config not published", "err", err)
		}
	}()
}

// Await returns the retained config for key, waiting for it to be
// published.
func Await(ctx context.Context, conn *bus.Connection, key string) (any, error) {
	sub := conn.Subscribe(Topic(key))
	defer conn.Unsubscribe(sub)
	select {
	case m := <-sub.Channel():
		return m.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
