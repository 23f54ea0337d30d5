package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

const cfgHost = `{
  "lcd": {
    "id": "lcd0",
    "clock_hz": 100000000,
    "bus_hz": 400000,
    "interval_ms": 1,
    "burst": 8192,
    "queue_len": 80,
    "port": "sim"
  }
}`

const cfgPicoGPIO = `{
  "lcd": {
    "id": "lcd0",
    "clock_hz": 5000000,
    "bus_hz": 100000,
    "interval_ms": 1,
    "burst": 5000,
    "stall_polls": 500,
    "queue_len": 80,
    "port": "gpio"
  }
}`

const cfgPicoBackpack = `{
  "lcd": {
    "id": "lcd0",
    "clock_hz": 5000000,
    "bus_hz": 100000,
    "interval_ms": 1,
    "burst": 5000,
    "stall_polls": 500,
    "queue_len": 80,
    "port": "mcp23017",
    "i2c_addr": 39
  }
}`

var embeddedConfigs = map[string][]byte{
	"host":          []byte(cfgHost),
	"pico":          []byte(cfgPicoGPIO),
	"pico-backpack": []byte(cfgPicoBackpack),
}
