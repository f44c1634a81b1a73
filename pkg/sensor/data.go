package sensor

// Reading is one humidity / temperature / smoke sample from the ESP32.
// JSON names follow the device firmware.
//
// Values are float64. The firmware sends small decimals, so integers beyond
// 2^53 losing precision does not matter here. encoding/json writes whole
// values without a fraction, so a smoke level of 12 is served as 12 and not
// 12.0; JSON clients read both as the same number.
type Reading struct {
	Humidity    float64 `json:"humidade"`
	Temperature float64 `json:"temperatura"`
	Smoke       float64 `json:"fumaca"`
}
