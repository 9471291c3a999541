package agent

import "strconv"

// appendDataJSON serializes one telemetry sample into buf. Hand-rolled
// append keeps the 100ms loop allocation-free; key order is fixed so
// downstream consumers may diff payloads textually.
func appendDataJSON(buf []byte, furnaceTempC, coldJunctionC, flameVolts float64, timestampMs int64) []byte {
	buf = append(buf, `{"furnace_temp":`...)
	buf = strconv.AppendFloat(buf, furnaceTempC, 'f', 2, 64)
	buf = append(buf, `,"cold_junction":`...)
	buf = strconv.AppendFloat(buf, coldJunctionC, 'f', 2, 64)
	buf = append(buf, `,"flame_voltage":`...)
	buf = strconv.AppendFloat(buf, flameVolts, 'f', 3, 64)
	buf = append(buf, `,"timestamp":`...)
	buf = strconv.AppendInt(buf, timestampMs, 10)
	buf = append(buf, '}')
	return buf
}
