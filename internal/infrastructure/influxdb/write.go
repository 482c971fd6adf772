package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementTags is the measurement every poll result is written to.
const MeasurementTags = "plc_tags"

// Values of the quality tag on plc_tags points.
const (
	QualityGood    = "good"
	QualityPartial = "partial"
)

// WriteTags records one poll result as a single point in plc_tags, tagged
// with the device address and the read quality, with one field per tag.
// Failed reads (nil) and values with no field representation are left out
// and mark the point partial; a result with no usable values writes
// nothing. The write is non-blocking.
func (c *Client) WriteTags(device string, ts time.Time, data map[string]any) {
	if !c.IsConnected() {
		return
	}

	fields := tagFields(data)
	if len(fields) == 0 {
		c.empty.Add(1)
		return
	}

	quality := QualityGood
	if len(fields) < len(data) {
		quality = QualityPartial
		c.partial.Add(1)
	}

	point := write.NewPoint(MeasurementTags,
		map[string]string{"device": device, "quality": quality},
		fields,
		ts)
	c.writeAPI.WritePoint(point)
	c.points.Add(1)
}

// tagFields converts controller values to InfluxDB field values. Integers
// are widened to float64 so a field keeps one type when a tag's declared
// type changes between runs.
func tagFields(data map[string]any) map[string]any {
	fields := make(map[string]any, len(data))
	for name, v := range data {
		switch val := v.(type) {
		case float32:
			fields[name] = float64(val)
		case float64:
			fields[name] = val
		case int8:
			fields[name] = float64(val)
		case int16:
			fields[name] = float64(val)
		case int32:
			fields[name] = float64(val)
		case int64:
			fields[name] = float64(val)
		case int:
			fields[name] = float64(val)
		case uint8:
			fields[name] = float64(val)
		case uint16:
			fields[name] = float64(val)
		case uint32:
			fields[name] = float64(val)
		case uint64:
			fields[name] = float64(val)
		case bool:
			fields[name] = val
		case string:
			fields[name] = val
		}
	}
	return fields
}
