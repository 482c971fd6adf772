// Package influxdb is the optional tag historian.
//
// Every successful poll is written as one point in the plc_tags measurement,
// tagged with the device address, the read quality (good or partial) and
// source=enipbridge. Writes go through the batched, non-blocking write API
// of influxdb-client-go, so a slow or unreachable server never delays the
// poll loop; asynchronous failures are reported through SetOnError and
// counted in Stats.
//
//	hist, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer hist.Close()
//
//	hist.WriteTags("192.168.1.10", time.Now(), map[string]any{"Speed": float32(12.5)})
package influxdb
