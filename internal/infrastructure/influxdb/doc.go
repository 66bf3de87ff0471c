// Package influxdb records access node telemetry in InfluxDB.
//
// Two measurements are written:
//
//	sensor_readings  tags: site, kind           fields: value, detected
//	access_outcomes  tags: site, event          fields: user, count
//
// Telemetry is optional. The hash-chained audit log remains the record of
// truth for outcomes; InfluxDB exists for dashboards and threshold tuning.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Site.ID)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) {
//	    logger.Warn("influxdb write failed", "error", err)
//	})
//
// All methods are safe for concurrent use. Record methods are no-ops when
// the client is closed.
package influxdb
